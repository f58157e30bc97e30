package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Validator implements echo.Validator. Field names in errors are taken from
// the json, param or query tag so they match what the client sent.
type Validator struct {
	v *validator.Validate

	mu       sync.RWMutex
	messages map[string]string
}

var std = NewValidator()

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(wireName)
	return &Validator{v: v, messages: map[string]string{
		"required": "is required",
		"oneof":    "must be one of %s",
		"gt":       "must be greater than %s",
		"gte":      "must be at least %s",
		"lt":       "must be less than %s",
		"lte":      "must be at most %s",
		"min":      "must be at least %s",
		"max":      "must be at most %s",
	}}
}

func (v *Validator) Validate(i any) error { return v.v.Struct(i) }

// Register adds a string rule under tag. msg follows the field name when the
// rule fails.
func (v *Validator) Register(tag, msg string, ok func(string) bool) error {
	err := v.v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return fl.Field().Kind() == reflect.String && ok(fl.Field().String())
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", tag, err)
	}
	v.mu.Lock()
	v.messages[tag] = msg
	v.mu.Unlock()
	return nil
}

// RegisterValidation adds a rule to the validator used by ReadAndValidateRequest
// and installed on every Server. Call it before serving.
func RegisterValidation(tag, msg string, ok func(string) bool) error {
	return std.Register(tag, msg, ok)
}

// ReadAndValidateRequest binds the request into req, applies `default` tags
// and validates it. A nil result means req is ready to use.
func ReadAndValidateRequest(c echo.Context, req any) []ValidationError {
	if err := c.Bind(req); err != nil {
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg = fmt.Sprint(he.Message)
		}
		return []ValidationError{{Code: "ERR_BIND", Message: msg}}
	}
	if err := defaults.Set(req); err != nil {
		return []ValidationError{{Code: "ERR_DEFAULTS", Message: err.Error()}}
	}
	v, ok := c.Echo().Validator.(*Validator)
	if !ok {
		v = std
	}
	if err := v.Validate(req); err != nil {
		return v.describe(err)
	}
	return nil
}

func (v *Validator) describe(err error) []ValidationError {
	var fes validator.ValidationErrors
	if !errors.As(err, &fes) {
		return []ValidationError{{Code: "ERR_INVALID", Message: err.Error()}}
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]ValidationError, 0, len(fes))
	for _, fe := range fes {
		msg, ok := v.messages[fe.Tag()]
		if !ok {
			msg = "failed " + fe.Tag()
		}
		if strings.Contains(msg, "%s") {
			msg = fmt.Sprintf(msg, strings.ReplaceAll(fe.Param(), " ", ", "))
		}
		ve := ValidationError{
			Code:    "ERR_" + strings.ToUpper(fe.Tag()),
			Field:   fe.Field(),
			Message: fe.Field() + " " + msg,
		}
		if fe.Param() != "" {
			ve.Params = map[string]any{"param": fe.Param()}
		}
		out = append(out, ve)
	}
	return out
}

func wireName(f reflect.StructField) string {
	for _, tag := range []string{"json", "param", "query"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}
