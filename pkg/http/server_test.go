package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type routes func(e *echo.Echo)

func (r routes) RegisterRoutes(e *echo.Echo) { r(e) }

type orderRequest struct {
	ID     int64  `param:"id" validate:"required,gt=0"`
	Symbol string `json:"symbol" validate:"required,test_upper"`
	Qty    int    `json:"qty" default:"1" validate:"gte=1,lte=100"`
}

func newTestServer(t *testing.T, origins ...string) *Server {
	t.Helper()
	if err := RegisterValidation("test_upper", "must be upper case", func(s string) bool {
		return s == strings.ToUpper(s)
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	return NewServer(ServerConfig{CORSOrigins: origins}, nil, routes(func(e *echo.Echo) {
		e.GET("/ok", func(c echo.Context) error { return SuccessResponse(c, "fine") })
		e.GET("/panic", func(echo.Context) error { panic("boom") })
		e.POST("/orders/:id", func(c echo.Context) error {
			req := &orderRequest{}
			if errs := ReadAndValidateRequest(c, req); errs != nil {
				return BadRequestResponse(c, errs)
			}
			return SuccessResponse(c, req)
		})
	}))
}

type testEnvelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func serve(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	var env testEnvelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func TestCORSOnlyForListedOrigins(t *testing.T) {
	s := newTestServer(t, "https://desk.example.com")

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(echo.HeaderOrigin, "https://desk.example.com")
	rec, _ := serve(t, s, req)
	if rec.Header().Get(echo.HeaderAccessControlAllowOrigin) != "https://desk.example.com" {
		t.Fatalf("listed origin not allowed: %v", rec.Header())
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderVary), echo.HeaderOrigin) {
		t.Fatalf("expected Vary: Origin, got %v", rec.Header())
	}

	req = httptest.NewRequest(http.MethodOptions, "/ok", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example.com")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
	rec, _ = serve(t, s, req)
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "" {
		t.Fatalf("unlisted origin got Allow-Origin %q", got)
	}
}

func TestNoCORSHeadersWithoutOrigins(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(echo.HeaderOrigin, "https://desk.example.com")
	rec, env := serve(t, s, req)
	if rec.Code != http.StatusOK || env.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "" {
		t.Fatalf("CORS should be off, got Allow-Origin %q", got)
	}
}

func TestErrorsUseTheEnvelope(t *testing.T) {
	s := newTestServer(t)

	rec, env := serve(t, s, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rec.Code != http.StatusNotFound || env.Status != http.StatusNotFound {
		t.Fatalf("expected 404 envelope, got %d %s", rec.Code, rec.Body.String())
	}

	rec, env = serve(t, s, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if rec.Code != http.StatusInternalServerError || env.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 envelope, got %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("panic value leaked to the client: %s", rec.Body.String())
	}
}

func TestValidationNamesWireFields(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/orders/5", strings.NewReader(`{"symbol":"infy","qty":500}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec, env := serve(t, s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var errs []ValidationError
	if err := json.Unmarshal(env.Data, &errs); err != nil {
		t.Fatalf("decode errors: %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %+v", errs)
	}
	if errs[0].Field != "symbol" || errs[0].Code != "ERR_TEST_UPPER" || errs[0].Message != "symbol must be upper case" {
		t.Fatalf("unexpected symbol error %+v", errs[0])
	}
	if errs[1].Field != "qty" || errs[1].Message != "qty must be at most 100" {
		t.Fatalf("unexpected qty error %+v", errs[1])
	}

	req = httptest.NewRequest(http.MethodPost, "/orders/5", strings.NewReader(`{"symbol":"INFY"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec, env = serve(t, s, req)
	var ok orderRequest
	if err := json.Unmarshal(env.Data, &ok); rec.Code != http.StatusOK || err != nil {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if ok.ID != 5 || ok.Qty != 1 {
		t.Fatalf("expected path id and default qty, got %+v", ok)
	}
}
