package api

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"SwingDesk/internal/domain/models"
	"SwingDesk/internal/service/ratelimit"
	"SwingDesk/internal/usecase"
	xhttp "SwingDesk/pkg/http"
	xlogger "SwingDesk/pkg/logger"
	"SwingDesk/pkg/util"
)

type Screener interface {
	Run(ctx context.Context, p usecase.ScreenParams) (*models.ScreeningResult, error)
}

type SuggestionDesk interface {
	Publish(ctx context.Context, candidates []models.Candidate) ([]models.Suggestion, error)
	Execute(ctx context.Context, id int64, fillPrice float64, qty int) (*models.Position, error)
	Skip(ctx context.Context, id int64, notes string) (*models.Suggestion, error)
	ExpireStale(ctx context.Context, before time.Time) (int, error)
}

type PositionDesk interface {
	UpdateStop(ctx context.Context, id int64, stop float64) (*models.Position, error)
	UpdateTarget(ctx context.Context, id int64, target float64) (*models.Position, error)
	Close(ctx context.Context, id int64, exitPrice float64, reason models.ExitReason) (*models.Position, error)
	Summary(ctx context.Context) (models.PositionSummary, error)
}

type WeightCalibrator interface {
	Run(ctx context.Context) (*usecase.CalibrationResult, error)
}

type LedgerSyncer interface {
	Sync(ctx context.Context) (*models.SyncResult, error)
}

type WeightSource interface {
	Snapshot() *models.WeightSnapshot
}

type HealthChecker interface {
	Health(ctx context.Context) error
}

// DeskServices groups the use cases behind the desk endpoints.
type DeskServices struct {
	Screening   Screener
	Suggestions SuggestionDesk
	Positions   PositionDesk
	Calibrator  WeightCalibrator
	Reconciler  LedgerSyncer
	Weights     WeightSource
	Ledger      HealthChecker
}

var (
	registerRules sync.Once
	symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9&_.-]{0,29}$`)
)

// DeskEchoHandler exposes screening, learning and ledger operations over Echo.
type DeskEchoHandler struct {
	logger *xlogger.Logger
	svc    DeskServices
	rl     *ratelimit.Limiter
	now    func() time.Time
}

func NewDeskEchoHandler(logger *xlogger.Logger, svc DeskServices) *DeskEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	registerRules.Do(func() {
		for _, r := range []struct {
			tag, msg string
			ok       func(string) bool
		}{
			{"symbol", "must be an exchange trading symbol", symbolPattern.MatchString},
			{"exit_reason", "must be one of TARGET_HIT, STOP_HIT, MANUAL, TRAILING, EXPIRED", func(s string) bool {
				_, err := models.ParseExitReason(s)
				return err == nil
			}},
		} {
			if err := xhttp.RegisterValidation(r.tag, r.msg, r.ok); err != nil {
				logger.Error("validation rule not registered", xlogger.String("tag", r.tag), xlogger.Error(err))
			}
		}
	})
	return &DeskEchoHandler{logger: logger, svc: svc, rl: ratelimit.New(), now: time.Now}
}

func (h *DeskEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.POST("/screen", h.Screen)
	g.GET("/weights", h.Weights)
	g.POST("/calibrate", h.Calibrate)
	g.POST("/sync", h.Sync)

	g.GET("/positions", h.Positions)
	g.POST("/positions/:id/close", h.ClosePosition)
	g.POST("/positions/:id/stop", h.UpdateStop)
	g.POST("/positions/:id/target", h.UpdateTarget)

	g.POST("/suggestions/:id/execute", h.ExecuteSuggestion)
	g.POST("/suggestions/:id/skip", h.SkipSuggestion)
	g.POST("/suggestions/expire", h.ExpireSuggestions)
}

// heavy guards the endpoints that fan out to the broker.
func (h *DeskEchoHandler) heavy(c echo.Context, endpoint string) bool {
	return h.rl.Allow(c.RealIP()+":"+endpoint, 2, 0.2)
}

func (h *DeskEchoHandler) Health(c echo.Context) error {
	if h.svc.Ledger != nil {
		if err := h.svc.Ledger.Health(c.Request().Context()); err != nil {
			h.logger.Error("health ledger error", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("ledger unavailable").WithError(err))
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

type screenResponse struct {
	*models.ScreeningResult
	Suggestions []models.Suggestion `json:"suggestions,omitempty"`
}

func (h *DeskEchoHandler) Screen(c echo.Context) error {
	req := &models.ScreenRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if c.QueryParam("publish") == "true" {
		req.Publish = true
	}
	var to time.Time
	if req.To != "" {
		t, ok := util.ParseTime(req.To)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_BAD_REQUEST", "to", "to must be RFC3339 or unix seconds", http.StatusBadRequest))
		}
		to = t
	}
	if !h.heavy(c, "screen") {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("screening rate limited"))
	}

	ctx := c.Request().Context()
	res, err := h.svc.Screening.Run(ctx, usecase.ScreenParams{Universe: req.Universe, To: to})
	if err != nil {
		h.logger.Error("screen usecase error", xlogger.Error(err))
		return h.fail(c, err)
	}
	out := screenResponse{ScreeningResult: res}
	if req.Publish && len(res.Candidates) > 0 {
		sugs, err := h.svc.Suggestions.Publish(ctx, res.Candidates)
		if err != nil {
			h.logger.Error("publish suggestions error", xlogger.Error(err))
			return h.fail(c, err)
		}
		out.Suggestions = sugs
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *DeskEchoHandler) Weights(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, h.svc.Weights.Snapshot())
}

func (h *DeskEchoHandler) Calibrate(c echo.Context) error {
	res, err := h.svc.Calibrator.Run(c.Request().Context())
	if err != nil {
		h.logger.Warn("calibrate usecase error", xlogger.Error(err))
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *DeskEchoHandler) Sync(c echo.Context) error {
	if !h.heavy(c, "sync") {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("sync rate limited"))
	}
	res, err := h.svc.Reconciler.Sync(c.Request().Context())
	if err != nil {
		h.logger.Error("sync usecase error", xlogger.Error(err))
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *DeskEchoHandler) Positions(c echo.Context) error {
	res, err := h.svc.Positions.Summary(c.Request().Context())
	if err != nil {
		h.logger.Error("positions usecase error", xlogger.Error(err))
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *DeskEchoHandler) ClosePosition(c echo.Context) error {
	req := &models.ClosePositionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	reason, err := models.ParseExitReason(req.Reason)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	res, err := h.svc.Positions.Close(c.Request().Context(), req.ID, req.ExitPrice, reason)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *DeskEchoHandler) UpdateStop(c echo.Context) error {
	req := &models.AdjustPositionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.Positions.UpdateStop(c.Request().Context(), req.ID, req.Price)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *DeskEchoHandler) UpdateTarget(c echo.Context) error {
	req := &models.AdjustPositionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.Positions.UpdateTarget(c.Request().Context(), req.ID, req.Price)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *DeskEchoHandler) ExecuteSuggestion(c echo.Context) error {
	req := &models.ExecuteSuggestionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.Suggestions.Execute(c.Request().Context(), req.ID, req.FillPrice, req.Quantity)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *DeskEchoHandler) SkipSuggestion(c echo.Context) error {
	req := &models.SkipSuggestionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.Suggestions.Skip(c.Request().Context(), req.ID, req.Notes)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *DeskEchoHandler) ExpireSuggestions(c echo.Context) error {
	req := &models.ExpireSuggestionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	before := h.now().AddDate(0, 0, -req.OlderThanDays)
	n, err := h.svc.Suggestions.ExpireStale(c.Request().Context(), before)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]int{"expired": n})
}

// fail maps use case errors onto the AppError envelope.
func (h *DeskEchoHandler) fail(c echo.Context, err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.Is(err, models.ErrPositionNotFound), errors.Is(err, models.ErrSuggestionNotFound):
		appErr = xhttp.NotFoundError(err.Error())
	case usecase.IsConflict(err):
		appErr = xhttp.ConflictError(err.Error())
	case errors.Is(err, models.ErrExternalService):
		appErr = xhttp.ServiceUnavailableError(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		appErr = xhttp.ServiceUnavailableError("request timed out")
	default:
		appErr = xhttp.InternalError("Something went wrong")
	}
	return xhttp.AppErrorResponse(c, appErr.WithError(err))
}
