package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	drepo "github.com/carmandale/SPY-tracker-sub000/internal/domain/repository"
	"github.com/carmandale/SPY-tracker-sub000/internal/scheduler"
	"github.com/carmandale/SPY-tracker-sub000/internal/usecase"
	xhttp "github.com/carmandale/SPY-tracker-sub000/pkg/http"
	xlogger "github.com/carmandale/SPY-tracker-sub000/pkg/logger"
)

// TrackerHandler exposes the tracker's read accessors and the manual job
// trigger endpoints.
type TrackerHandler struct {
	logger      *xlogger.Logger
	store       drepo.RecordStore
	calibration *usecase.Calibration
	suggestions *usecase.SuggestionEngine
	simulator   *usecase.Simulator
	sched       *scheduler.Scheduler
	loc         *time.Location
}

func NewTrackerHandler(
	logger *xlogger.Logger,
	store drepo.RecordStore,
	calibration *usecase.Calibration,
	suggestions *usecase.SuggestionEngine,
	simulator *usecase.Simulator,
	sched *scheduler.Scheduler,
	loc *time.Location,
) *TrackerHandler {
	return &TrackerHandler{
		logger:      logger,
		store:       store,
		calibration: calibration,
		suggestions: suggestions,
		simulator:   simulator,
		sched:       sched,
		loc:         loc,
	}
}

func (h *TrackerHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.GET("/days/:date", h.Day)
	g.GET("/days/:date/suggestions", h.Suggestions)
	g.GET("/calibration", h.Calibration)
	g.GET("/jobs", h.Jobs)
	g.POST("/jobs/:name/trigger", h.Trigger)
	g.POST("/simulation", h.Simulate)
}

func (h *TrackerHandler) Health(c echo.Context) error {
	if err := h.store.Health(c.Request().Context()); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("record store unreachable").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// Day returns the day's record as stored: absent checkpoints stay absent
// so the caller renders "no data yet" rather than a fabricated number.
func (h *TrackerHandler) Day(c echo.Context) error {
	date, err := models.ParseDate(c.Param("date"))
	if err != nil {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code:    "ERR_DATETIME",
			Field:   "date",
			Message: "date must match the layout 2006-01-02",
		}})
	}

	rec, err := h.store.Get(c.Request().Context(), date)
	if err != nil {
		return h.domainError(c, err)
	}
	return xhttp.SuccessResponse(c, rec)
}

func (h *TrackerHandler) Calibration(c echo.Context) error {
	req := &models.CalibrationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	report, err := h.calibration.Report(c.Request().Context(), req.Window)
	if err != nil {
		return h.domainError(c, err)
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *TrackerHandler) Suggestions(c echo.Context) error {
	date, err := models.ParseDate(c.Param("date"))
	if err != nil {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code:    "ERR_DATETIME",
			Field:   "date",
			Message: "date must match the layout 2006-01-02",
		}})
	}
	req := &models.SuggestionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	out, err := h.suggestions.Suggest(c.Request().Context(), date, req.Window)
	if err != nil {
		return h.domainError(c, err)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *TrackerHandler) Jobs(c echo.Context) error {
	statuses := h.sched.Status()
	out := make([]models.JobStatusResponse, 0, len(statuses))
	for _, st := range statuses {
		entry := models.JobStatusResponse{Name: st.Name, LastOutcome: st.LastOutcome}
		if !st.NextRun.IsZero() {
			entry.NextRun = st.NextRun.Format(time.RFC3339)
		}
		if !st.LastRun.IsZero() {
			entry.LastRun = st.LastRun.Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	return xhttp.SuccessResponse(c, out)
}

// Trigger fires one job by name, synchronously. Domain outcomes like
// Conflict and NotReady come back as their HTTP analogues so an operator
// can tell an idempotent no-op from a real failure.
func (h *TrackerHandler) Trigger(c echo.Context) error {
	name := c.Param("name")
	req := &models.TriggerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	date := models.DateOf(time.Now().In(h.loc))
	if req.Date != "" {
		date = models.Date(req.Date)
	}

	if err := h.sched.TriggerNow(name, date, req.Force); err != nil {
		if errors.Is(err, scheduler.ErrUnknownJob) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no job named %q", name))
		}
		return h.domainError(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{
		"job":  name,
		"date": date.String(),
	})
}

// Simulate backfills predictions for past trading days and returns the
// aggregate report. Days that already have a record are skipped, never
// overwritten.
func (h *TrackerHandler) Simulate(c echo.Context) error {
	req := &models.SimulationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	end := models.DateOf(time.Now().In(h.loc))
	if req.EndDate != "" {
		end = models.Date(req.EndDate)
	}

	report, err := h.simulator.Run(c.Request().Context(), usecase.SimulationParams{
		EndDate:  end,
		Days:     req.Days,
		Lookback: req.Lookback,
	})
	if err != nil {
		return h.domainError(c, err)
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *TrackerHandler) domainError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	case errors.Is(err, models.ErrConflict):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError(err.Error()))
	case errors.Is(err, models.ErrLocked):
		return xhttp.AppErrorResponse(c, xhttp.LockedError(err.Error()))
	case errors.Is(err, models.ErrNotReady):
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_NOT_READY", "", err.Error(), http.StatusConflict))
	case errors.Is(err, models.ErrValidation):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	case errors.Is(err, models.ErrProviderUnavailable):
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError(err.Error()))
	default:
		h.logger.Error("unhandled domain error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
}
