package appointment

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careportal/careportal/internal/domain/audit"
	"github.com/careportal/careportal/internal/platform/auth"
	"github.com/careportal/careportal/pkg/pagination"
)

// Handler exposes the patient-facing scheduling API and feeds each
// successful mutation into the audit dispatcher. Failed operations are
// left to the audit capture middleware, which records them with the
// request's failure status.
type Handler struct {
	store      *Store
	dispatcher *audit.Dispatcher
}

func NewHandler(store *Store, dispatcher *audit.Dispatcher) *Handler {
	return &Handler{store: store, dispatcher: dispatcher}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/appointments", h.Book)
	api.PUT("/appointments/:id/reschedule", h.Reschedule)
	api.POST("/appointments/:id/cancel", h.Cancel)
	api.GET("/appointments", h.List)
	api.GET("/appointments/next", h.NextUpcoming)
	api.GET("/appointments/:id", h.Get)
	api.GET("/scheduling/slots", h.ListSlots)

	staff := api.Group("", auth.RequireRole("admin", "staff"))
	staff.POST("/appointments/:id/complete", h.Complete)
}

// Book handles POST /api/v1/appointments.
func (h *Handler) Book(c echo.Context) error {
	var req BookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	appt, err := h.store.Book(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}

	h.recordMutation(c, EventCreated, appt)
	return c.JSON(http.StatusCreated, appt)
}

// rescheduleRequest is the JSON body for the reschedule endpoint.
type rescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Reschedule handles PUT /api/v1/appointments/:id/reschedule.
func (h *Handler) Reschedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	appt, err := h.store.Reschedule(c.Request().Context(), id, req.Date, req.Time)
	if err != nil {
		return mapError(err)
	}

	h.recordMutation(c, EventRescheduled, appt)
	return c.JSON(http.StatusOK, appt)
}

// Cancel handles POST /api/v1/appointments/:id/cancel.
func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}

	appt, err := h.store.Cancel(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}

	h.recordMutation(c, EventCancelled, appt)
	return c.JSON(http.StatusOK, appt)
}

// Complete handles POST /api/v1/appointments/:id/complete (staff only).
func (h *Handler) Complete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}

	appt, err := h.store.Complete(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}

	h.recordMutation(c, EventCompleted, appt)
	return c.JSON(http.StatusOK, appt)
}

// Get handles GET /api/v1/appointments/:id.
func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}
	appt, err := h.store.Get(id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

// List handles GET /api/v1/appointments?patientId=&status=&limit=&offset=.
func (h *Handler) List(c echo.Context) error {
	patientID := c.QueryParam("patientId")
	if patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patientId is required")
	}
	status := Status(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status")
	}

	appts := []*Appointment{}
	for appt := range h.store.ListForPatient(patientID, status) {
		appts = append(appts, appt)
	}

	p := pagination.FromContext(c)
	total := len(appts)
	if p.Offset >= total {
		appts = []*Appointment{}
	} else {
		end := p.Offset + p.Limit
		if end > total {
			end = total
		}
		appts = appts[p.Offset:end]
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(appts, total, p.Limit, p.Offset))
}

// NextUpcoming handles GET /api/v1/appointments/next?patientId=.
func (h *Handler) NextUpcoming(c echo.Context) error {
	patientID := c.QueryParam("patientId")
	if patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patientId is required")
	}
	appt, ok := h.store.NextUpcoming(patientID, time.Now().UTC())
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, appt)
}

// ListSlots handles GET /api/v1/scheduling/slots.
func (h *Handler) ListSlots(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date format")
	}
	times := h.store.catalog.Times(c.QueryParam("departmentId"), c.QueryParam("doctorId"), date)
	return c.JSON(http.StatusOK, map[string]any{"date": date, "times": times})
}

// recordMutation enqueues one audit record for a committed mutation and
// marks the request so the capture middleware does not log it twice.
func (h *Handler) recordMutation(c echo.Context, kind EventKind, appt *Appointment) {
	if h.dispatcher != nil {
		req := c.Request()
		h.dispatcher.Enqueue(audit.Event{
			ActorID:    auth.ActorIDFromContext(req.Context()),
			Action:     audit.Action(kind.AuditAction()),
			Resource:   audit.ResourceAppointment,
			ResourceID: appt.ID.String(),
			Outcome:    audit.OutcomeSuccess,
			Method:     req.Method,
			Path:       req.URL.Path,
			IPAddress:  c.RealIP(),
			UserAgent:  req.UserAgent(),
		})
	}
	c.Set("audit_recorded", true)
}

// mapError converts store errors to HTTP errors with the specific
// rejection reason, never a generic failure.
func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidSlot), errors.Is(err, ErrPastDate):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidType), errors.Is(err, ErrInvalidMode),
		errors.Is(err, ErrMissingPatient), errors.Is(err, ErrMissingDoctor):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
