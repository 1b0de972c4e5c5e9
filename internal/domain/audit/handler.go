package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/careportal/careportal/internal/platform/auth"
)

// Handler exposes the compliance query surface for the audit trail.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole("admin", "staff"))
	staff.GET("/audit-logs", h.ListAuditLogs)
}

// ListAuditLogs handles GET /api/v1/audit-logs.
func (h *Handler) ListAuditLogs(c echo.Context) error {
	f := Filter{
		ActorID:    c.QueryParam("actorId"),
		Action:     Action(c.QueryParam("action")),
		Resource:   Resource(c.QueryParam("resourceType")),
		ResourceID: c.QueryParam("resourceId"),
	}

	var err error
	if f.From, err = parseDate(c.QueryParam("dateFrom"), false); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dateFrom")
	}
	if f.To, err = parseDate(c.QueryParam("dateTo"), true); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dateTo")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	result, err := h.svc.Query(c.Request().Context(), f, PageRequest{Page: page, Limit: limit})
	if err != nil {
		switch err {
		case ErrInvalidAction, ErrInvalidResource:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, result)
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain dateTo is
// widened to the end of that day so the range is inclusive.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
