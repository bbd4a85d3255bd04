// Package echo exposes the session administration API. All routes are meant
// to be mounted behind the operator-role middleware; they serve the admin
// UI, not the tracking hot path.
package echo

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/sentinel/domain"
	"go.pilab.hu/sentinel/internal/audit"
	"go.pilab.hu/sentinel/middleware"
	"go.pilab.hu/sentinel/services"
)

// SessionAPI holds the admin surface dependencies.
type SessionAPI struct {
	service *services.SessionService
}

func NewSessionAPI(service *services.SessionService) *SessionAPI {
	return &SessionAPI{service: service}
}

// RegisterRoutes registers the session administration routes.
func (a *SessionAPI) RegisterRoutes(g *echo.Group) {
	g.GET("/sessions", a.ListHandler)
	g.GET("/sessions/metrics", a.MetricsHandler)
	g.GET("/sessions/realtime", a.RealtimeHandler)
	g.GET("/sessions/:id", a.GetHandler)
	g.POST("/sessions/terminate", a.TerminateHandler)
	g.POST("/sessions/bulk", a.BulkActionHandler)
}

type errorResponse struct {
	Error string `json:"error"`
}

// operatorName identifies the acting operator for the audit trail.
func operatorName(c echo.Context) string {
	if p := middleware.PrincipalFromContext(c); p != nil {
		return p.Username
	}
	return ""
}

// ListHandler lists sessions with filtering and fixed-size pagination.
func (a *SessionAPI) ListHandler(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))

	status := c.QueryParam("status")
	if status == "" {
		status = string(domain.SessionStatusActive)
	}

	filter := domain.SessionFilter{
		Status:     status,
		UserID:     c.QueryParam("user_id"),
		DeviceType: c.QueryParam("device_type"),
		UserRole:   c.QueryParam("user_role"),
		Search:     c.QueryParam("search"),
		TimeRange:  c.QueryParam("time_range"),
		Page:       page,
	}

	result, err := a.service.List(c.Request().Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list sessions")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to fetch sessions"})
	}
	return c.JSON(http.StatusOK, result)
}

// GetHandler returns one session by id.
func (a *SessionAPI) GetHandler(c echo.Context) error {
	rec, err := a.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "Session not found"})
		}
		log.Error().Err(err).Msg("Failed to fetch session")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to fetch session"})
	}
	return c.JSON(http.StatusOK, rec)
}

type terminateRequest struct {
	SessionIDs []string `json:"session_ids"`
	Reason     string   `json:"reason"`
}

// TerminateHandler force-terminates the given sessions.
func (a *SessionAPI) TerminateHandler(c echo.Context) error {
	var req terminateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
	}

	count, err := a.service.Terminate(c.Request().Context(), req.SessionIDs, req.Reason)
	audit.Log(services.ActionTerminate, operatorName(c), req.SessionIDs, req.Reason, err)
	if err != nil {
		if errors.Is(err, domain.ErrNoSessionIDs) {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "session_ids are required"})
		}
		log.Error().Err(err).Msg("Failed to terminate sessions")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to terminate sessions"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message":          "Successfully terminated " + strconv.FormatInt(count, 10) + " sessions",
		"terminated_count": count,
	})
}

type bulkActionRequest struct {
	SessionIDs []string `json:"session_ids"`
	Action     string   `json:"action"`
	Reason     string   `json:"reason"`
}

// BulkActionHandler applies an operator action to the given sessions.
func (a *SessionAPI) BulkActionHandler(c echo.Context) error {
	var req bulkActionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
	}

	result, err := a.service.BulkAction(c.Request().Context(), req.SessionIDs, req.Action, req.Reason)
	audit.Log(req.Action, operatorName(c), req.SessionIDs, req.Reason, err)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoSessionIDs):
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "session_ids are required"})
		case errors.Is(err, domain.ErrInvalidBulkAction):
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid action"})
		default:
			log.Error().Err(err).Msg("Failed to perform bulk action")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to perform bulk action"})
		}
	}
	return c.JSON(http.StatusOK, result)
}

// MetricsHandler returns aggregate session statistics.
func (a *SessionAPI) MetricsHandler(c echo.Context) error {
	m, err := a.service.Metrics(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch session metrics")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to fetch session metrics"})
	}
	return c.JSON(http.StatusOK, m)
}

// RealtimeHandler returns the live monitoring snapshot.
func (a *SessionAPI) RealtimeHandler(c echo.Context) error {
	snapshot, err := a.service.Realtime(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch realtime sessions")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to fetch realtime sessions"})
	}
	return c.JSON(http.StatusOK, snapshot)
}
