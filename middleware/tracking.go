// Package middleware wires the tracking engine into an echo server.
// Authentication itself is someone else's job: an upstream middleware is
// expected to resolve the principal and attach it to the request context.
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"go.pilab.hu/sentinel/domain"
	"go.pilab.hu/sentinel/internal/fingerprint"
	"go.pilab.hu/sentinel/sweeper"
	"go.pilab.hu/sentinel/tracker"
)

// PrincipalContextKey is where the upstream auth middleware stores the
// authenticated principal on the echo context.
const PrincipalContextKey = "principal"

// DefaultSessionCookie is the transport session identifier cookie.
const DefaultSessionCookie = "session_id"

// SetPrincipal attaches the authenticated principal to the echo context.
func SetPrincipal(c echo.Context, p *domain.Principal) {
	c.Set(PrincipalContextKey, p)
}

// PrincipalFromContext returns the authenticated principal, or nil for an
// anonymous request.
func PrincipalFromContext(c echo.Context) *domain.Principal {
	p, _ := c.Get(PrincipalContextKey).(*domain.Principal)
	return p
}

// SessionTracking runs the tracker after each request. The handler's
// response is returned untouched whatever tracking does; Track swallows its
// own failures. When a sweeper is given, each request also triggers the
// probabilistic housekeeping pass — for deployments running the timer loop,
// pass nil.
func SessionTracking(t *tracker.Tracker, sw *sweeper.Sweeper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			t.Track(c.Request().Context(), Snapshot(c))
			if sw != nil {
				sw.MaybeSweep(c.Request().Context())
			}

			return err
		}
	}
}

// Snapshot builds the transport-neutral request view the extractor works on.
func Snapshot(c echo.Context) fingerprint.Request {
	r := c.Request()

	sessionID := ""
	if cookie, err := c.Cookie(DefaultSessionCookie); err == nil {
		sessionID = cookie.Value
	}

	return fingerprint.Request{
		Principal:    PrincipalFromContext(c),
		Path:         r.URL.Path,
		SessionID:    sessionID,
		RemoteAddr:   r.RemoteAddr,
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
		UserAgent:    r.Header.Get("User-Agent"),
	}
}

// RequireOperator guards the admin surface: the request must carry an
// authenticated principal with the operator role.
func RequireOperator(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFromContext(c)
			if p == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if p.Role != role {
				return echo.NewHTTPError(http.StatusForbidden, "operator role required")
			}
			return next(c)
		}
	}
}
