package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/sentinel/domain"
	"go.pilab.hu/sentinel/internal/anomaly"
	"go.pilab.hu/sentinel/internal/fingerprint"
	"go.pilab.hu/sentinel/tracker"
)

// Plain stubs are enough here; the tracker's own behavior is covered by its
// package tests.

type stubStore struct {
	getOrCreateCalls int
	lastCandidate    *domain.SessionRecord
}

func (s *stubStore) GetOrCreate(_ context.Context, candidate *domain.SessionRecord) (*domain.SessionRecord, bool, error) {
	s.getOrCreateCalls++
	s.lastCandidate = candidate
	return candidate, true, nil
}

func (s *stubStore) Update(context.Context, *domain.SessionRecord) error { return nil }

type stubRecorder struct{}

func (stubRecorder) Record(context.Context, *domain.LoginAttempt) error { return nil }

type stubCounters struct{}

func (stubCounters) CountTouchedSince(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}

func (stubCounters) CountConcurrentActive(context.Context, string, time.Time, string) (int64, error) {
	return 0, nil
}

type stubAttempts struct{}

func (stubAttempts) CountFailedSince(context.Context, string, string, time.Time) (int64, error) {
	return 0, nil
}

type stubSink struct{}

func (stubSink) Send(context.Context, domain.SecurityAlertEvent, []domain.Operator) error {
	return nil
}

type stubDirectory struct{}

func (stubDirectory) ListOperators(context.Context) ([]domain.Operator, error) { return nil, nil }

func newTestTracker(store *stubStore) *tracker.Tracker {
	classifier := anomaly.NewClassifier(stubCounters{}, stubAttempts{}, anomaly.DefaultThresholds())
	return tracker.New(
		fingerprint.NewExtractor(fingerprint.DefaultConfig()),
		store,
		stubRecorder{},
		classifier,
		stubSink{},
		stubDirectory{},
	)
}

func performRequest(t *testing.T, mw echo.MiddlewareFunc, principal *domain.Principal, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(mw)
	e.GET("/api/invoices", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	// Set the principal before the handler runs, the way an upstream auth
	// middleware would.
	e.Pre(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if principal != nil {
				SetPrincipal(c, principal)
			}
			return next(c)
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("User-Agent", "Mozilla/5.0")
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSessionTracking_TracksAuthenticatedRequests(t *testing.T) {
	store := &stubStore{}
	mw := SessionTracking(newTestTracker(store), nil)
	principal := &domain.Principal{ID: "user-1", Username: "alice"}

	rec := performRequest(t, mw, principal)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.getOrCreateCalls)
	require.NotNil(t, store.lastCandidate)
	assert.Equal(t, "user-1", store.lastCandidate.UserID)
	assert.Equal(t, "203.0.113.7", store.lastCandidate.IPAddress)
}

func TestSessionTracking_CookieBecomesSessionKey(t *testing.T) {
	store := &stubStore{}
	mw := SessionTracking(newTestTracker(store), nil)
	principal := &domain.Principal{ID: "user-1"}

	performRequest(t, mw, principal, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: "abc123"})
	})

	require.NotNil(t, store.lastCandidate)
	assert.Equal(t, "abc123", store.lastCandidate.SessionKey)
}

func TestSessionTracking_AnonymousRequestsPassThroughUntracked(t *testing.T) {
	store := &stubStore{}
	mw := SessionTracking(newTestTracker(store), nil)

	rec := performRequest(t, mw, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, store.getOrCreateCalls)
}

func TestSnapshot(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: "abc123"})
	c := e.NewContext(req, httptest.NewRecorder())
	SetPrincipal(c, &domain.Principal{ID: "user-1"})

	snap := Snapshot(c)

	require.NotNil(t, snap.Principal)
	assert.Equal(t, "user-1", snap.Principal.ID)
	assert.Equal(t, "/api/invoices", snap.Path)
	assert.Equal(t, "abc123", snap.SessionID)
	assert.Equal(t, "203.0.113.7:51234", snap.RemoteAddr)
	assert.Equal(t, "9.9.9.9, 10.0.0.1", snap.ForwardedFor)
	assert.Equal(t, "Mozilla/5.0", snap.UserAgent)
}

func TestRequireOperator(t *testing.T) {
	handler := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	guarded := RequireOperator("platform_admin")(handler)

	newCtx := func(p *domain.Principal) echo.Context {
		e := echo.New()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		if p != nil {
			SetPrincipal(c, p)
		}
		return c
	}

	t.Run("anonymous", func(t *testing.T) {
		err := guarded(newCtx(nil))
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})

	t.Run("wrong role", func(t *testing.T) {
		err := guarded(newCtx(&domain.Principal{ID: "user-1", Role: "client"}))
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusForbidden, httpErr.Code)
	})

	t.Run("operator", func(t *testing.T) {
		assert.NoError(t, guarded(newCtx(&domain.Principal{ID: "op-1", Role: "platform_admin"})))
	})
}
