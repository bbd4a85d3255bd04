package services

import (
	"context"
	"fmt"
	"time"

	"go.pilab.hu/sentinel/domain"
)

// DefaultPageSize is the fixed admin listing page size.
const DefaultPageSize = 50

// DefaultTerminationReason is applied when an operator terminates sessions
// without giving one.
const DefaultTerminationReason = "Admin terminated"

// Bulk action names accepted by BulkAction.
const (
	ActionTerminate      = "terminate"
	ActionMarkSuspicious = "mark_suspicious"
	ActionMarkExpired    = "mark_expired"
	ActionRefresh        = "refresh"
)

// realtimeWindow is how far back the realtime view considers a session live.
const realtimeWindow = 5 * time.Minute

// SessionService is the administrative surface over the session store. It
// runs outside the tracking hot path and, unlike the tracker, reports its
// failures to the calling operator.
type SessionService struct {
	sessions      domain.SessionRepository
	notifications domain.NotificationRepository
	now           func() time.Time
}

// Option configures a SessionService.
type Option func(*SessionService)

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

func NewSessionService(sessions domain.SessionRepository, notifications domain.NotificationRepository, opts ...Option) *SessionService {
	s := &SessionService{
		sessions:      sessions,
		notifications: notifications,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionPage is one page of a session listing.
type SessionPage struct {
	Results     []*domain.SessionRecord `json:"results"`
	Count       int64                   `json:"count"`
	TotalPages  int64                   `json:"total_pages"`
	CurrentPage int                     `json:"current_page"`
	PageSize    int                     `json:"page_size"`
}

// List returns sessions matching the filter, ordered by last activity.
func (s *SessionService) List(ctx context.Context, filter domain.SessionFilter) (*SessionPage, error) {
	if filter.PageSize <= 0 {
		filter.PageSize = DefaultPageSize
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	records, total, err := s.sessions.List(ctx, filter, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sessions: %w", err)
	}

	totalPages := (total + int64(filter.PageSize) - 1) / int64(filter.PageSize)
	page := filter.Page
	if totalPages > 0 && int64(page) > totalPages {
		page = int(totalPages)
	}

	if records == nil {
		records = []*domain.SessionRecord{}
	}
	return &SessionPage{
		Results:     records,
		Count:       total,
		TotalPages:  totalPages,
		CurrentPage: page,
		PageSize:    filter.PageSize,
	}, nil
}

// Get returns one session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*domain.SessionRecord, error) {
	return s.sessions.GetByID(ctx, id)
}

// Terminate force-terminates the given sessions.
func (s *SessionService) Terminate(ctx context.Context, ids []string, reason string) (int64, error) {
	if len(ids) == 0 {
		return 0, domain.ErrNoSessionIDs
	}
	if reason == "" {
		reason = DefaultTerminationReason
	}
	return s.sessions.TerminateByIDs(ctx, ids, reason, s.now().UTC())
}

// BulkResult reports the outcome of a bulk action.
type BulkResult struct {
	Message      string `json:"message"`
	UpdatedCount int64  `json:"updated_count"`
}

// BulkAction applies one of the named operator actions to the given
// sessions. Refresh re-derives expired-vs-active purely from expires_at,
// independent of the anomaly classifier.
func (s *SessionService) BulkAction(ctx context.Context, ids []string, action, reason string) (*BulkResult, error) {
	if len(ids) == 0 {
		return nil, domain.ErrNoSessionIDs
	}

	switch action {
	case ActionTerminate:
		count, err := s.Terminate(ctx, ids, reason)
		if err != nil {
			return nil, err
		}
		return &BulkResult{
			Message:      fmt.Sprintf("Successfully terminated %d sessions", count),
			UpdatedCount: count,
		}, nil

	case ActionMarkSuspicious:
		count, err := s.sessions.SetStatusByIDs(ctx, ids, domain.SessionStatusSuspicious)
		if err != nil {
			return nil, err
		}
		return &BulkResult{
			Message:      fmt.Sprintf("Successfully marked %d sessions as suspicious", count),
			UpdatedCount: count,
		}, nil

	case ActionMarkExpired:
		count, err := s.sessions.SetStatusByIDs(ctx, ids, domain.SessionStatusExpired)
		if err != nil {
			return nil, err
		}
		return &BulkResult{
			Message:      fmt.Sprintf("Successfully marked %d sessions as expired", count),
			UpdatedCount: count,
		}, nil

	case ActionRefresh:
		expired, activated, err := s.sessions.RefreshByIDs(ctx, ids, s.now().UTC())
		if err != nil {
			return nil, err
		}
		return &BulkResult{
			Message:      fmt.Sprintf("Refreshed %d sessions (%d expired, %d active)", expired+activated, expired, activated),
			UpdatedCount: expired + activated,
		}, nil

	default:
		return nil, domain.ErrInvalidBulkAction
	}
}

// Metrics returns aggregate session statistics.
func (s *SessionService) Metrics(ctx context.Context) (*domain.SessionMetrics, error) {
	return s.sessions.Metrics(ctx, s.now().UTC())
}

// Realtime returns the live monitoring snapshot: sessions active or
// suspicious within the last five minutes, the last day's security alerts
// and today's statistics.
func (s *SessionService) Realtime(ctx context.Context) (*domain.RealtimeSnapshot, error) {
	now := s.now().UTC()
	recent := now.Add(-realtimeWindow)

	active, err := s.sessions.ListByStatusSince(ctx, domain.SessionStatusActive, recent, 0)
	if err != nil {
		return nil, err
	}
	suspicious, err := s.sessions.ListByStatusSince(ctx, domain.SessionStatusSuspicious, recent, 0)
	if err != nil {
		return nil, err
	}

	alerts, err := s.notifications.ListRecentSecurityAlerts(ctx, now.Add(-24*time.Hour), 10)
	if err != nil {
		return nil, err
	}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	sessionsToday, err := s.sessions.CountCreatedSince(ctx, startOfDay)
	if err != nil {
		return nil, err
	}
	suspiciousToday, err := s.sessions.CountByStatusCreatedSince(ctx, domain.SessionStatusSuspicious, startOfDay)
	if err != nil {
		return nil, err
	}
	uniqueIPs, err := s.sessions.CountDistinctIPsSince(ctx, startOfDay)
	if err != nil {
		return nil, err
	}

	if alerts == nil {
		alerts = []*domain.Notification{}
	}
	return &domain.RealtimeSnapshot{
		ActiveSessions:     truncateKeys(active),
		SuspiciousSessions: truncateKeys(suspicious),
		SecurityAlerts:     alerts,
		Statistics: domain.RealtimeStats{
			TotalActive:             len(active),
			TotalSuspicious:         len(suspicious),
			TotalSessionsToday:      sessionsToday,
			SuspiciousSessionsToday: suspiciousToday,
			UniqueIPsToday:          uniqueIPs,
			SecurityAlertsCount:     len(alerts),
		},
	}, nil
}

// truncateKeys copies the records with abbreviated session keys; the full
// key never leaves the realtime payload.
func truncateKeys(records []*domain.SessionRecord) []*domain.SessionRecord {
	out := make([]*domain.SessionRecord, 0, len(records))
	for _, rec := range records {
		clone := *rec
		if len(clone.SessionKey) > 8 {
			clone.SessionKey = clone.SessionKey[:8] + "..."
		}
		out = append(out, &clone)
	}
	return out
}
