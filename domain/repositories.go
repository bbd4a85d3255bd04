package domain

import (
	"context"
	"time"
)

// SessionRepository is the durable store behind the tracking engine and the
// admin surface. Bulk mutations (terminate, refresh, expire, purge) must be
// set-based conditional updates so concurrent workers cannot corrupt fields
// they do not own.
type SessionRepository interface {
	// GetOrCreate inserts the candidate record or, when a record with the
	// same session key already exists (including the concurrent-insert
	// race), reloads and returns that one. The boolean reports whether a
	// new record was created.
	GetOrCreate(ctx context.Context, candidate *SessionRecord) (*SessionRecord, bool, error)

	// Update persists the record's activity fields: last_activity,
	// ip_address, user_agent, status, termination_reason, terminated_at
	// and is_terminated.
	Update(ctx context.Context, rec *SessionRecord) error

	GetByID(ctx context.Context, id string) (*SessionRecord, error)

	// List returns one page of sessions matching the filter, ordered by
	// last_activity descending, plus the total match count.
	List(ctx context.Context, filter SessionFilter, now time.Time) ([]*SessionRecord, int64, error)

	// CountTouchedSince counts the user's session records with activity at
	// or after the given instant, regardless of status.
	CountTouchedSince(ctx context.Context, userID string, since time.Time) (int64, error)

	// CountConcurrentActive counts the user's active records with recent
	// activity, excluding those at the given IP.
	CountConcurrentActive(ctx context.Context, userID string, since time.Time, excludeIP string) (int64, error)

	TerminateByIDs(ctx context.Context, ids []string, reason string, now time.Time) (int64, error)
	SetStatusByIDs(ctx context.Context, ids []string, status SessionStatus) (int64, error)

	// RefreshByIDs re-derives expired-vs-active purely from expires_at:
	// records past their deadline become expired, the rest active.
	RefreshByIDs(ctx context.Context, ids []string, now time.Time) (expired, activated int64, err error)

	// ExpireStale marks active records past their deadline as expired.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)

	// PurgeTerminatedBefore hard-deletes terminated records whose last
	// activity is older than the cutoff.
	PurgeTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Metrics(ctx context.Context, now time.Time) (*SessionMetrics, error)

	ListByStatusSince(ctx context.Context, status SessionStatus, since time.Time, limit int) ([]*SessionRecord, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
	CountByStatusCreatedSince(ctx context.Context, status SessionStatus, since time.Time) (int64, error)
	CountDistinctIPsSince(ctx context.Context, since time.Time) (int64, error)
}

// LoginAttemptRepository stores reported authentication attempts.
type LoginAttemptRepository interface {
	Record(ctx context.Context, attempt *LoginAttempt) error

	// CountFailedSince counts failed attempts for the user since the given
	// instant. When userID is empty the count is scoped to the IP instead.
	CountFailedSince(ctx context.Context, userID, ip string, since time.Time) (int64, error)
}

// NotificationRepository persists operator notifications and serves the
// realtime view's recent-alert query.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListRecentSecurityAlerts(ctx context.Context, since time.Time, limit int) ([]*Notification, error)
}
