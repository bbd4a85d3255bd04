// Package tracker is the session activity tracking engine. Track is invoked
// on every authenticated request; it maintains one session record per
// session key, classifies activity for anomalies and drives the lifecycle
// state machine. Nothing in this package may fail the request it rides on:
// every fault is logged and swallowed at this boundary.
package tracker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/sentinel/domain"
	"go.pilab.hu/sentinel/internal/anomaly"
	"go.pilab.hu/sentinel/internal/fingerprint"
	"go.pilab.hu/sentinel/internal/metrics"
)

// DefaultSessionTTL is the absolute session deadline applied on creation.
const DefaultSessionTTL = 14 * 24 * time.Hour

// SessionStore is the slice of the session repository the hot path writes.
type SessionStore interface {
	GetOrCreate(ctx context.Context, candidate *domain.SessionRecord) (*domain.SessionRecord, bool, error)
	Update(ctx context.Context, rec *domain.SessionRecord) error
}

// AttemptRecorder stores reported login attempts.
type AttemptRecorder interface {
	Record(ctx context.Context, attempt *domain.LoginAttempt) error
}

// Tracker ties the extractor, store, classifier and alert sink together.
type Tracker struct {
	extractor  *fingerprint.Extractor
	sessions   SessionStore
	attempts   AttemptRecorder
	classifier *anomaly.Classifier
	alerts     domain.AlertSink
	operators  domain.OperatorDirectory
	sessionTTL time.Duration
	now        func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithSessionTTL overrides the default absolute session deadline.
func WithSessionTTL(ttl time.Duration) Option {
	return func(t *Tracker) { t.sessionTTL = ttl }
}

func New(
	extractor *fingerprint.Extractor,
	sessions SessionStore,
	attempts AttemptRecorder,
	classifier *anomaly.Classifier,
	alerts domain.AlertSink,
	operators domain.OperatorDirectory,
	opts ...Option,
) *Tracker {
	t := &Tracker{
		extractor:  extractor,
		sessions:   sessions,
		attempts:   attempts,
		classifier: classifier,
		alerts:     alerts,
		operators:  operators,
		sessionTTL: DefaultSessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track records one observed request. It is best-effort side-channel
// instrumentation: all failures are terminal here and the caller's response
// is never affected.
func (t *Tracker) Track(ctx context.Context, req fingerprint.Request) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Session tracking panicked")
		}
	}()

	key, fp, ok := t.extractor.Extract(req)
	if !ok {
		return
	}

	now := t.now().UTC()
	expiresAt := now.Add(t.sessionTTL)

	candidate := &domain.SessionRecord{
		SessionKey:   key,
		UserID:       req.Principal.ID,
		Username:     req.Principal.Username,
		UserEmail:    req.Principal.Email,
		UserRole:     req.Principal.Role,
		Organization: req.Principal.Organization,
		IPAddress:    fp.IPAddress,
		UserAgent:    fp.UserAgent,
		DeviceType:   fp.DeviceType,
		Browser:      fp.Browser,
		OS:           fp.OS,
		Location:     fp.Location,
		Status:       domain.SessionStatusActive,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    &expiresAt,
	}

	rec, created, err := t.sessions.GetOrCreate(ctx, candidate)
	if err != nil {
		metrics.TrackingErrorsTotal.Inc()
		log.Error().Err(err).Str("session_key", key).Msg("Session tracking error")
		return
	}

	metrics.ActivitiesTrackedTotal.Inc()
	if created {
		metrics.SessionsCreatedTotal.Inc()
		return
	}

	// Renewed valid activity reactivates a terminated or expired session.
	// Termination is advisory here, not a hard block.
	if rec.Status == domain.SessionStatusTerminated || rec.Status == domain.SessionStatusExpired {
		rec.Status = domain.SessionStatusActive
		rec.TerminationReason = ""
		rec.TerminatedAt = nil
		rec.IsTerminated = false
	}

	rec.LastActivity = now

	// Classification compares the stored fingerprint against the incoming
	// one, so it must run before the overwrite below.
	if reason := t.classifier.Classify(ctx, rec, fp, now); reason != nil {
		rec.Status = domain.SessionStatusSuspicious
		rec.TerminationReason = reason.Message
		metrics.SuspiciousFlaggedTotal.Inc()
		t.emitAlert(ctx, rec, fp, reason, now)
	}

	// The stored fingerprint always reflects the most recent observation.
	rec.IPAddress = fp.IPAddress
	rec.UserAgent = fp.UserAgent
	rec.DeviceType = fp.DeviceType
	rec.Browser = fp.Browser
	rec.OS = fp.OS
	rec.Location = fp.Location

	if err := t.sessions.Update(ctx, rec); err != nil {
		metrics.TrackingErrorsTotal.Inc()
		log.Error().Err(err).Str("session_key", key).Msg("Session tracking error")
	}
}

// emitAlert fans the event out to every operator. Sink and directory faults
// never roll back the suspicious transition that triggered them.
func (t *Tracker) emitAlert(ctx context.Context, rec *domain.SessionRecord, fp domain.Fingerprint, reason *anomaly.Reason, now time.Time) {
	operators, err := t.operators.ListOperators(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Error listing alert recipients")
		return
	}

	event := domain.SecurityAlertEvent{
		SessionID: rec.ID,
		UserID:    rec.UserID,
		Username:  rec.Username,
		IPAddress: fp.IPAddress,
		UserAgent: fp.UserAgent,
		Reason:    reason.Message,
		Location:  fp.Location,
		Timestamp: now,
	}

	if err := t.alerts.Send(ctx, event, operators); err != nil {
		log.Error().Err(err).Str("session_id", rec.ID).Msg("Error creating security alert")
		return
	}
	metrics.AlertsSentTotal.Inc()
}

// RecordLoginFailure stores a failed authentication attempt reported by the
// auth frontend. These feed the brute-force anomaly check.
func (t *Tracker) RecordLoginFailure(ctx context.Context, userID, username, ip, userAgent string) {
	attempt := &domain.LoginAttempt{
		UserID:    userID,
		Username:  username,
		IPAddress: ip,
		UserAgent: userAgent,
		Succeeded: false,
		CreatedAt: t.now().UTC(),
	}
	if err := t.attempts.Record(ctx, attempt); err != nil {
		log.Error().Err(err).Msg("Error recording login failure")
	}
}
