// Package anomaly classifies incoming session activity against a pipeline of
// independent heuristics. Checks run in a fixed order and the first match
// wins, because each reason also determines the message surfaced to
// operators.
package anomaly

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/sentinel/domain"
)

// Code identifies which heuristic triggered.
type Code string

const (
	CodeGeoAnomaly         Code = "geo_anomaly"
	CodeIPChange           Code = "ip_change"
	CodeUserAgentChange    Code = "user_agent_change"
	CodeRequestRate        Code = "request_rate"
	CodeBruteForce         Code = "brute_force"
	CodeOffHours           Code = "off_hours"
	CodeConcurrentSessions Code = "concurrent_sessions"
)

// Reason is a triggered heuristic plus its operator-facing message.
type Reason struct {
	Code    Code
	Message string
}

// Thresholds are the tunable limits for each heuristic.
type Thresholds struct {
	RequestRateLimit   int
	RequestRateWindow  time.Duration
	BruteForceLimit    int
	BruteForceWindow   time.Duration
	BusinessHoursStart int
	BusinessHoursEnd   int
	ConcurrentLimit    int
	ConcurrentWindow   time.Duration
}

// DefaultThresholds returns the stock limits: >100 touches/min, >5 failed
// logins/15min, business hours 06:00-22:00, >2 other sessions/30min.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RequestRateLimit:   100,
		RequestRateWindow:  time.Minute,
		BruteForceLimit:    5,
		BruteForceWindow:   15 * time.Minute,
		BusinessHoursStart: 6,
		BusinessHoursEnd:   22,
		ConcurrentLimit:    2,
		ConcurrentWindow:   30 * time.Minute,
	}
}

// SessionCounter is the slice of the session store the heuristics read.
type SessionCounter interface {
	CountTouchedSince(ctx context.Context, userID string, since time.Time) (int64, error)
	CountConcurrentActive(ctx context.Context, userID string, since time.Time, excludeIP string) (int64, error)
}

// AttemptCounter counts reported failed login attempts.
type AttemptCounter interface {
	CountFailedSince(ctx context.Context, userID, ip string, since time.Time) (int64, error)
}

// Classifier evaluates a stored session record against incoming activity.
type Classifier struct {
	sessions SessionCounter
	attempts AttemptCounter
	cfg      Thresholds
}

func NewClassifier(sessions SessionCounter, attempts AttemptCounter, cfg Thresholds) *Classifier {
	return &Classifier{sessions: sessions, attempts: attempts, cfg: cfg}
}

// Classify runs the heuristics against an already-existing record and the
// incoming fingerprint. It returns the first triggered reason, or nil. A
// failing sub-check is treated as non-triggering; classification never
// surfaces an error to the caller.
func (c *Classifier) Classify(ctx context.Context, rec *domain.SessionRecord, incoming domain.Fingerprint, now time.Time) *Reason {
	// 1. IP change, with the geographic variant taking priority.
	if rec.IPAddress != "" && rec.IPAddress != incoming.IPAddress {
		if isGeographicAnomaly(rec.IPAddress, incoming.IPAddress) {
			return &Reason{
				Code:    CodeGeoAnomaly,
				Message: fmt.Sprintf("Unusual geographic login: IP changed from %s to %s", rec.IPAddress, incoming.IPAddress),
			}
		}
		return &Reason{
			Code:    CodeIPChange,
			Message: fmt.Sprintf("IP address changed from %s to %s", rec.IPAddress, incoming.IPAddress),
		}
	}

	// 2. Raw user-agent change (the stored raw string, not the parsed form).
	if rec.UserAgent != "" && rec.UserAgent != incoming.UserAgent {
		return &Reason{
			Code:    CodeUserAgentChange,
			Message: fmt.Sprintf("User agent changed from %s to %s", rec.UserAgent, incoming.UserAgent),
		}
	}

	// 3. Request rate: how many of the user's session records were touched
	// within the window. Intentionally coarse; it counts records, not
	// requests, and is system-wide for the user rather than per key.
	if touched, err := c.sessions.CountTouchedSince(ctx, rec.UserID, now.Add(-c.cfg.RequestRateWindow)); err != nil {
		log.Debug().Err(err).Msg("request rate check failed, skipping")
	} else if touched > int64(c.cfg.RequestRateLimit) {
		return &Reason{
			Code:    CodeRequestRate,
			Message: fmt.Sprintf("High frequency requests detected: %d requests in 1 minute", touched),
		}
	}

	// 4. Brute force: failed login attempts reported for this user.
	if failed, err := c.attempts.CountFailedSince(ctx, rec.UserID, incoming.IPAddress, now.Add(-c.cfg.BruteForceWindow)); err != nil {
		log.Debug().Err(err).Msg("brute force check failed, skipping")
	} else if failed > int64(c.cfg.BruteForceLimit) {
		return &Reason{
			Code:    CodeBruteForce,
			Message: fmt.Sprintf("Potential brute force attack detected from IP %s", incoming.IPAddress),
		}
	}

	// 5. Activity outside business hours.
	if hour := now.Hour(); hour < c.cfg.BusinessHoursStart || hour > c.cfg.BusinessHoursEnd {
		return &Reason{
			Code:    CodeOffHours,
			Message: fmt.Sprintf("Unusual login time: %d:00", hour),
		}
	}

	// 6. Concurrent sessions from other IPs. The reported count includes
	// the current session, hence the +1.
	if others, err := c.sessions.CountConcurrentActive(ctx, rec.UserID, now.Add(-c.cfg.ConcurrentWindow), incoming.IPAddress); err != nil {
		log.Debug().Err(err).Msg("concurrent session check failed, skipping")
	} else if others > int64(c.cfg.ConcurrentLimit) {
		return &Reason{
			Code:    CodeConcurrentSessions,
			Message: fmt.Sprintf("Multiple concurrent sessions detected: %d active sessions", others+1),
		}
	}

	return nil
}

// isGeographicAnomaly approximates "different location" by comparing the
// first two dotted-decimal octets. A stand-in for real geolocation.
func isGeographicAnomaly(oldIP, newIP string) bool {
	oldParts := strings.Split(oldIP, ".")
	newParts := strings.Split(newIP, ".")
	if len(oldParts) < 2 || len(newParts) < 2 {
		return false
	}
	return oldParts[0] != newParts[0] || oldParts[1] != newParts[1]
}
