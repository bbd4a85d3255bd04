package domain

import "time"

// SessionStatus is the lifecycle state of a tracked session.
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusSuspicious SessionStatus = "suspicious"
	SessionStatusExpired    SessionStatus = "expired"
	SessionStatusTerminated SessionStatus = "terminated"
)

// Device types derived from the user-agent string.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// SessionRecord is one row per distinct session key. It holds the last
// observed network/device fingerprint for the session and its lifecycle
// status. There is exactly one record per session key at any time; the
// session_key unique index enforces this under concurrent creation.
type SessionRecord struct {
	ID           string        `bson:"_id,omitempty" json:"id"`
	SessionKey   string        `bson:"session_key" json:"session_key"`
	UserID       string        `bson:"user_id" json:"user_id"`
	Username     string        `bson:"username,omitempty" json:"username"`
	UserEmail    string        `bson:"user_email,omitempty" json:"user_email,omitempty"`
	UserRole     string        `bson:"user_role,omitempty" json:"user_role,omitempty"`
	Organization string        `bson:"organization,omitempty" json:"organization,omitempty"`
	IPAddress    string        `bson:"ip_address,omitempty" json:"ip_address"`
	UserAgent    string        `bson:"user_agent,omitempty" json:"user_agent"`
	DeviceType   string        `bson:"device_type,omitempty" json:"device_type"`
	Browser      string        `bson:"browser,omitempty" json:"browser"`
	OS           string        `bson:"os,omitempty" json:"os"`
	Location     string        `bson:"location,omitempty" json:"location"`
	Status       SessionStatus `bson:"status" json:"status"`
	CreatedAt    time.Time     `bson:"created_at" json:"created_at"`
	LastActivity time.Time     `bson:"last_activity" json:"last_activity"`
	ExpiresAt    *time.Time    `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	TerminatedAt *time.Time    `bson:"terminated_at,omitempty" json:"terminated_at,omitempty"`
	// TerminationReason is set while the session is terminated or suspicious
	// and cleared on reactivation.
	TerminationReason string `bson:"termination_reason,omitempty" json:"termination_reason,omitempty"`
	IsTerminated      bool   `bson:"is_terminated" json:"is_terminated"`
}

// Fingerprint is the device/browser/OS/IP/location tuple observed for a
// single request.
type Fingerprint struct {
	IPAddress  string
	UserAgent  string
	DeviceType string
	Browser    string
	OS         string
	Location   string
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// IsExpired reports whether the record's absolute deadline has passed.
func (s *SessionRecord) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// Duration is the session lifetime: terminated_at minus created_at for a
// terminated session, otherwise now minus created_at. Never negative.
func (s *SessionRecord) Duration(now time.Time) time.Duration {
	end := now
	if s.IsTerminated && s.TerminatedAt != nil {
		end = *s.TerminatedAt
	}
	d := end.Sub(s.CreatedAt)
	if d < 0 {
		return 0
	}
	return d
}

// SessionFilter narrows session listings for the admin surface.
// Zero values (or "all") leave the corresponding dimension unfiltered.
type SessionFilter struct {
	Status     string
	UserID     string
	DeviceType string
	UserRole   string
	Search     string
	TimeRange  string // one of "1h", "24h", "7d", "30d", "all"
	Page       int
	PageSize   int
}

// DistributionBucket is one label/count pair in a metrics distribution.
type DistributionBucket struct {
	Label string `bson:"_id" json:"label"`
	Count int64  `bson:"count" json:"count"`
}

// SessionMetrics aggregates session statistics for the admin dashboard.
type SessionMetrics struct {
	TotalSessions        int64                `json:"total_sessions"`
	ActiveSessions       int64                `json:"active_sessions"`
	ExpiredSessions      int64                `json:"expired_sessions"`
	TerminatedSessions   int64                `json:"terminated_sessions"`
	SuspiciousSessions   int64                `json:"suspicious_sessions"`
	RecentSessions24h    int64                `json:"recent_sessions_24h"`
	UniqueActiveUsers    int64                `json:"unique_active_users"`
	DeviceDistribution   []DistributionBucket `json:"device_distribution"`
	BrowserDistribution  []DistributionBucket `json:"browser_distribution"`
	OrganizationSessions []DistributionBucket `json:"organization_sessions"`
	GeneratedAt          time.Time            `json:"generated_at"`
}

// RealtimeStats summarizes today's session activity for the realtime view.
type RealtimeStats struct {
	TotalActive             int   `json:"total_active"`
	TotalSuspicious         int   `json:"total_suspicious"`
	TotalSessionsToday      int64 `json:"total_sessions_today"`
	SuspiciousSessionsToday int64 `json:"suspicious_sessions_today"`
	UniqueIPsToday          int64 `json:"unique_ips_today"`
	SecurityAlertsCount     int   `json:"security_alerts_count"`
}

// RealtimeSnapshot is the "live" admin view: sessions active or suspicious
// within the last few minutes plus the last day's security alerts.
type RealtimeSnapshot struct {
	ActiveSessions     []*SessionRecord `json:"active_sessions"`
	SuspiciousSessions []*SessionRecord `json:"suspicious_sessions"`
	SecurityAlerts     []*Notification  `json:"security_alerts"`
	Statistics         RealtimeStats    `json:"statistics"`
}
