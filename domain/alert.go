package domain

import (
	"context"
	"time"
)

// Notification types and priorities used by the alert sink.
const (
	NotificationTypeSecurityAlert = "security_alert"
	NotificationPriorityHigh      = "high"
)

// SecurityAlertEvent is handed to the alert sink when a session enters the
// suspicious state. It is transient from the engine's point of view; whether
// and how it is persisted is the sink's concern.
type SecurityAlertEvent struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Reason    string    `json:"reason"`
	Location  string    `json:"location,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notification is an operator-facing alert record as stored by the
// notification sink and surfaced in the realtime view.
type Notification struct {
	ID        string         `bson:"_id,omitempty" json:"id"`
	UserID    string         `bson:"user_id" json:"user_id"`
	Type      string         `bson:"type" json:"type"`
	Title     string         `bson:"title" json:"title"`
	Message   string         `bson:"message" json:"message"`
	Data      map[string]any `bson:"data,omitempty" json:"data,omitempty"`
	Priority  string         `bson:"priority" json:"priority"`
	IsRead    bool           `bson:"is_read" json:"is_read"`
	CreatedAt time.Time      `bson:"created_at" json:"created_at"`
}

// Operator is a principal that receives security alerts.
type Operator struct {
	ID       string `bson:"_id" json:"id"`
	Username string `bson:"username" json:"username"`
	Email    string `bson:"email,omitempty" json:"email,omitempty"`
}

// AlertSink receives security-alert events addressed to the given operators.
// Implementations must be best-effort: a sink failure is logged by the caller
// and never rolls back the session transition that produced the event.
type AlertSink interface {
	Send(ctx context.Context, event SecurityAlertEvent, operators []Operator) error
}

// OperatorDirectory lists the principals that should receive security alerts.
type OperatorDirectory interface {
	ListOperators(ctx context.Context) ([]Operator, error)
}
