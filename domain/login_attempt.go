package domain

import "time"

// LoginAttempt records one authentication attempt as reported by the auth
// frontend. Failed attempts feed the brute-force anomaly check; the session
// records themselves never carry a "failed" status.
type LoginAttempt struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	UserID    string    `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Username  string    `bson:"username,omitempty" json:"username,omitempty"`
	IPAddress string    `bson:"ip_address,omitempty" json:"ip_address"`
	UserAgent string    `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	Succeeded bool      `bson:"succeeded" json:"succeeded"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
