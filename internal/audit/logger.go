// Package audit records operator actions on the admin surface as structured
// log events. The audit trail is append-only stdout; shipping it somewhere
// durable is the log pipeline's job.
package audit

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var auditLogger = zerolog.New(os.Stdout).With().Timestamp().Str("stream", "audit").Logger()

// Log records one operator action against the given session ids.
func Log(action, operator string, sessionIDs []string, reason string, err error) {
	e := auditLogger.Log().
		Str("action", action).
		Str("operator", operator).
		Str("sessions", strings.Join(sessionIDs, ",")).
		Bool("success", err == nil)
	if reason != "" {
		e = e.Str("reason", reason)
	}
	if err != nil {
		e = e.Str("error", err.Error())
	}
	e.Msg("Operator action")
}
