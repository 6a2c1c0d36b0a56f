// Package audit emits one structured JSON event per authenticated request
// or security-relevant action. Events never carry secrets.
package audit

import (
	"time"

	"go.uber.org/zap"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeFailure = "failure"
)

// Event is one audit record.
type Event struct {
	UserID       string
	SourceIP     string
	UserAgent    string
	ResourceType string
	ResourceID   string
	Action       string
	Outcome      string
	Details      map[string]string
}

// Logger writes audit events through a dedicated zap logger so the stream
// can be routed separately from application logs.
type Logger struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log.Named("Audit")}
}

// Emit writes one event line. The timestamp is always UTC ISO-8601.
func (l *Logger) Emit(ev Event) {
	fields := []zap.Field{
		zap.String("ts", time.Now().UTC().Format(time.RFC3339)),
		zap.String("user_id", ev.UserID),
		zap.String("source_ip", ev.SourceIP),
		zap.String("user_agent", ev.UserAgent),
		zap.String("resource_type", ev.ResourceType),
		zap.String("resource_id", ev.ResourceID),
		zap.String("action", ev.Action),
		zap.String("outcome", ev.Outcome),
	}
	if len(ev.Details) > 0 {
		fields = append(fields, zap.Any("details", ev.Details))
	}
	l.log.Info("audit", fields...)
}
