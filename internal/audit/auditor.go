package audit

import (
	"sync"
	"time"

	"agentauth/pkg/logging"
)

// LogAuditor writes audit events as structured log lines with a
// SECURITY_AUDIT marker, matching the append-only log collaborator's
// ingestion format. Session IDs are truncated before logging.
type LogAuditor struct{}

// NewLogAuditor creates an auditor backed by the logging package.
func NewLogAuditor() *LogAuditor {
	return &LogAuditor{}
}

// LogEvent implements Auditor.
func (a *LogAuditor) LogEvent(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	switch event.Severity {
	case SeverityCritical, SeverityError:
		logging.Error("Audit", nil, "SECURITY_AUDIT: category=%s success=%t user=%s session=%s client=%s error=%q severity=%s",
			event.Category, event.Success, event.UserID,
			logging.TruncateSessionID(event.SessionID), event.ClientID,
			event.ErrorMessage, event.Severity)
	case SeverityWarning:
		logging.Warn("Audit", "SECURITY_AUDIT: category=%s success=%t user=%s session=%s client=%s error=%q",
			event.Category, event.Success, event.UserID,
			logging.TruncateSessionID(event.SessionID), event.ClientID,
			event.ErrorMessage)
	default:
		logging.Info("Audit", "SECURITY_AUDIT: category=%s success=%t user=%s session=%s client=%s",
			event.Category, event.Success, event.UserID,
			logging.TruncateSessionID(event.SessionID), event.ClientID)
	}
}

// Recorder is an in-memory, append-only auditor. It is used by tests and
// by the status command to surface recent security events.
type Recorder struct {
	mu     sync.RWMutex
	events []Event
}

// NewRecorder creates an empty in-memory auditor.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// LogEvent implements Auditor.
func (r *Recorder) LogEvent(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of all recorded events in emission order.
func (r *Recorder) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// EventsByCategory returns recorded events matching the given category.
func (r *Recorder) EventsByCategory(category Category) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Event
	for _, e := range r.events {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

// Multi fans a single event out to several auditors.
type Multi []Auditor

// LogEvent implements Auditor.
func (m Multi) LogEvent(event Event) {
	for _, a := range m {
		if a != nil {
			a.LogEvent(event)
		}
	}
}
