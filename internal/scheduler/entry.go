package scheduler

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/open-harness/loom/internal/events"
)

// EventTrigger describes an event-based trigger for a schedule entry: Event
// selects which event Names fire it using the same Filter semantics the bus
// subscribes with ("*", "prefix:*", or an exact Name), SessionID narrows to
// one session's events ("" means any session), and Filter, if non-empty,
// requires payload fields to match exactly once the event's payload is
// JSON round-tripped into a map.
type EventTrigger struct {
	Event     events.Filter     `json:"event"`
	SessionID string            `json:"session_id,omitempty"`
	Filter    map[string]string `json:"filter,omitempty"`
}

// ScheduleEntry is a persistent schedule entry. On each firing (cron,
// interval, or a matching event) it starts a new workflow session with
// WorkflowName/Input — the same arguments scaffold.Scaffold.CreateSession
// takes.
type ScheduleEntry struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	CronSpec     string        `json:"cron_spec,omitempty"`
	IntervalSec  int           `json:"interval_sec,omitempty"`
	OnEvent      *EventTrigger `json:"on_event,omitempty"`
	WorkflowName string        `json:"workflow_name"`
	Input        string        `json:"input,omitempty"`
	CooldownSec  int           `json:"cooldown_sec"`
	MaxRuns      int           `json:"max_runs,omitempty"`
	RunCount     int           `json:"run_count"`
	Enabled      bool          `json:"enabled"`
	CreatedAt    time.Time     `json:"created_at"`
	LastRunAt    *time.Time    `json:"last_run_at,omitempty"`
}

// GenerateScheduleID creates a unique schedule identifier with a "sched_"
// prefix.
func GenerateScheduleID() string {
	u := uuid.New().String()
	return "sched_" + strings.ReplaceAll(u[:8], "-", "")
}
