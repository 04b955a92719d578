package scheduler

import (
	"encoding/json"

	"github.com/open-harness/loom/internal/events"
)

// MatchEvent reports whether e fires trigger. ScheduleTriggered events are
// always rejected regardless of trigger: the scheduler's own firings must
// never be able to re-trigger a schedule entry.
func MatchEvent(e events.Event, trigger *EventTrigger) bool {
	if trigger == nil {
		return false
	}
	if e.Name == events.ScheduleTriggered {
		return false
	}
	if trigger.SessionID != "" && trigger.SessionID != e.SessionID {
		return false
	}
	if !trigger.Event.Matches(e.Name) {
		return false
	}
	if len(trigger.Filter) == 0 {
		return true
	}

	data, err := json.Marshal(e.Payload)
	if err != nil {
		return false
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	for key, expected := range trigger.Filter {
		val, ok := fields[key]
		if !ok {
			return false
		}
		strVal, ok := val.(string)
		if !ok || strVal != expected {
			return false
		}
	}
	return true
}
