package scheduler

import (
	"testing"

	"github.com/open-harness/loom/internal/events"
)

func makeEvent(name events.Name, sessionID string, payload any) events.Event {
	return events.Event{ID: "test-1", Name: name, SessionID: sessionID, Payload: payload}
}

func TestMatchEvent_BasicMatch(t *testing.T) {
	trigger := &EventTrigger{Event: events.Filter(events.TaskComplete)}
	e := makeEvent(events.TaskComplete, "sess_1", nil)

	if !MatchEvent(e, trigger) {
		t.Fatal("expected match for matching event name")
	}
}

func TestMatchEvent_NameMismatch(t *testing.T) {
	trigger := &EventTrigger{Event: events.Filter(events.TaskComplete)}
	e := makeEvent(events.TaskFailed, "sess_1", nil)

	if MatchEvent(e, trigger) {
		t.Fatal("expected no match for different event name")
	}
}

func TestMatchEvent_NilTrigger(t *testing.T) {
	e := makeEvent(events.TaskComplete, "sess_1", nil)

	if MatchEvent(e, nil) {
		t.Fatal("expected no match for nil trigger")
	}
}

func TestMatchEvent_RejectsScheduleTriggered(t *testing.T) {
	trigger := &EventTrigger{Event: events.MatchAll}
	e := makeEvent(events.ScheduleTriggered, "sess_1", nil)

	if MatchEvent(e, trigger) {
		t.Fatal("expected no match for a schedule-triggered event (loop prevention)")
	}
}

func TestMatchEvent_SessionMismatch(t *testing.T) {
	trigger := &EventTrigger{Event: events.MatchAll, SessionID: "sess_a"}
	e := makeEvent(events.TaskComplete, "sess_b", nil)

	if MatchEvent(e, trigger) {
		t.Fatal("expected no match when trigger is scoped to a different session")
	}
}

func TestMatchEvent_FilterMatch(t *testing.T) {
	trigger := &EventTrigger{
		Event:  events.Filter(events.TaskComplete),
		Filter: map[string]string{"name": "deploy"},
	}
	e := makeEvent(events.TaskComplete, "sess_1", events.TaskCompletePayload{Name: "deploy"})

	if !MatchEvent(e, trigger) {
		t.Fatal("expected match when filter matches payload")
	}
}

func TestMatchEvent_FilterMismatch(t *testing.T) {
	trigger := &EventTrigger{
		Event:  events.Filter(events.TaskComplete),
		Filter: map[string]string{"name": "deploy"},
	}
	e := makeEvent(events.TaskComplete, "sess_1", events.TaskCompletePayload{Name: "build"})

	if MatchEvent(e, trigger) {
		t.Fatal("expected no match when filter value differs")
	}
}

func TestMatchEvent_FilterMissingKey(t *testing.T) {
	trigger := &EventTrigger{
		Event:  events.Filter(events.TaskComplete),
		Filter: map[string]string{"name": "deploy"},
	}
	e := makeEvent(events.TaskComplete, "sess_1", map[string]any{})

	if MatchEvent(e, trigger) {
		t.Fatal("expected no match when filter key is missing from payload")
	}
}
