package eventlog

import (
	"context"
	"testing"
)

func TestEventTypeConstants(t *testing.T) {
	// Verify all event types are defined as expected
	expectedEvents := map[EventType]string{
		EventSessionStarted: "session_started",
		EventConnected:      "connected",
		EventReconnected:    "reconnected",
		EventQueueDesync:    "queue_desync",
		EventUnitSubmitted:  "unit_submitted",
		EventUnitCompleted:  "unit_completed",
		EventEndOfInput:     "end_of_input",
		EventSessionEnded:   "session_ended",
	}

	for eventType, expectedValue := range expectedEvents {
		if string(eventType) != expectedValue {
			t.Errorf("EventType %q = %q, want %q", expectedValue, string(eventType), expectedValue)
		}
	}
}

func TestLogWithNilDB(t *testing.T) {
	// Logger with nil DB should silently skip without error
	logger := New(nil)

	err := logger.Log(context.Background(), "session-1", EventConnected, map[string]any{"attempt": 1})
	if err != nil {
		t.Errorf("Log with nil DB returned error: %v", err)
	}

	// LogAsync with nil DB must not panic
	logger.LogAsync("session-1", EventConnected, nil)
}

func TestLogWithEmptySessionID(t *testing.T) {
	logger := New(nil)

	err := logger.Log(context.Background(), "", EventConnected, nil)
	if err != nil {
		t.Errorf("Log with empty session ID returned error: %v", err)
	}
}
