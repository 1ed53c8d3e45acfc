package bus

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ricesearch/fairrank/internal/pkg/logger"
)

func TestEventLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "journal", "events.log")

	t.Run("Disabled", func(t *testing.T) {
		el, err := NewEventLogger(logPath, false)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer el.Close()

		if el.IsEnabled() {
			t.Error("Expected logger to be disabled")
		}
		if err := el.Log("t", Event{ID: "x"}); err != nil {
			t.Errorf("Log on disabled logger = %v", err)
		}
		if _, err := el.GetEvents("", time.Time{}, 0); err == nil {
			t.Error("GetEvents on disabled logger should fail")
		}
	})

	t.Run("LogAndRead", func(t *testing.T) {
		el, err := NewEventLogger(logPath, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer el.Close()

		for _, id := range []string{"a", "b", "c"} {
			ev, err := NewEvent(EventReportCreated, "test", map[string]string{"id": id})
			if err != nil {
				t.Fatal(err)
			}
			topic := TopicReportCreated
			if id == "b" {
				topic = "other.topic"
			}
			if err := el.Log(topic, ev); err != nil {
				t.Fatalf("Log failed: %v", err)
			}
		}

		all, err := el.GetEvents("", time.Now().Add(-time.Minute), 0)
		if err != nil {
			t.Fatalf("GetEvents failed: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("len(all) = %d, want 3", len(all))
		}

		reports, err := el.GetEvents(TopicReportCreated, time.Time{}, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(reports) != 2 {
			t.Fatalf("len(reports) = %d, want 2", len(reports))
		}
		var payload map[string]string
		if err := reports[1].Event.Decode(&payload); err != nil {
			t.Fatal(err)
		}
		if payload["id"] != "c" {
			t.Errorf("second report payload = %v, want c", payload)
		}

		limited, _ := el.GetEvents("", time.Time{}, 1)
		if len(limited) != 1 {
			t.Errorf("limit 1 returned %d events", len(limited))
		}

		future, _ := el.GetEvents("", time.Now().Add(time.Hour), 0)
		if len(future) != 0 {
			t.Errorf("since future returned %d events", len(future))
		}
	})

	t.Run("SkipsMalformedLines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.log")
		content := "not json\n" + `{"event":{"id":"ok","type":"t"},"topic":"x","timestamp":"2030-01-01T00:00:00Z"}` + "\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		events, err := ReadEvents(path, "", time.Time{}, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 || events[0].Event.ID != "ok" {
			t.Errorf("events = %+v", events)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		events, err := ReadEvents(filepath.Join(t.TempDir(), "absent.log"), "", time.Time{}, 0)
		if err != nil || len(events) != 0 {
			t.Errorf("ReadEvents(missing) = %v, %v", events, err)
		}
	})

	t.Run("LogAfterClose", func(t *testing.T) {
		el, err := NewEventLogger(filepath.Join(t.TempDir(), "closed.log"), true)
		if err != nil {
			t.Fatal(err)
		}
		el.Close()
		if err := el.Log("t", Event{ID: "late"}); err == nil {
			t.Error("Log after Close should fail")
		}
	})
}

func TestLoggedBus(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logged_bus.log")

	innerBus := NewMemoryBus(logger.Discard())
	journal, err := NewEventLogger(logPath, true)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	loggedBus := NewLoggedBus(innerBus, journal, logger.Discard())
	if loggedBus.Journal() != journal {
		t.Error("Journal() returned a different logger")
	}

	received := make(chan Event, 1)
	ctx := context.Background()
	if err := loggedBus.Subscribe(ctx, TopicReportCreated, func(ctx context.Context, ev Event) error {
		received <- ev
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := loggedBus.Publish(ctx, TopicReportCreated, Event{ID: "test-pub", Type: EventReportCreated}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case ev := <-received:
		if ev.ID != "test-pub" {
			t.Errorf("received %s, want test-pub", ev.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered to inner bus")
	}

	if err := loggedBus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"test-pub"`) {
		t.Errorf("journal does not contain the event:\n%s", data)
	}
}
