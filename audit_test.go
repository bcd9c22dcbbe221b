package authgate

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDispatcherStampsAndDelivers(t *testing.T) {
	sink := NewChannelSink(8)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8}, sink)
	defer d.Close()

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	ctx = WithUserAgent(ctx, "test-agent")
	d.emit(ctx, AuditEvent{EventType: auditEventLoginSuccess, Email: "user@x.com", Success: true})

	select {
	case ev := <-sink.Events():
		if ev.ID == "" {
			t.Fatal("expected a stamped event ID")
		}
		if ev.Timestamp.IsZero() || ev.Timestamp.Location() != time.UTC {
			t.Fatalf("expected a UTC timestamp, got %v", ev.Timestamp)
		}
		if ev.IP != "203.0.113.9" || ev.UserAgent != "test-agent" {
			t.Fatalf("expected request context propagated, got %+v", ev)
		}
		if ev.EventType != auditEventLoginSuccess || !ev.Success {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	// An unbuffered blocking sink: nothing is consumed, so the channel fills.
	blocked := &blockingSink{release: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, blocked)

	// First event occupies the worker, second fills the buffer, the rest drop.
	for i := 0; i < 5; i++ {
		d.emit(context.Background(), AuditEvent{EventType: auditEventLogout})
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected dropped events with a saturated buffer")
		}
		time.Sleep(time.Millisecond)
	}

	close(blocked.release)
	d.Close()
}

func TestDispatcherDisabled(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{}, NewChannelSink(1))
	if d != nil {
		t.Fatal("disabled audit config must produce a nil dispatcher")
	}
	// nil receiver paths must be safe.
	d.emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherCloseDrains(t *testing.T) {
	sink := NewChannelSink(16)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 5; i++ {
		d.emit(context.Background(), AuditEvent{EventType: auditEventLogout})
	}
	d.Close()

	received := 0
	for {
		select {
		case <-sink.Events():
			received++
			if received == 5 {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 5 events drained before close", received)
		}
	}
}

func TestJSONWriterSinkEmitsLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{ID: "id-1", EventType: auditEventOtpSent, Email: "user@x.com", Success: true})
	sink.Emit(context.Background(), AuditEvent{ID: "id-2", EventType: auditEventLogout})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if ev.ID != "id-1" || ev.EventType != auditEventOtpSent || ev.Email != "user@x.com" {
		t.Fatalf("unexpected decoded event %+v", ev)
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(ctx context.Context, event AuditEvent) {
	<-s.release
}
