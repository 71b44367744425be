package web

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/turretctl/turretd/internal/hw/stepper"
	"github.com/turretctl/turretd/internal/logic/motion"
)

func receive(t *testing.T, ch <-chan string) StatusEvent {
	t.Helper()
	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal %q: %v", msg, err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
	return StatusEvent{}
}

func TestBroadcaster_LogLines(t *testing.T) {
	cases := []struct {
		name      string
		send      func(b *StatusBroadcaster)
		wantLevel string
		wantMsg   string
	}{
		{"broadcast", func(b *StatusBroadcaster) { b.Broadcast("warn", "hello") }, "warn", "hello"},
		{"broadcast_msg", func(b *StatusBroadcaster) { b.BroadcastMsg("convenience") }, "info", "convenience"},
		{"writer_trims", func(b *StatusBroadcaster) { BroadcastWriter(b).Write([]byte("  [turretd] line  \n")) }, "info", "[turretd] line"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewStatusBroadcaster()
			ch, unsub := b.Subscribe()
			defer unsub()

			tc.send(b)
			evt := receive(t, ch)
			if evt.Level != tc.wantLevel || evt.Msg != tc.wantMsg {
				t.Errorf("event = %+v, want level %q msg %q", evt, tc.wantLevel, tc.wantMsg)
			}
			if evt.Time == "" {
				t.Error("event should have a timestamp")
			}
			if evt.Status != nil {
				t.Error("log event should not carry a status")
			}
		})
	}
}

func TestBroadcaster_Status(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.BroadcastStatus(motion.Status{
		Event: "fire",
		Shots: 2,
		Axes:  []stepper.Status{{Name: "draw", State: "stepping", Position: 10, Target: 875, Speed: 25}},
	})

	evt := receive(t, ch)
	if evt.Level != "status" || evt.Status == nil {
		t.Fatalf("event = %+v", evt)
	}
	if evt.Status.Event != "fire" || evt.Status.Shots != 2 || evt.Status.Axes[0].Target != 875 {
		t.Errorf("status = %+v", evt.Status)
	}
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewStatusBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	if b.Clients() != 2 {
		t.Errorf("Clients = %d, want 2", b.Clients())
	}
	b.Broadcast("info", "multi")
	for i, ch := range []<-chan string{ch1, ch2} {
		if evt := receive(t, ch); evt.Msg != "multi" {
			t.Errorf("subscriber %d: msg = %q", i, evt.Msg)
		}
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()
	unsub() // second call is a no-op

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
	if b.Clients() != 0 {
		t.Errorf("Clients = %d after unsubscribe", b.Clients())
	}
	b.Broadcast("info", "after unsub")
}

func TestBroadcaster_FullChannelDropsMessage(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < 64; i++ {
		b.Broadcast("info", "fill")
	}
	// Must not block.
	b.BroadcastStatus(motion.Status{Event: "idle"})

	count := 0
	for len(ch) > 0 {
		<-ch
		count++
	}
	if count != 64 {
		t.Errorf("expected 64 buffered messages, got %d", count)
	}
}

func TestBroadcastWriter_EmptyWriteIgnored(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	n, err := BroadcastWriter(b).Write([]byte("   \n"))
	if err != nil || n != 4 {
		t.Errorf("Write = %d, %v", n, err)
	}
	select {
	case <-ch:
		t.Error("expected no message for whitespace-only write")
	case <-time.After(50 * time.Millisecond):
	}
}
