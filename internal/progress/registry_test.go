package progress

import (
	"errors"
	"testing"
	"time"
)

func TestRegistry_PublishSubscribeDispose(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Open("u1"); err != nil {
		t.Fatal(err)
	}
	if err := r.Open("u1"); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	r.Publish("u1", Event{Status: StatusStarted, Total: 100})

	ch, cancel, err := r.Subscribe("u1")
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if ev := <-ch; ev.Status != StatusStarted || ev.UploadID != "u1" {
		t.Fatalf("late subscriber must see the last event, got %+v", ev)
	}
	r.Publish("u1", Event{Status: StatusProgress, Bytes: 50, Total: 100, Percent: 50})
	if ev := <-ch; ev.Percent != 50 {
		t.Fatalf("unexpected event %+v", ev)
	}

	r.Dispose("u1")
	if _, ok := <-ch; ok {
		t.Fatal("channel must be closed on dispose")
	}
	cancel()
	if r.Len() != 0 {
		t.Fatalf("registry not empty: %d", r.Len())
	}
	if _, _, err := r.Subscribe("u1"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}
}

func TestRegistry_SlowSubscriberKeepsLatest(t *testing.T) {
	r := NewRegistry(nil)
	_ = r.Open("u")
	ch, cancel, _ := r.Subscribe("u")
	defer cancel()

	for i := 0; i <= 100; i++ {
		r.Publish("u", Event{Status: StatusProgress, Percent: i})
	}
	r.Publish("u", Event{Status: StatusDone, Percent: 100})

	var last Event
	for i := 0; i < subBuffer; i++ {
		last = <-ch
	}
	if last.Status != StatusDone {
		t.Fatalf("terminal event lost, last=%+v", last)
	}
}

func TestRegistry_Sweep(t *testing.T) {
	r := NewRegistry(nil)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	_ = r.Open("old")
	clock = clock.Add(3 * time.Hour)
	_ = r.Open("fresh")

	if n := r.Sweep(2 * time.Hour); n != 1 {
		t.Fatalf("expected one swept, got %d", n)
	}
	if _, _, err := r.Subscribe("fresh"); err != nil {
		t.Fatalf("fresh entry swept: %v", err)
	}
}
