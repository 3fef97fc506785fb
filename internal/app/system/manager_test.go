package system

import (
	"context"
	"errors"
	"testing"
)

type recordingService struct {
	NoopService
	events    *[]string
	failStart bool
}

func (s recordingService) Start(ctx context.Context) error {
	if s.failStart {
		return errors.New("boom")
	}
	*s.events = append(*s.events, "start:"+s.ServiceName)
	return nil
}

func (s recordingService) Stop(ctx context.Context) error {
	*s.events = append(*s.events, "stop:"+s.ServiceName)
	return nil
}

func TestManagerStartStopOrder(t *testing.T) {
	var events []string
	m := NewManager()
	for _, name := range []string{"a", "b"} {
		if err := m.Register(recordingService{NoopService: NoopService{ServiceName: name}, events: &events}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "stop:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, events)
		}
	}
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	m := NewManager()
	if err := m.Register(NoopService{ServiceName: "dup"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "dup"}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestManagerStartFailureRollsBack(t *testing.T) {
	var events []string
	m := NewManager()
	if err := m.Register(recordingService{NoopService: NoopService{ServiceName: "ok"}, events: &events}); err != nil {
		t.Fatalf("register ok: %v", err)
	}
	if err := m.Register(recordingService{NoopService: NoopService{ServiceName: "bad"}, events: &events, failStart: true}); err != nil {
		t.Fatalf("register bad: %v", err)
	}

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail")
	}
	// The service that did start is stopped again.
	if len(events) != 2 || events[1] != "stop:ok" {
		t.Fatalf("expected rollback stop, got %v", events)
	}
}
