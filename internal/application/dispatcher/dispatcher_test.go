package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/garyjia/pm-approval/internal/domain/event"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) HasInfo(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.infos {
		if info == msg {
			return true
		}
	}
	return false
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func statusEvent(entityType, status string) *event.Event {
	return event.NewEvent(event.TypeApproved, entityType, 7, 1, status)
}

func recorder(calls *[]string, name string) Handler {
	return func(ctx context.Context, evt *event.Event) error {
		*calls = append(*calls, name)
		return nil
	}
}

func TestDispatch_RunsMatchingHandlersInRegistrationOrder(t *testing.T) {
	d := NewDispatcher()
	var calls []string

	d.RegisterNamed("ACCEPTANCE_ORDER", "APPROVED", "first", recorder(&calls, "first"))
	d.RegisterNamed(Wildcard, "APPROVED", "any-entity", recorder(&calls, "any-entity"))
	d.RegisterNamed("ACCEPTANCE_ORDER", "REJECTED", "other-status", recorder(&calls, "other-status"))
	d.RegisterNamed("ECN", "APPROVED", "other-entity", recorder(&calls, "other-entity"))
	d.RegisterNamed("ACCEPTANCE_ORDER", Wildcard, "any-status", recorder(&calls, "any-status"))
	d.RegisterNamed(Wildcard, Wildcard, "everything", recorder(&calls, "everything"))

	if err := d.Dispatch(context.Background(), statusEvent("ACCEPTANCE_ORDER", "APPROVED")); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	want := []string{"first", "any-entity", "any-status", "everything"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestDispatch_NoHandlers(t *testing.T) {
	d := NewDispatcher()
	if err := d.Dispatch(context.Background(), statusEvent("ECN", "APPROVED")); err != nil {
		t.Errorf("Dispatch() with no handlers error = %v", err)
	}
}

func TestDispatch_FirstErrorStopsRemainingHandlers(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))
	var calls []string
	boom := errors.New("invoice numbering failed")

	d.RegisterNamed("PROJECT_MILESTONE", "COMPLETED", "ok", recorder(&calls, "ok"))
	d.RegisterNamed("PROJECT_MILESTONE", "COMPLETED", "invoice", func(ctx context.Context, evt *event.Event) error {
		calls = append(calls, "invoice")
		return boom
	})
	d.RegisterNamed("PROJECT_MILESTONE", "COMPLETED", "never", recorder(&calls, "never"))

	err := d.Dispatch(context.Background(), statusEvent("PROJECT_MILESTONE", "COMPLETED"))
	if !errors.Is(err, boom) {
		t.Fatalf("Dispatch() error = %v, want wrapping %v", err, boom)
	}
	if !strings.Contains(err.Error(), "hook invoice failed") {
		t.Errorf("error should name the handler, got %q", err.Error())
	}
	if strings.Join(calls, ",") != "ok,invoice" {
		t.Errorf("calls = %v, want [ok invoice]", calls)
	}
	if logger.ErrorCount() != 1 {
		t.Errorf("expected 1 error log, got %d", logger.ErrorCount())
	}
}

func TestDispatch_PanicBecomesError(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))

	d.Register("ECN", "APPROVED", func(ctx context.Context, evt *event.Event) error {
		panic("nil map")
	})

	err := d.Dispatch(context.Background(), statusEvent("ECN", "APPROVED"))
	if err == nil || !strings.Contains(err.Error(), "handler panic: nil map") {
		t.Fatalf("Dispatch() error = %v, want handler panic", err)
	}
	if logger.ErrorCount() != 2 {
		t.Errorf("expected panic and failure to be logged, got %d error logs", logger.ErrorCount())
	}
}

func TestDispatch_PassesEventThrough(t *testing.T) {
	d := NewDispatcher()
	var got *event.Event

	d.Register("SALES_QUOTE", "REJECTED", func(ctx context.Context, evt *event.Event) error {
		got = evt
		return nil
	})

	evt := statusEvent("SALES_QUOTE", "REJECTED").WithActor(42)
	if err := d.Dispatch(context.Background(), evt); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got != evt {
		t.Errorf("handler received %+v, want the dispatched event", got)
	}
}

func TestUnregister(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))
	var calls []string

	d.RegisterNamed("ECN", "APPROVED", "keep", recorder(&calls, "keep"))
	d.RegisterNamed("ECN", "APPROVED", "drop", recorder(&calls, "drop"))
	d.RegisterNamed(Wildcard, "APPROVED", "drop", recorder(&calls, "wild-drop"))

	d.Unregister("ECN", "APPROVED", "drop")

	if err := d.Dispatch(context.Background(), statusEvent("ECN", "APPROVED")); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if strings.Join(calls, ",") != "keep,wild-drop" {
		t.Errorf("calls = %v, want [keep wild-drop]", calls)
	}
	if !logger.HasInfo("Hook unregistered") {
		t.Error("expected unregister to be logged")
	}
}

func TestRegister_GeneratesUniqueNames(t *testing.T) {
	d := NewDispatcher()
	noop := func(ctx context.Context, evt *event.Event) error { return nil }

	d.Register("ECN", "APPROVED", noop)
	d.Register("ECN", "APPROVED", noop)
	d.Register(Wildcard, Wildcard, noop)

	list := d.ListHandlers("ECN", "APPROVED")
	if len(list) != 3 {
		t.Fatalf("ListHandlers() len = %d, want 3", len(list))
	}

	seen := map[string]bool{}
	for _, h := range list {
		if seen[h.Name] {
			t.Errorf("duplicate generated name %q", h.Name)
		}
		seen[h.Name] = true
		if h.Handler != nil {
			t.Error("ListHandlers() should not expose handler functions")
		}
	}
}

func TestRegisterNamed_RejectsEmptyKey(t *testing.T) {
	d := NewDispatcher()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for empty status")
		}
	}()
	d.RegisterNamed("ECN", "", "x", func(ctx context.Context, evt *event.Event) error { return nil })
}

func TestConcurrentRegisterAndDispatch(t *testing.T) {
	d := NewDispatcher()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			d.RegisterNamed("ECN", "APPROVED", fmt.Sprintf("h%d", i), func(ctx context.Context, evt *event.Event) error { return nil })
		}(i)
		go func() {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), statusEvent("ECN", "APPROVED"))
		}()
	}
	wg.Wait()

	if got := len(d.ListHandlers("ECN", "APPROVED")); got != 20 {
		t.Errorf("ListHandlers() len = %d, want 20", got)
	}
}
