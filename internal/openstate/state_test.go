package openstate

import (
	"sync"
	"testing"
	"time"
)

func newTestState(t *testing.T) *OpenState {
	t.Helper()
	path, err := NewPathRecord("/export/dir/file")
	if err != nil {
		t.Fatalf("NewPathRecord: %v", err)
	}
	return New(path, NewOwner(1), FileHandleRef{}, FileHandleRef{})
}

func TestRefCountingReleaseAtZero(t *testing.T) {
	s := newTestState(t)
	reg := NewRegistry()
	h := s.Register(reg)

	s.Acquire()
	if got := s.RefCount(); got != 2 {
		t.Fatalf("RefCount after Acquire = %d, want 2", got)
	}

	s.Release(nil)
	if _, ok := reg.Lookup(h); !ok {
		t.Fatalf("open-state should still be registered after one of two releases")
	}

	s.Release(nil)
	if _, ok := reg.Lookup(h); ok {
		t.Fatalf("open-state should be unregistered once refcount reaches zero")
	}
}

func TestReleaseRecordsDiagnostics(t *testing.T) {
	s := newTestState(t)
	reg := NewRegistry()
	h := s.Register(reg)
	diag := NewDiagnostics(0, 0)

	s.Release(diag)
	if !diag.IsQuarantined(h) {
		t.Fatalf("expected handle quarantined after final release")
	}
}

func TestWaitForCloseActionUnblocksOnClear(t *testing.T) {
	s := newTestState(t)
	s.MarkCloseActionPending()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.WaitForCloseAction()
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("WaitForCloseAction returned before ClearCloseAction")
	case <-time.After(20 * time.Millisecond):
	}

	s.ClearCloseAction()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("WaitForCloseAction did not unblock after ClearCloseAction")
	}
	wg.Wait()
}
