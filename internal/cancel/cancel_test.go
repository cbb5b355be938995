package cancel

import (
	"context"
	"testing"

	"github.com/kudingc/nfs41client/internal/openstate"
	"github.com/kudingc/nfs41client/internal/rpc"
	"github.com/kudingc/nfs41client/internal/stateid"
)

type fakeExecutor struct {
	closeCalls   int
	removeCalls  int
	delegReturns int
}

func (f *fakeExecutor) Lookup(ctx context.Context, args rpc.LookupArgs) (rpc.LookupResult, error) {
	return rpc.LookupResult{}, nil
}

func (f *fakeExecutor) Open(ctx context.Context, args rpc.OpenArgs) (rpc.OpenResult, error) {
	return rpc.OpenResult{}, nil
}

func (f *fakeExecutor) Close(ctx context.Context, fh rpc.FileHandle, args rpc.CloseArgs) error {
	f.closeCalls++
	return nil
}

func (f *fakeExecutor) Remove(ctx context.Context, parent rpc.FileHandle, name string) error {
	f.removeCalls++
	return nil
}

func (f *fakeExecutor) DelegReturn(ctx context.Context, fh rpc.FileHandle, id stateid.Stateid) error {
	f.delegReturns++
	return nil
}

func (f *fakeExecutor) LayoutReturn(ctx context.Context, fh rpc.FileHandle, id stateid.Stateid) error {
	return nil
}

func newTestState(t *testing.T) *openstate.OpenState {
	t.Helper()
	path, err := openstate.NewPathRecord("/export/dir/file")
	if err != nil {
		t.Fatalf("NewPathRecord: %v", err)
	}
	return openstate.New(path, openstate.NewOwner(1), openstate.FileHandleRef{}, openstate.FileHandleRef{})
}

func TestCancelNilStateIsNoop(t *testing.T) {
	c := &Canceller{Executor: &fakeExecutor{}}
	if err := c.Cancel(context.Background(), nil, Request{}); err != nil {
		t.Fatalf("Cancel(nil) = %v, want nil", err)
	}
}

func TestCancelClosesWhenCloseActionPending(t *testing.T) {
	exec := &fakeExecutor{}
	state := newTestState(t)
	state.MarkCloseActionPending()

	var unregistered *openstate.OpenState
	c := &Canceller{Executor: exec, Unregister: func(s *openstate.OpenState) { unregistered = s }}

	if err := c.Cancel(context.Background(), state, Request{}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if exec.closeCalls != 1 {
		t.Fatalf("Close calls = %d, want 1", exec.closeCalls)
	}
	if exec.removeCalls != 0 {
		t.Fatalf("Remove calls = %d, want 0 (a confirmed open should be closed, not removed)", exec.removeCalls)
	}
	if unregistered != state {
		t.Fatal("Unregister must be called with the cancelled state")
	}
}

func TestCancelRemovesCreatedObjectWhenNoOpenSurvived(t *testing.T) {
	exec := &fakeExecutor{}
	state := newTestState(t)

	c := &Canceller{Executor: exec}
	if err := c.Cancel(context.Background(), state, Request{Created: true, Name: "newfile"}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if exec.removeCalls != 1 {
		t.Fatalf("Remove calls = %d, want 1", exec.removeCalls)
	}
	if exec.closeCalls != 0 {
		t.Fatalf("Close calls = %d, want 0", exec.closeCalls)
	}
}

func TestCancelReturnsDelegationBeforeRemovingCreatedObject(t *testing.T) {
	exec := &fakeExecutor{}
	state := newTestState(t)
	state.GrantDelegation(&openstate.DelegationRef{Granted: true})

	c := &Canceller{Executor: exec}
	if err := c.Cancel(context.Background(), state, Request{Created: true, Name: "newfile"}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if exec.delegReturns != 1 {
		t.Fatalf("DelegReturn calls = %d, want 1", exec.delegReturns)
	}
	if state.Delegation() != nil {
		t.Fatal("delegation must be cleared after DelegReturn")
	}
}

func TestCancelNeitherActionWhenNothingToRollBack(t *testing.T) {
	exec := &fakeExecutor{}
	state := newTestState(t)

	c := &Canceller{Executor: exec}
	if err := c.Cancel(context.Background(), state, Request{Created: false}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if exec.closeCalls != 0 || exec.removeCalls != 0 {
		t.Fatalf("no rollback action expected, got close=%d remove=%d", exec.closeCalls, exec.removeCalls)
	}
}
