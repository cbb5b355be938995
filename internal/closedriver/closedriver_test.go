package closedriver

import (
	"context"
	"testing"

	"github.com/kudingc/nfs41client/internal/openstate"
	"github.com/kudingc/nfs41client/internal/rpc"
	"github.com/kudingc/nfs41client/internal/stateid"
)

type fakeExecutor struct {
	removeErrs   []error
	removeCalls  int
	closeCalls   int
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
	i := f.removeCalls
	f.removeCalls++
	if i < len(f.removeErrs) {
		return f.removeErrs[i]
	}
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

func TestCloseIssuesCloseWhenActionPending(t *testing.T) {
	exec := &fakeExecutor{}
	state := newTestState(t)
	state.MarkCloseActionPending()

	var unregistered *openstate.OpenState
	d := &Driver{Executor: exec, Unregister: func(s *openstate.OpenState) { unregistered = s }}

	if err := d.Close(context.Background(), state, Request{}); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if exec.closeCalls != 1 {
		t.Fatalf("Executor.Close calls = %d, want 1", exec.closeCalls)
	}
	if state.CloseActionPending() {
		t.Fatal("CloseActionPending must be cleared after Close")
	}
	if unregistered != state {
		t.Fatal("Unregister must be called with the closed state")
	}
}

func TestCloseReturnsRemovesOnRequest(t *testing.T) {
	exec := &fakeExecutor{}
	state := newTestState(t)

	d := &Driver{Executor: exec}
	if err := d.Close(context.Background(), state, Request{Remove: true, Name: "file"}); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if exec.removeCalls != 1 {
		t.Fatalf("Remove calls = %d, want 1", exec.removeCalls)
	}
}

func TestCloseRetriesRemoveAfterFileOpen(t *testing.T) {
	exec := &fakeExecutor{removeErrs: []error{rpc.ErrFileOpen}}
	state := newTestState(t)
	state.MarkCloseActionPending()

	d := &Driver{Executor: exec}
	if err := d.Close(context.Background(), state, Request{Remove: true, Name: "file"}); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if exec.removeCalls != 2 {
		t.Fatalf("Remove calls = %d, want 2 (initial FILE_OPEN + retry)", exec.removeCalls)
	}
	// The FILE_OPEN retry closes the file itself, so the CloseAction
	// pending at entry must already be cleared by the time Close
	// would otherwise have closed it again.
	if exec.closeCalls != 1 {
		t.Fatalf("Executor.Close calls = %d, want 1 (only the retry-triggered close)", exec.closeCalls)
	}
}

func TestCloseGivesUpAfterMaxRetryDeleteAttempts(t *testing.T) {
	errs := make([]error, MaxRetryDeleteAttempts+1)
	for i := range errs {
		errs[i] = rpc.ErrFileOpen
	}
	exec := &fakeExecutor{removeErrs: errs}
	state := newTestState(t)

	d := &Driver{Executor: exec}
	err := d.Close(context.Background(), state, Request{Remove: true, Name: "file"})
	if err == nil {
		t.Fatal("Close should propagate the remove error once retries are exhausted")
	}
}

func TestCloseReturnsDelegationBeforeClosing(t *testing.T) {
	exec := &fakeExecutor{}
	state := newTestState(t)
	state.MarkCloseActionPending()
	state.GrantDelegation(&openstate.DelegationRef{Granted: true})

	d := &Driver{Executor: exec}
	if err := d.Close(context.Background(), state, Request{}); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if exec.delegReturns != 1 {
		t.Fatalf("DelegReturn calls = %d, want 1", exec.delegReturns)
	}
	if state.Delegation() != nil {
		t.Fatal("delegation must be cleared after DelegReturn succeeds")
	}
}
