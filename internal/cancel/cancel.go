// Package cancel implements C8: cancellation/rollback for an OPEN
// upcall the kernel later abandons (typically because the original
// IRP was cancelled or the create raced a process exit) before its
// downcall could be delivered.
package cancel

import (
	"context"

	"github.com/kudingc/nfs41client/internal/openstate"
	"github.com/kudingc/nfs41client/internal/rpc"
)

// Request carries just enough of the original OPEN request to decide
// what rollback is owed.
type Request struct {
	Created bool // true if this OPEN's CREATE actually created the object
	Name    string
}

// Canceller rolls back a partially-completed OPEN.
type Canceller struct {
	Executor rpc.CompoundExecutor
	// Unregister removes state from the client's recovery list; left
	// nil when no client-wide list is wired (e.g. in tests).
	Unregister func(state *openstate.OpenState)
}

// Cancel is C8: cancel_open()'s Go analogue. A nil state means
// handle_open never got far enough to produce one -- nothing to roll
// back.
func (c *Canceller) Cancel(ctx context.Context, state *openstate.OpenState, req Request) error {
	if state == nil {
		return nil
	}

	var err error
	switch {
	case state.CloseActionPending():
		err = c.Executor.Close(ctx, state.File.Handle, rpc.CloseArgs{Stateid: state.Stateid})
	case req.Created:
		// The OPEN created the object but the caller is abandoning it;
		// break any delegation first so the REMOVE below isn't
		// serialized behind a recall, then remove what was created.
		if deleg := state.Delegation(); deleg != nil {
			_ = c.Executor.DelegReturn(ctx, state.File.Handle, deleg.Stateid)
			state.ClearDelegation()
		}
		err = c.Executor.Remove(ctx, state.Parent.Handle, req.Name)
	}

	if c.Unregister != nil {
		c.Unregister(state)
	}
	state.Release(nil)
	return err
}
