// Package closedriver implements C7: the CLOSE driver, which tears
// down an open-state's server-side reservations -- layouts, the
// delegation attached to the open, an optional remove, and finally the
// CLOSE operation itself. The delegation is returned whatever
// Request.SrvOpen says; SrvOpen is not compared. No RENAME is issued:
// for a Renamed request the caller has already silly-renamed the
// target, and this driver only closes before removing it.
package closedriver

import (
	"context"
	"errors"

	"github.com/kudingc/nfs41client/internal/metrics"
	"github.com/kudingc/nfs41client/internal/openstate"
	"github.com/kudingc/nfs41client/internal/rpc"
)

// MaxRetryDeleteAttempts bounds the FILE_OPEN retry-after-close loop
// below: a server that keeps returning NFS4ERR_FILE_OPEN after this
// driver has already issued the CLOSE it asked for indicates a server
// bug, not a transient race, so this is a bound against busy-looping
// rather than an expected retry count.
const MaxRetryDeleteAttempts = 2

// Request describes what a CLOSE upcall asked for.
type Request struct {
	Remove  bool
	Renamed bool
	Name    string
	SrvOpen uint64
}

// Driver orchestrates the CLOSE lifecycle against an rpc.CompoundExecutor.
type Driver struct {
	Executor rpc.CompoundExecutor
	// ReturnLayouts releases any pNFS layouts held for state before the
	// CLOSE is issued, when state names a regular file. Left nil this
	// is a no-op, matching a client with no layout support configured.
	ReturnLayouts func(ctx context.Context, state *openstate.OpenState, remove bool)
	// Unregister unlinks state from the client's open list unconditionally
	// (step 5), before the caller drops the final reference. Left nil
	// when no client-wide list is wired (e.g. in tests).
	Unregister func(state *openstate.OpenState)
}

// Close is C7: handle_close()'s Go analogue.
func (d *Driver) Close(ctx context.Context, state *openstate.OpenState, req Request) error {
	if d.Unregister != nil {
		// Unlinked unconditionally (step 5), regardless of which exit
		// path below is taken -- the final reference drop in the
		// caller's cleanup must never race a recovery sweep still
		// walking this open on the client's list.
		defer d.Unregister(state)
	}

	if d.ReturnLayouts != nil {
		d.ReturnLayouts(ctx, state, req.Remove)
	}

	if deleg := state.Delegation(); deleg != nil {
		if err := d.Executor.DelegReturn(ctx, state.File.Handle, deleg.Stateid); err != nil {
			return err
		}
		state.ClearDelegation()
	}

	var removeErr error
	if req.Remove {
		if req.Renamed {
			// The caller already silly-renamed the target; close now
			// so the remove below can succeed even while this open is
			// still logically in use elsewhere.
			if err := d.closeNow(ctx, state); err != nil {
				return err
			}
			state.ClearCloseAction()
		}

		removeErr = d.removeWithRetry(ctx, state, req.Name)
	}

	if state.CloseActionPending() {
		if err := d.closeNow(ctx, state); err != nil {
			return err
		}
		state.ClearCloseAction()
	}

	return removeErr
}

func (d *Driver) removeWithRetry(ctx context.Context, state *openstate.OpenState, name string) error {
	var err error
	for attempt := 0; attempt <= MaxRetryDeleteAttempts; attempt++ {
		err = d.Executor.Remove(ctx, state.Parent.Handle, name)
		if err == nil {
			return nil
		}
		if !errors.Is(err, rpc.ErrFileOpen) || attempt == MaxRetryDeleteAttempts {
			return err
		}
		metrics.ObserveCloseRetry()
		// The server still considers this file open from its own
		// point of view; close it from here and retry the remove.
		if closeErr := d.closeNow(ctx, state); closeErr != nil {
			return closeErr
		}
		state.ClearCloseAction()
	}
	return err
}

// closeNow issues the CLOSE itself, presenting whichever stateid the
// selector (C6) judges correct for this open -- by the time this driver
// reaches here any delegation has already been returned above, so this
// resolves to the plain open stateid, but through the same selection
// rule every stateid-bearing operation uses rather than around it.
func (d *Driver) closeNow(ctx context.Context, state *openstate.OpenState) error {
	id := state.SelectStateid(nil)
	return d.Executor.Close(ctx, state.File.Handle, rpc.CloseArgs{Stateid: id})
}
