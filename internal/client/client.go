// Package client holds the collaborators that are scoped to the whole
// client rather than to a single open: the client-global open-state
// list (the outermost lock in the lease-ordered hierarchy) and the
// session handle C3/C5/C7 present to the RPC layer.
package client

import (
	"sync"

	"github.com/kudingc/nfs41client/internal/openstate"
)

// ID is the client's SETCLIENTID-confirmed identifier, presented as
// OwnerClientID in every OPEN and LOCK this client issues.
type ID uint64

// Session is the narrow openstate.Session implementation: enough for
// the open-state engine to identify which client's lease an open
// belongs to without depending on the real RPC session/connection.
type Session struct {
	id ID
}

// NewSession wraps a client ID as an openstate.Session.
func NewSession(id ID) *Session { return &Session{id: id} }

// ClientID implements openstate.Session.
func (s *Session) ClientID() uint64 { return uint64(s.id) }

// OpenList is the client-global open-state list: lock 1 of the
// lease-ordered hierarchy (the client-global open-list lock; critical
// section, short sections only). It never acquires
// any open-state's own lock while holding its own -- callers that need
// both take OpenList's lock first, exactly the order the concurrency
// model requires, and release it before touching an individual
// OpenState.
type OpenList struct {
	mu    sync.Mutex
	opens map[*openstate.OpenState]struct{}
}

// NewOpenList constructs an empty client open-state list.
func NewOpenList() *OpenList {
	return &OpenList{opens: make(map[*openstate.OpenState]struct{})}
}

// Add registers state as belonging to this client (the OPEN
// lifecycle's publish step). Wired as opendriver.Driver.Register.
func (l *OpenList) Add(state *openstate.OpenState) {
	l.mu.Lock()
	l.opens[state] = struct{}{}
	l.mu.Unlock()
}

// Remove unlinks state (the CLOSE lifecycle's unlink step, and the
// cancellation path's rollback). Wired as closedriver.Driver.Unregister and
// cancel.Canceller.Unregister. A no-op if state was never added or was
// already removed, so both the CLOSE and the cancellation path may
// call it without coordinating with each other.
func (l *OpenList) Remove(state *openstate.OpenState) {
	l.mu.Lock()
	delete(l.opens, state)
	l.mu.Unlock()
}

// Len reports how many opens this client currently holds.
func (l *OpenList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.opens)
}

// ForEach calls fn once for every open-state on a point-in-time
// snapshot of the list, taken under the list lock and then released
// before fn runs -- so fn is free to block on an individual
// OpenState's own lock (the next rung down the hierarchy) without
// holding this one, which would otherwise invert the lease-ordered
// lock order the concurrency model demands. Used by the debug API's
// /opens listing.
func (l *OpenList) ForEach(fn func(*openstate.OpenState)) {
	l.mu.Lock()
	snapshot := make([]*openstate.OpenState, 0, len(l.opens))
	for s := range l.opens {
		snapshot = append(snapshot, s)
	}
	l.mu.Unlock()

	for _, s := range snapshot {
		fn(s)
	}
}
