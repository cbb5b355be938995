package openstate

import (
	"sync"
	"sync/atomic"

	"github.com/kudingc/nfs41client/internal/metrics"
	"github.com/kudingc/nfs41client/internal/stateid"
)

// DispositionCloseAction records whether this open holds a real server
// stateid that a CLOSE still has to release, mirroring the do_close flag
// the delegation recall path and the CLOSE driver both consult.
type DispositionCloseAction int32

const (
	CloseActionNone DispositionCloseAction = iota
	CloseActionPending
)

// LockState is a single byte-range lock held under this open, kept as an
// element of OpenState's lock list.
type LockState struct {
	Offset   uint64
	Length   uint64
	Exclusive bool
	Stateid  stateid.Stateid
}

// DelegationRef is the (optional) delegation this open currently holds.
// A nil *DelegationRef on an OpenState means "no delegation", mirroring
// the original's state->delegation.state pointer check.
type DelegationRef struct {
	Stateid stateid.Stateid
	Type    DelegationType
	// Granted reports whether the server has confirmed this delegation
	// (DELEGATION_GRANTED) rather than it being attached but recalled or
	// mid-recovery. The stateid selector (C6) only returns a delegation
	// stateid while this is true.
	Granted bool
}

// DelegationType distinguishes a read from a write delegation.
type DelegationType int

const (
	DelegationNone DelegationType = iota
	DelegationRead
	DelegationWrite
)

// Session is the narrow slice of the client's session/connection
// collaborator that the open-state engine needs: the client id the open
// belongs to. CLOSE, DELEGRETURN, and LAYOUTRETURN are issued by the
// drivers through rpc.CompoundExecutor, not through this interface. The
// real session/transport lives in internal/client and
// internal/rpc; this interface is what OpenState depends on instead of
// those concrete types, so this package stays free of an import cycle
// back into the client package.
type Session interface {
	ClientID() uint64
}

// OpenState is C3: the central object correlating a path, a pair of
// filehandle views (the target file and its parent directory), open
// share reservations, the stateid the server assigned, and the
// collaborators (locks, delegation, extended attributes) scoped to this
// open. It is reference-counted because multiple in-flight upcalls
// (I/O, a delegation recall, a concurrent CLOSE) may hold it at once;
// the last release frees it.
type OpenState struct {
	// Path is C1: the pathname/name-derivation record.
	Path *PathRecord

	// File and Parent are the filehandle views for the opened object
	// and its containing directory, respectively. Parent is retained
	// because several operations (REMOVE for silly-rename, CREATE
	// retries, directory GETATTR) address the directory rather than
	// the file itself.
	File   FileHandleRef
	Parent FileHandleRef

	// Owner is C2: this open's owner identity.
	Owner Owner

	// ShareAccess and ShareDeny are the OPEN4 share_access/share_deny
	// bitmasks this open was granted, as derived by the disposition
	// mapper (C4) from the kernel's access_mask/access_mode/disposition
	// triple.
	ShareAccess uint32
	ShareDeny   uint32

	// Stateid is the OPEN stateid the server returned for this open.
	Stateid stateid.Stateid

	// Session identifies the client session that granted Stateid.
	Session Session

	mu         sync.RWMutex
	delegation *DelegationRef
	closeCond  *sync.Cond
	closeAction DispositionCloseAction

	locksMu sync.Mutex
	locks   []LockState

	eaMu sync.Mutex
	ea   []byte

	refCount int32

	// handle is set once this open-state is registered in a Registry,
	// so Release can unregister it from the same registry it came from.
	handle   Handle
	registry *Registry
}

// New constructs an open-state with an initial reference count of 1,
// the same convention the original upcall-parsing code used ("will be
// released in cleanup_close()"): the caller that creates an OpenState
// owns exactly one reference until it either hands the open off
// (Acquire) or closes it (Release).
func New(path *PathRecord, owner Owner, file, parent FileHandleRef) *OpenState {
	s := &OpenState{
		Path:     path,
		File:     file,
		Parent:   parent,
		Owner:    owner,
		refCount: 1,
	}
	s.closeCond = sync.NewCond(&s.mu)
	return s
}

// Register allocates a Handle for this open-state in reg, recording
// which registry owns it so a later Release (dropping to zero
// references) can free the slot automatically.
func (s *OpenState) Register(reg *Registry) Handle {
	h := reg.Alloc(s)
	s.mu.Lock()
	s.handle = h
	s.registry = reg
	s.mu.Unlock()
	return h
}

// Acquire takes a new reference on s, mirroring nfs41_open_state_ref.
func (s *OpenState) Acquire() {
	atomic.AddInt32(&s.refCount, 1)
}

// Release drops a reference, mirroring nfs41_open_state_deref: the
// caller that brings the count to zero is the one that tears s down,
// including freeing its handle from the owning registry and recording
// it in diag's quarantine ring if diag is non-nil.
func (s *OpenState) Release(diag *Diagnostics) {
	if atomic.AddInt32(&s.refCount, -1) != 0 {
		return
	}

	s.mu.Lock()
	h := s.handle
	reg := s.registry
	s.mu.Unlock()

	if reg != nil {
		reg.Free(h)
	}
	diag.NoteFreed(h)
}

// RefCount reports the current reference count, for diagnostics and
// tests only -- never used to gate correctness decisions.
func (s *OpenState) RefCount() int32 {
	return atomic.LoadInt32(&s.refCount)
}

// Delegation returns the delegation currently held for this open, or
// nil if none.
func (s *OpenState) Delegation() *DelegationRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.delegation
}

// GrantDelegation records a newly-granted delegation.
func (s *OpenState) GrantDelegation(d *DelegationRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegation = d
}

// ClearDelegation drops the held delegation, e.g. after a successful
// DELEGRETURN. It wakes no waiters: neither WaitForCloseAction nor
// WaitForOpenStateid waits on the delegation.
func (s *OpenState) ClearDelegation() {
	s.mu.Lock()
	s.delegation = nil
	s.mu.Unlock()
}

// MarkCloseActionPending flags that this open holds a real server
// stateid that must eventually be closed -- do_close in the original --
// and wakes any goroutine waiting for it to become true (the
// delegation-recall wait in the stateid selector, C6).
func (s *OpenState) MarkCloseActionPending() {
	s.mu.Lock()
	s.closeAction = CloseActionPending
	s.closeCond.Broadcast()
	s.mu.Unlock()
}

// ClearCloseAction clears the do_close flag once the CLOSE has been
// issued and wakes any goroutine blocked in WaitForCloseAction.
func (s *OpenState) ClearCloseAction() {
	s.mu.Lock()
	s.closeAction = CloseActionNone
	s.closeCond.Broadcast()
	s.mu.Unlock()
}

// CloseActionPending reports whether a deferred close is still owed.
func (s *OpenState) CloseActionPending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closeAction == CloseActionPending
}

// WaitForCloseAction blocks until no deferred close is pending.
func (s *OpenState) WaitForCloseAction() {
	s.mu.Lock()
	for s.closeAction == CloseActionPending {
		s.closeCond.Wait()
	}
	s.mu.Unlock()
}

// WaitForOpenStateid blocks until this open holds a real server stateid
// (do_close becomes true). The stateid selector (C6) waits here when it
// finds a delegation attached but not yet granted: the open stateid is
// still being recovered via CLAIM_DELEGATE_CUR.
func (s *OpenState) WaitForOpenStateid() {
	s.mu.Lock()
	for s.closeAction != CloseActionPending {
		s.closeCond.Wait()
	}
	s.mu.Unlock()
}

// SelectStateid is C6: it picks which stateid an operation against this
// open should present, per RFC 5661 section 8.2.5 as implemented by the
// original's nfs41_open_stateid_arg. lock is the caller's current
// byte-range lock stateid, or nil when none is held.
//
//  1. A GRANTED delegation's stateid wins outright.
//  2. A delegation that is attached but not granted (recalled, or still
//     mid-recovery) blocks the caller on WaitForOpenStateid until the
//     real open stateid is recovered, then falls through to 3-4.
//  3. A held lock stateid is next.
//  4. Otherwise the open stateid, if do_close is set; the all-zero
//     special stateid if not (no server state has ever been acquired).
func (s *OpenState) SelectStateid(lock *stateid.Stateid) stateid.Stateid {
	s.mu.RLock()
	deleg := s.delegation
	s.mu.RUnlock()

	if deleg != nil {
		if deleg.Granted {
			return deleg.Stateid
		}
		metrics.ObserveDelegationWait()
		s.WaitForOpenStateid()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	open := stateid.Special()
	if s.closeAction == CloseActionPending {
		open = s.Stateid
	}
	return stateid.Select(open, lock, nil)
}

// AddLock appends a byte-range lock owned by this open.
func (s *OpenState) AddLock(l LockState) {
	s.locksMu.Lock()
	s.locks = append(s.locks, l)
	s.locksMu.Unlock()
}

// Locks returns a snapshot of the byte-range locks held under this
// open. The CLOSE driver (C7) does not consult this list.
func (s *OpenState) Locks() []LockState {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	out := make([]LockState, len(s.locks))
	copy(out, s.locks)
	return out
}

// ClearLocks drops all recorded byte-range locks. It sends nothing to
// the server, and the CLOSE driver does not call it.
func (s *OpenState) ClearLocks() {
	s.locksMu.Lock()
	s.locks = nil
	s.locksMu.Unlock()
}

// SetExtendedAttributes stashes a raw extended-attribute buffer
// associated with this open (e.g. a pending EA list from an NT
// CREATE's extended-attribute argument), mirroring state->ea.list.
func (s *OpenState) SetExtendedAttributes(buf []byte) {
	s.eaMu.Lock()
	s.ea = buf
	s.eaMu.Unlock()
}

// ExtendedAttributes returns the stashed extended-attribute buffer, or
// nil if none was set.
func (s *OpenState) ExtendedAttributes() []byte {
	s.eaMu.Lock()
	defer s.eaMu.Unlock()
	return s.ea
}
