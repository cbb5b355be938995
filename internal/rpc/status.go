// Package rpc defines the contract this daemon uses to talk to the NFSv4.1
// RPC COMPOUND transport collaborator. The transport itself -- connection
// management, retransmission, RPCSEC_GSS, and full XDR decode of arbitrary
// compound replies -- is treated as an external collaborator, not
// reimplemented here; CompoundExecutor is the seam the open-state engine
// calls through, and encode.go provides the concrete argument-encoding
// this package's callers need to build real wire bytes for the
// operations the core actually issues.
package rpc

// Status is an NFS4ERR_* protocol status code, as returned by the RPC
// COMPOUND transport collaborator.
type Status uint32

// The subset of NFS4ERR_* this daemon's open/close engine inspects and
// acts on directly. All other codes are opaque and simply propagated.
const (
	NFS4_OK Status = 0

	NFS4ERR_PERM          Status = 1
	NFS4ERR_NOENT         Status = 2
	NFS4ERR_IO            Status = 5
	NFS4ERR_ACCESS        Status = 13
	NFS4ERR_EXIST         Status = 17
	NFS4ERR_NOTDIR        Status = 20
	NFS4ERR_ISDIR         Status = 21
	NFS4ERR_FBIG          Status = 27
	NFS4ERR_ROFS          Status = 30
	NFS4ERR_NAMETOOLONG   Status = 63
	NFS4ERR_NOTEMPTY      Status = 66
	NFS4ERR_DQUOT         Status = 69
	NFS4ERR_STALE         Status = 70
	NFS4ERR_BADHANDLE     Status = 10001
	NFS4ERR_BAD_COOKIE    Status = 10003
	NFS4ERR_NOTSUPP       Status = 10004
	NFS4ERR_TOOSMALL      Status = 10005
	NFS4ERR_SERVERFAULT   Status = 10006
	NFS4ERR_BADTYPE       Status = 10007
	NFS4ERR_DELAY         Status = 10008
	NFS4ERR_SAME          Status = 10009
	NFS4ERR_DENIED        Status = 10010
	NFS4ERR_EXPIRED       Status = 10011
	NFS4ERR_LOCKED        Status = 10012
	NFS4ERR_GRACE         Status = 10013
	NFS4ERR_FHEXPIRED     Status = 10014
	NFS4ERR_SHARE_DENIED  Status = 10015
	NFS4ERR_WRONGSEC      Status = 10016
	NFS4ERR_CLID_INUSE    Status = 10017
	NFS4ERR_RESOURCE      Status = 10018
	NFS4ERR_MOVED         Status = 10019
	NFS4ERR_NOFILEHANDLE  Status = 10020
	NFS4ERR_BAD_SEQID     Status = 10026
	NFS4ERR_NOT_SAME      Status = 10027
	NFS4ERR_LOCK_RANGE    Status = 10028
	NFS4ERR_SYMLINK       Status = 10029
	NFS4ERR_RESTOREFH     Status = 10030
	NFS4ERR_LEASE_MOVED   Status = 10031
	NFS4ERR_ATTRNOTSUPP   Status = 10032
	NFS4ERR_NO_GRACE      Status = 10033
	NFS4ERR_RECLAIM_BAD   Status = 10034
	NFS4ERR_BADXDR        Status = 10036
	NFS4ERR_LOCKS_HELD    Status = 10037
	NFS4ERR_OPENMODE      Status = 10038
	NFS4ERR_BAD_STATEID   Status = 10025
	NFS4ERR_OLD_STATEID   Status = 10024
	NFS4ERR_STALE_STATEID Status = 10023
	NFS4ERR_STALE_CLIENTID Status = 10022
	NFS4ERR_BADOWNER      Status = 10039
	NFS4ERR_FILE_OPEN     Status = 10046
	NFS4ERR_NOT_ONLY_OP   Status = 10047
)

func (s Status) String() string {
	if s == NFS4_OK {
		return "NFS4_OK"
	}
	return "NFS4ERR"
}

// StatusError wraps a protocol Status as an error, the form a
// CompoundExecutor returns a non-OK reply in.
type StatusError struct {
	Status Status
	Op     string
}

func (e *StatusError) Error() string {
	return e.Op + ": " + e.Status.String()
}

// Is lets errors.Is(err, ErrFileOpen) match any *StatusError carrying
// the FILE_OPEN status, regardless of which operation produced it.
func (e *StatusError) Is(target error) bool {
	other, ok := target.(*StatusError)
	return ok && e.Status == other.Status
}

// ErrFileOpen is the sentinel compared against with errors.Is when a
// REMOVE fails because the server still considers the target open.
var ErrFileOpen = &StatusError{Status: NFS4ERR_FILE_OPEN}
