// Package hosterr defines the numeric host-status codes this daemon
// hands back to the kernel driver in a downcall, and the single
// translation function from an NFSv4 protocol status to the closest
// host status.
package hosterr

import "github.com/kudingc/nfs41client/internal/rpc"

// Code is a host (Windows-style) error code, as placed in a downcall's
// status field.
type Code uint32

const (
	Success              Code = 0
	FileNotFound         Code = 2
	AccessDenied         Code = 5
	FileExists           Code = 80
	NotADirectory        Code = 267
	FileIsADirectory     Code = 267
	BadFileType          Code = 222
	FilenameExceedsRange Code = 206
	TooManyLinks         Code = 1142
	Reparse              Code = 741
	BufferOverflow       Code = 111
	InternalError        Code = 1359
	NetworkBusy          Code = 54
	FileLockConflict     Code = 33
	Retry                Code = 1237
)

// FromProtocol maps an NFS4ERR_* status to the closest host status,
// falling back to fallback when no specific mapping applies. This is
// the single translation point every upper-layer component should use
// instead of switching on rpc.Status directly, so the mapping only
// needs to be gotten right once.
func FromProtocol(status rpc.Status, fallback Code) Code {
	switch status {
	case rpc.NFS4_OK:
		return Success
	case rpc.NFS4ERR_NOENT, rpc.NFS4ERR_STALE:
		return FileNotFound
	case rpc.NFS4ERR_EXIST:
		return FileExists
	case rpc.NFS4ERR_ACCESS, rpc.NFS4ERR_PERM:
		return AccessDenied
	case rpc.NFS4ERR_ISDIR:
		return FileIsADirectory
	case rpc.NFS4ERR_NOTDIR:
		return NotADirectory
	case rpc.NFS4ERR_NAMETOOLONG:
		return FilenameExceedsRange
	case rpc.NFS4ERR_SYMLINK:
		return Reparse
	case rpc.NFS4ERR_BADTYPE:
		return BadFileType
	case rpc.NFS4ERR_DELAY, rpc.NFS4ERR_GRACE:
		return Retry
	case rpc.NFS4ERR_SHARE_DENIED, rpc.NFS4ERR_LOCKED, rpc.NFS4ERR_DENIED:
		return FileLockConflict
	case rpc.NFS4ERR_SERVERFAULT, rpc.NFS4ERR_IO:
		return InternalError
	default:
		return fallback
	}
}
