// Package dispositions implements C4: translating the host driver's NT
// CREATE-style disposition, access mask, and access mode into the
// OPEN4 create/createhow and share_access/share_deny values the NFSv4.1
// OPEN operation expects.
package dispositions

import "errors"

// Disposition is the host CREATE disposition (NTCREATEX_DISP_*-style).
type Disposition uint32

const (
	Supersede Disposition = iota
	Create
	Open
	OpenIf
	Overwrite
	OverwriteIf
)

// CreateMode selects whether OPEN4 issues a create, and if so how the
// server should arbitrate a racing create against the same name.
type CreateMode uint32

const (
	NoCreate CreateMode = iota
	CreateGuarded
	CreateExclusive
)

// ShareAccess and ShareDeny bits, matching OPEN4_SHARE_ACCESS_* /
// OPEN4_SHARE_DENY_* from RFC 5661 section 18.16.
const (
	ShareAccessRead        uint32 = 1
	ShareAccessWrite       uint32 = 2
	ShareAccessBoth        uint32 = ShareAccessRead | ShareAccessWrite
	ShareAccessWantNoDeleg uint32 = 1 << 8

	ShareDenyNone  uint32 = 0
	ShareDenyRead  uint32 = 1
	ShareDenyWrite uint32 = 2
	ShareDenyBoth  uint32 = ShareDenyRead | ShareDenyWrite
)

// Access mask bits this package inspects, matching the host driver's
// FILE_READ_DATA / FILE_WRITE_DATA family.
const (
	AccessMaskReadData       uint32 = 0x00000001
	AccessMaskWriteData      uint32 = 0x00000002
	AccessMaskAppendData     uint32 = 0x00000004
	AccessMaskExecute        uint32 = 0x00000020
	AccessMaskWriteAttrs     uint32 = 0x00000100
	AccessModeShareRead      uint32 = 0x00000001
	AccessModeShareWrite     uint32 = 0x00000002
)

// ErrFileExists mirrors ERROR_FILE_EXISTS: a FILE_CREATE disposition
// found the target already present.
var ErrFileExists = errors.New("dispositions: file exists")

// ErrFileNotFound mirrors ERROR_FILE_NOT_FOUND: a disposition requiring
// an existing file found none (lookupStatus reported NOENT).
var ErrFileNotFound = errors.New("dispositions: file not found")

// Plan is the result of mapping a host open request to NFSv4.1 OPEN4
// arguments.
type Plan struct {
	Create       CreateMode
	ShareAccess  uint32
	ShareDeny    uint32
	// LastError records a soft, non-fatal host status the original open
	// path surfaces even on success (e.g. ERROR_FILE_NOT_FOUND noted
	// while creating a new file under FILE_OPEN_IF) so upper layers can
	// report it without failing the open.
	LastError error
}

// MapDisposition is C4's disposition half: decide whether OPEN4 must
// create the target, and with what create-method, given the host
// disposition and whether a preceding LOOKUP already found the target
// (lookupFound) or reported NFS4ERR_NOENT (the two are forced
// consistent: a file system can't both find and not find the same
// path). persistentSession selects GUARDED4 over EXCLUSIVE4_1 when the
// server offers a persistent session -- the server can then correctly
// distinguish a retried create from a new one; without session
// persistence GUARDED4's createverf can't survive a reconnect, so the
// original falls back to the weaker 4.1 exclusive-create variant.
func MapDisposition(disposition Disposition, lookupFound bool, persistentSession bool) (Plan, error) {
	var p Plan

	createMode := func() CreateMode {
		if persistentSession {
			return CreateGuarded
		}
		return CreateExclusive
	}

	switch disposition {
	case Supersede:
		if !lookupFound {
			p.LastError = ErrFileNotFound
		}
		p.Create = createMode()
	case Create:
		if lookupFound {
			return Plan{}, ErrFileExists
		}
		p.Create = createMode()
	case Open:
		if !lookupFound {
			return Plan{}, ErrFileNotFound
		}
		p.Create = NoCreate
	case OpenIf:
		if !lookupFound {
			p.Create = createMode()
			p.LastError = ErrFileNotFound
		} else {
			p.Create = NoCreate
		}
	case Overwrite:
		if !lookupFound {
			return Plan{}, ErrFileNotFound
		}
		p.Create = createMode()
	case OverwriteIf:
		if !lookupFound {
			p.LastError = ErrFileNotFound
		}
		p.Create = createMode()
	}
	return p, nil
}

// MapAccess is C4's share_access/share_deny half. It derives OPEN4's
// share bits from the host access mask and access mode (the Windows
// FILE_SHARE_* flags the caller passed to allow concurrent opens).
//
// A create with neither data-read nor data-write requested (share
// access 0, share deny both) asks for WANT_NO_DELEG: handing out a
// delegation on a file being created but never touched for data access
// invites an immediate, pointless recall from the very next real open.
func MapAccess(accessMask, accessMode uint32, willCreateWithNoDataAccess bool) (shareAccess, shareDeny uint32) {
	switch {
	case accessMask&(AccessMaskReadData|AccessMaskExecute) != 0 &&
		accessMask&(AccessMaskWriteData|AccessMaskAppendData|AccessMaskWriteAttrs) != 0:
		shareAccess = ShareAccessBoth
	case accessMask&(AccessMaskReadData|AccessMaskExecute) != 0:
		shareAccess = ShareAccessRead
	case accessMask&(AccessMaskWriteData|AccessMaskAppendData|AccessMaskWriteAttrs) != 0:
		shareAccess = ShareAccessWrite
	case willCreateWithNoDataAccess:
		shareAccess = ShareAccessRead | ShareAccessWantNoDeleg
	}

	switch {
	case accessMode&AccessModeShareRead != 0 && accessMode&AccessModeShareWrite != 0:
		shareDeny = ShareDenyNone
	case accessMode&AccessModeShareRead != 0:
		shareDeny = ShareDenyWrite
	case accessMode&AccessModeShareWrite != 0:
		shareDeny = ShareDenyRead
	default:
		shareDeny = ShareDenyBoth
	}
	return shareAccess, shareDeny
}
