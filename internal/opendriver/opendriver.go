// Package opendriver implements C5: the OPEN driver that turns a host
// CREATE-style open request into an NFSv4.1 OPEN (or OPEN plus a
// preceding LOOKUP/CREATE), producing an *openstate.OpenState on
// success.
package opendriver

import (
	"context"
	"errors"

	"github.com/kudingc/nfs41client/internal/dispositions"
	"github.com/kudingc/nfs41client/internal/idmap"
	"github.com/kudingc/nfs41client/internal/metrics"
	"github.com/kudingc/nfs41client/internal/openstate"
	"github.com/kudingc/nfs41client/internal/rpc"
)

// MaxSymlinkDepth bounds reparse-chasing when a parent path component
// turns out to be a symlink, matching NFS41_MAX_SYMLINK_DEPTH.
const MaxSymlinkDepth = 32

// MaxSupersedeRetries bounds the SUPERSEDE remove-then-create retry
// loop below: a server racing two SUPERSEDE opens against the same
// name can make each one's CREATE see NFS4ERR_EXIST in turn forever in
// principle; in practice this converges in one or two iterations, so a
// small bound turns a hypothetical livelock into a bounded, attributable
// failure instead.
const MaxSupersedeRetries = 4

// FileType mirrors the NFSv4 type4 values this driver distinguishes.
type FileType int

const (
	TypeUnknown FileType = iota
	TypeRegular
	TypeDirectory
	TypeSymlink
)

// CreateOpts is the subset of the host's NtCreateFile CreateOptions
// this driver inspects.
type CreateOpts uint32

const (
	OptDirectoryFile        CreateOpts = 1 << 0
	OptNonDirectoryFile     CreateOpts = 1 << 1
	OptOpenReparsePoint     CreateOpts = 1 << 2
)

// Request is the host-side open request this driver consumes.
type Request struct {
	Path          string
	OpenOwnerID   uint32
	Disposition   dispositions.Disposition
	AccessMask    uint32
	AccessMode    uint32
	CreateOpts    CreateOpts
	FileAttrs     uint32
	Mode          uint32
	SymlinkTarget string // non-empty when the kernel is asking us to create a cygwin-style symlink
}

// Result is returned to the upcall layer for encoding into a downcall.
type Result struct {
	State          *openstate.OpenState
	Reparse        bool   // true: the driver needs the kernel to reparse through a symlink
	ReparsePath    string // the rewritten path to reparse to; for a symlink at the leaf itself, the requested path unchanged (the link target is not read)
	ReparseEmbed   bool   // true: ReparsePath is the final target, not a further lookup
	DeferredCreate bool   // true: a symlink CREATE was deferred to a later SETATTR upcall
	LastError      error  // soft, non-fatal status (mirrors upcall->last_error)
	// OwnerUID and GroupGID are populated on the open_for_attributes
	// short-circuit (step 5): the server's owner/owner-group strings
	// mapped through the idmapper, or the nobody/nogroup sentinels when
	// unmapped or unavailable.
	OwnerUID uint32
	GroupGID uint32
}

// ErrTooManyLinks mirrors ERROR_TOO_MANY_LINKS: the reparse chain
// exceeded MaxSymlinkDepth.
var ErrTooManyLinks = errors.New("opendriver: too many levels of symbolic links")

// ErrIsDirectory mirrors ERROR_DIRECTORY: caller asked for a
// non-directory file but the target is a directory.
var ErrIsDirectory = errors.New("opendriver: cannot open a directory as a file")

// ErrBadFileType mirrors ERROR_BAD_FILE_TYPE: caller asked for a
// directory but the target is a regular file.
var ErrBadFileType = errors.New("opendriver: cannot open a file as a directory")

// ErrAccessDenied mirrors ERROR_ACCESS_DENIED, raised here when an
// OVERWRITE-family disposition targets a hidden/system file without the
// caller asserting the matching attribute.
var ErrAccessDenied = errors.New("opendriver: access denied")

// LookupInfo is what a LOOKUP of the target path reports.
type LookupInfo struct {
	Found    bool
	Type     FileType
	Hidden   bool
	System   bool
	Mode     uint32
	// OwnerName/GroupName are the NFS string owner/owner-group
	// attributes, when the LOOKUP's attribute set included them. A
	// fresh object (e.g. one this client just created) may omit them,
	// in which case GetOwnerGroup below is consulted instead.
	OwnerName string
	GroupName string
}

// Driver orchestrates C1 (path), C2 (owner), C4 (disposition mapping),
// and an rpc.CompoundExecutor to produce an OpenState, the Go analogue
// of handle_open().
type Driver struct {
	Executor          rpc.CompoundExecutor
	PersistentSession bool
	Registry          *openstate.Registry
	// Lookup resolves a path to filehandle + LookupInfo, or reports
	// "not found" without error. It is a narrow seam over the real
	// LOOKUP compound (and the reparse-symlink-chasing it requires)
	// so this package doesn't need to know the transport's connection
	// lifecycle.
	Lookup func(ctx context.Context, path string) (rpc.FileHandle, LookupInfo, error)
	// Idmap maps the owner/owner-group strings a GETATTR returns to
	// local uid/gid (step 5). A Mapper with a nil Resolver degrades
	// every resolution to the nobody/nogroup sentinel.
	Idmap idmap.Mapper
	// GetOwnerGroup issues the extra GETATTR step 5 calls for when a
	// fresh object's LOOKUP omitted the owner/owner-group strings. Nil
	// means an open_for_attributes short-circuit never has owner/group
	// data to offer and resolves to the sentinel ids.
	GetOwnerGroup func(ctx context.Context, fh rpc.FileHandle) (ownerName, groupName string, err error)
	// Register publishes a newly-created open-state to the owning
	// client's open list (step 10), so a recovery sweep or delegation
	// recall broadcast can iterate every open this client holds. Left
	// nil when no client-wide list is wired (e.g. in tests).
	Register func(state *openstate.OpenState)
}

// openForAttributes mirrors open_for_attributes(): a disposition that
// never needs create semantics (a straightforward FILE_OPEN, or
// OPEN_IF against an existing target) and an access mask that asks for
// no data access at all can be satisfied by the LOOKUP's attributes
// alone, without ever issuing OPEN4.
func openForAttributes(t FileType, accessMask uint32, disposition dispositions.Disposition, lookupFound bool) bool {
	const dataAccess = dispositions.AccessMaskReadData | dispositions.AccessMaskWriteData |
		dispositions.AccessMaskAppendData | dispositions.AccessMaskExecute
	if accessMask&dataAccess != 0 {
		return false
	}
	switch disposition {
	case dispositions.Open:
		return lookupFound
	case dispositions.OpenIf:
		return lookupFound
	default:
		return false
	}
}

// isDeferredSymlinkCreate recognizes the exact argument tuple
// CreateSymbolicLink() issues: a FILE_CREATE with only
// WRITE_ATTRIBUTES|SYNCHRONIZE|DELETE access, no sharing, and
// FILE_OPEN_REPARSE_POINT set. The caller is about to follow up with a
// SETATTR upcall to actually set the reparse point, so the CREATE
// itself is deferred rather than issued now.
func isDeferredSymlinkCreate(req Request) bool {
	const wantMask = 0x100 /* FILE_WRITE_ATTRIBUTES */ | 0x100000 /* SYNCHRONIZE */ | 0x10000 /* DELETE */
	return req.Disposition == dispositions.Create &&
		req.AccessMask == wantMask &&
		req.AccessMode == 0 &&
		req.CreateOpts&OptOpenReparsePoint != 0
}

// Open is C5. It performs the LOOKUP, resolves reparse points up to
// MaxSymlinkDepth, validates the target's type against the caller's
// directory/non-directory expectation, and then either returns a
// reparse instruction, defers a symlink CREATE, short-circuits via
// openForAttributes, or maps the disposition/access to OPEN4 arguments
// and issues the OPEN (retrying a SUPERSEDE race up to
// MaxSupersedeRetries times).
func (d *Driver) Open(ctx context.Context, req Request) (Result, error) {
	metrics.ObserveOpenStart()
	defer metrics.ObserveOpenEnd()

	path, err := openstate.NewPathRecord(req.Path)
	if err != nil {
		return Result{}, err
	}
	owner := openstate.NewOwner(req.OpenOwnerID)

	fh, info, err := d.resolveWithReparse(ctx, path)
	var rr errReparseReturn
	if errors.As(err, &rr) {
		return Result{Reparse: true, ReparsePath: rr.path, ReparseEmbed: true}, nil
	}
	if err != nil {
		return Result{}, err
	}

	wantDir := req.CreateOpts&OptDirectoryFile != 0
	wantNonDir := req.CreateOpts&OptNonDirectoryFile != 0
	if info.Found {
		switch info.Type {
		case TypeDirectory:
			if wantNonDir {
				return Result{}, ErrIsDirectory
			}
		case TypeRegular:
			if wantDir {
				return Result{}, ErrBadFileType
			}
		case TypeSymlink:
			if req.CreateOpts&OptOpenReparsePoint == 0 {
				return Result{Reparse: true, ReparsePath: req.Path}, nil
			}
		}
	}

	if req.SymlinkTarget != "" {
		// Cygwin-style symlink: handled immediately rather than deferred
		// to a later SETATTR, by a guarded-create OPEN of the name. No
		// NF4LNK object is created, no 0777 mode is set, and
		// SymlinkTarget itself is not sent to the server.
		openRes, err := d.Executor.Open(ctx, rpc.OpenArgs{
			Claim:       rpc.ClaimNull,
			Name:        path.Name(),
			OwnerOpaque: owner.Bytes(),
			CreateMode:  uint32(dispositions.CreateGuarded),
		})
		if err != nil {
			return Result{}, err
		}
		state := openstate.New(path, owner, openstate.FileHandleRef{Handle: openstate.FileHandle(openRes.FileHandle)}, openstate.FileHandleRef{})
		state.Stateid = openRes.Stateid
		state.MarkCloseActionPending()
		d.register(state)
		return Result{State: state}, nil
	}

	if isDeferredSymlinkCreate(req) {
		if info.Found {
			return Result{}, dispositions.ErrFileExists
		}
		parent := openstate.FileHandleRef{}
		state := openstate.New(path, owner, openstate.FileHandleRef{}, parent)
		d.register(state)
		return Result{State: state, DeferredCreate: true}, nil
	}

	if openForAttributes(info.Type, req.AccessMask, req.Disposition, info.Found) {
		if !info.Found {
			return Result{}, ErrNotFound
		}
		ownerName, groupName := info.OwnerName, info.GroupName
		if (ownerName == "" || groupName == "") && d.GetOwnerGroup != nil {
			o, g, err := d.GetOwnerGroup(ctx, fh)
			if err != nil {
				return Result{}, err
			}
			if ownerName == "" {
				ownerName = o
			}
			if groupName == "" {
				groupName = g
			}
		}
		state := openstate.New(path, owner, openstate.FileHandleRef{Handle: openstate.FileHandle(fh)}, openstate.FileHandleRef{})
		d.register(state)
		return Result{
			State:    state,
			OwnerUID: d.Idmap.MapOwner(ctx, ownerName),
			GroupGID: d.Idmap.MapGroup(ctx, groupName),
		}, nil
	}

	if info.Found && isOverwriteFamily(req.Disposition) {
		if (info.Hidden && req.FileAttrs&0x2 == 0) || (info.System && req.FileAttrs&0x4 == 0) {
			return Result{}, ErrAccessDenied
		}
	}

	plan, err := dispositions.MapDisposition(req.Disposition, info.Found, d.PersistentSession)
	if err != nil {
		return Result{}, err
	}
	willCreateWithNoDataAccess := plan.Create != dispositions.NoCreate && req.AccessMask&noDataAccessMask == 0
	shareAccess, shareDeny := dispositions.MapAccess(req.AccessMask, req.AccessMode, willCreateWithNoDataAccess)

	var openRes rpc.OpenResult
	for attempt := 0; ; attempt++ {
		openRes, err = d.Executor.Open(ctx, rpc.OpenArgs{
			Claim:         rpc.ClaimNull,
			Parent:        nil,
			Name:          path.Name(),
			OwnerOpaque:   owner.Bytes(),
			ShareAccess:   shareAccess,
			ShareDeny:     shareDeny,
			CreateMode:    uint32(plan.Create),
		})
		if err == nil {
			break
		}
		if req.Disposition == dispositions.Supersede && errors.Is(err, dispositions.ErrFileExists) && attempt < MaxSupersedeRetries {
			metrics.ObserveSupersedeRetry()
			if rmErr := d.Executor.Remove(ctx, nil, path.Name()); rmErr != nil {
				return Result{}, rmErr
			}
			continue
		}
		return Result{}, err
	}

	state := openstate.New(path, owner, openstate.FileHandleRef{Handle: openstate.FileHandle(openRes.FileHandle)}, openstate.FileHandleRef{})
	state.ShareAccess = shareAccess
	state.ShareDeny = shareDeny
	state.Stateid = openRes.Stateid
	state.MarkCloseActionPending()
	d.register(state)
	return Result{State: state, LastError: plan.LastError}, nil
}

// register publishes state to the client's open list (step 10), a no-op
// when no list is wired.
func (d *Driver) register(state *openstate.OpenState) {
	if d.Register != nil {
		d.Register(state)
	}
}

// noDataAccessMask is the set of access bits that count as "requesting
// data access" for the WANT_NO_DELEG decision below: a create with none
// of these set is the "touch"-style create that should discourage the
// server from handing out a delegation nobody will use.
const noDataAccessMask = dispositions.AccessMaskReadData | dispositions.AccessMaskExecute |
	dispositions.AccessMaskWriteData | dispositions.AccessMaskAppendData | dispositions.AccessMaskWriteAttrs

func isOverwriteFamily(d dispositions.Disposition) bool {
	return d == dispositions.Overwrite || d == dispositions.OverwriteIf || d == dispositions.Supersede
}

// resolveWithReparse performs the initial LOOKUP and, if the path
// crosses a symlinked parent component, rewrites the path and retries
// up to MaxSymlinkDepth times -- the Go analogue of handle_open's
// do/while loop on ERROR_REPARSE.
func (d *Driver) resolveWithReparse(ctx context.Context, path *openstate.PathRecord) (rpc.FileHandle, LookupInfo, error) {
	chased := false
	for depth := 0; ; depth++ {
		fh, info, err := d.Lookup(ctx, path.Path())
		var notFound errNotFound
		if err == nil || errors.As(err, &notFound) {
			if chased {
				// A parent component was a symlink; the kernel must
				// reparse to the fully resolved path rather than have
				// this driver continue opening under the old one.
				return nil, LookupInfo{}, errReparseReturn{path: path.Path()}
			}
			return fh, info, nil
		}
		var rp errReparse
		if !errors.As(err, &rp) {
			return nil, LookupInfo{}, err
		}
		if depth+1 > MaxSymlinkDepth {
			return nil, LookupInfo{}, ErrTooManyLinks
		}
		if rwErr := path.Rewrite(rp.target); rwErr != nil {
			return nil, LookupInfo{}, rwErr
		}
		chased = true
	}
}

// errReparse signals that a parent path component was a symlink and
// the path must be rewritten to its target before retrying LOOKUP.
type errReparse struct{ target string }

func (e errReparse) Error() string { return "opendriver: reparse required" }

// errReparseReturn signals the terminal case: after chasing symlinks,
// the resolved path itself (not a further lookup) is what the kernel
// should reparse to.
type errReparseReturn struct{ path string }

func (e errReparseReturn) Error() string { return "opendriver: reparse to resolved path" }

// errNotFound signals a clean "does not exist", distinct from a real
// lookup failure.
type errNotFound struct{}

func (errNotFound) Error() string { return "opendriver: not found" }

// ErrNotFound mirrors ERROR_FILE_NOT_FOUND: openForAttributes's
// short-circuit was taken but the target doesn't actually exist.
var ErrNotFound = errors.New("opendriver: file not found")
