package rpc

import (
	"context"

	"github.com/kudingc/nfs41client/internal/stateid"
)

// FileHandle is an opaque NFSv4 filehandle as carried across the RPC
// boundary.
type FileHandle []byte

// ClaimType is the OPEN4 claim_type4 discriminant.
type ClaimType int

const (
	ClaimNull ClaimType = iota
	ClaimPrevious
	ClaimDelegateCurrent
	ClaimDelegatePrevious
)

// OpenArgs is the subset of OPEN4args this daemon's driver needs to
// issue an OPEN compound.
type OpenArgs struct {
	Claim          ClaimType
	Parent         FileHandle
	Name           string
	OwnerClientID  uint64
	OwnerOpaque    []byte
	OwnerSeqid     uint32
	ShareAccess    uint32
	ShareDeny      uint32
	CreateMode     uint32
	CreateVerifier [8]byte
	ReclaimStateid stateid.Stateid // used for CLAIM_PREVIOUS / CLAIM_DELEGATE_PREV
}

// OpenResult is the subset of OPEN4res this daemon's driver consumes.
type OpenResult struct {
	Stateid        stateid.Stateid
	FileHandle     FileHandle
	DelegationType int
	DelegationID   stateid.Stateid
}

// CloseArgs is CLOSE4args.
type CloseArgs struct {
	Stateid stateid.Stateid
}

// LookupArgs/LookupResult are the minimal LOOKUP compound inputs and
// outputs the OPEN driver needs to resolve a path component before
// deciding CREATE vs OPEN.
type LookupArgs struct {
	Parent FileHandle
	Name   string
}

type LookupResult struct {
	FileHandle FileHandle
	IsSymlink  bool
}

// CompoundExecutor is the seam between this daemon's open/close engine
// and the real RPC COMPOUND transport. A production binary wires this
// to a transport that marshals these arguments with the functions in
// encode.go and sends them over a session to the server; tests wire it
// to a fake that returns canned results.
type CompoundExecutor interface {
	Lookup(ctx context.Context, args LookupArgs) (LookupResult, error)
	Open(ctx context.Context, args OpenArgs) (OpenResult, error)
	Close(ctx context.Context, fh FileHandle, args CloseArgs) error
	Remove(ctx context.Context, parent FileHandle, name string) error
	DelegReturn(ctx context.Context, fh FileHandle, id stateid.Stateid) error
	LayoutReturn(ctx context.Context, fh FileHandle, id stateid.Stateid) error
}
