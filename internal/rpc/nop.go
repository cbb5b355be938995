package rpc

import (
	"context"
	"errors"

	"github.com/kudingc/nfs41client/internal/stateid"
)

// ErrNoTransport is returned by NopExecutor for every call: the RPC
// COMPOUND transport is an external collaborator this package only
// defines the contract for (see the package doc comment). NopExecutor
// exists so cmd/nfs41daemon has something satisfying CompoundExecutor
// to wire the rest of the daemon against before a real transport is
// plugged in.
var ErrNoTransport = errors.New("rpc: no transport configured")

// NopExecutor is a CompoundExecutor that fails every call with
// ErrNoTransport.
type NopExecutor struct{}

func (NopExecutor) Lookup(ctx context.Context, args LookupArgs) (LookupResult, error) {
	return LookupResult{}, ErrNoTransport
}

func (NopExecutor) Open(ctx context.Context, args OpenArgs) (OpenResult, error) {
	return OpenResult{}, ErrNoTransport
}

func (NopExecutor) Close(ctx context.Context, fh FileHandle, args CloseArgs) error {
	return ErrNoTransport
}

func (NopExecutor) Remove(ctx context.Context, parent FileHandle, name string) error {
	return ErrNoTransport
}

func (NopExecutor) DelegReturn(ctx context.Context, fh FileHandle, id stateid.Stateid) error {
	return ErrNoTransport
}

func (NopExecutor) LayoutReturn(ctx context.Context, fh FileHandle, id stateid.Stateid) error {
	return ErrNoTransport
}
