package upcall

import (
	"bytes"
	"context"
	"testing"

	"github.com/kudingc/nfs41client/internal/cancel"
	"github.com/kudingc/nfs41client/internal/closedriver"
	"github.com/kudingc/nfs41client/internal/dispositions"
	"github.com/kudingc/nfs41client/internal/hosterr"
	"github.com/kudingc/nfs41client/internal/openstate"
	"github.com/kudingc/nfs41client/internal/opendriver"
	"github.com/kudingc/nfs41client/internal/rpc"
	"github.com/kudingc/nfs41client/internal/stateid"
)

func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Header{XID: 0xdeadbeef, Opcode: OpClose}
	if err := writeHeader(&buf, want); err != nil {
		t.Fatalf("writeHeader: %v", err)
	}
	got, err := readHeader(&buf)
	if err != nil {
		t.Fatalf("readHeader: %v", err)
	}
	if got != want {
		t.Fatalf("readHeader = %+v, want %+v", got, want)
	}
}

func TestDecodeOpenRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeLPString(&buf, "/export/dir/file"); err != nil {
		t.Fatalf("writeLPString: %v", err)
	}
	fixed := make([]byte, 4*6+8)
	buf.Write(fixed)

	u, err := DecodeOpen(Header{XID: 1, Opcode: OpOpen}, &buf)
	if err != nil {
		t.Fatalf("DecodeOpen: %v", err)
	}
	if u.Path != "/export/dir/file" {
		t.Fatalf("Path = %q, want /export/dir/file", u.Path)
	}
}

func TestEncodeOpenWithReparseAppendsPath(t *testing.T) {
	b, err := EncodeOpen(OpenDowncall{
		Header:      Header{XID: 1, Opcode: OpOpen},
		Status:      hosterr.Reparse,
		Reparse:     true,
		ReparsePath: "/export/dir/resolved",
	})
	if err != nil {
		t.Fatalf("EncodeOpen: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("EncodeOpen returned no bytes")
	}
}

func TestDecodeCloseWithRemove(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(1) // Remove
	binaryPutUint64(&buf, 42)
	if err := writeLPString(&buf, "oldname"); err != nil {
		t.Fatalf("writeLPString: %v", err)
	}
	buf.WriteByte(1) // Renamed

	u, err := DecodeClose(Header{XID: 2, Opcode: OpClose}, &buf)
	if err != nil {
		t.Fatalf("DecodeClose: %v", err)
	}
	if !u.Remove || !u.Renamed || u.SrvOpen != 42 || u.Path != "oldname" {
		t.Fatalf("DecodeClose = %+v, unexpected", u)
	}
}

func binaryPutUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	buf.Write(b[:])
}

// fakeExecutor is a minimal rpc.CompoundExecutor for dispatcher tests.
type fakeExecutor struct {
	openResult rpc.OpenResult
	openErr    error
}

func (f *fakeExecutor) Lookup(ctx context.Context, args rpc.LookupArgs) (rpc.LookupResult, error) {
	return rpc.LookupResult{}, nil
}

func (f *fakeExecutor) Open(ctx context.Context, args rpc.OpenArgs) (rpc.OpenResult, error) {
	return f.openResult, f.openErr
}

func (f *fakeExecutor) Close(ctx context.Context, fh rpc.FileHandle, args rpc.CloseArgs) error {
	return nil
}

func (f *fakeExecutor) Remove(ctx context.Context, parent rpc.FileHandle, name string) error {
	return nil
}

func (f *fakeExecutor) DelegReturn(ctx context.Context, fh rpc.FileHandle, id stateid.Stateid) error {
	return nil
}

func (f *fakeExecutor) LayoutReturn(ctx context.Context, fh rpc.FileHandle, id stateid.Stateid) error {
	return nil
}

func notFoundLookup(ctx context.Context, path string) (rpc.FileHandle, opendriver.LookupInfo, error) {
	return nil, opendriver.LookupInfo{}, nil
}

func newDispatcher(exec *fakeExecutor) *Dispatcher {
	registry := openstate.NewRegistry()
	diag := openstate.NewDiagnostics(8, 8)
	return &Dispatcher{
		OpenDriver: &opendriver.Driver{
			Executor: exec,
			Registry: registry,
			Lookup:   notFoundLookup,
		},
		CloseDriver: &closedriver.Driver{Executor: exec},
		Canceller:   &cancel.Canceller{Executor: exec},
		Registry:    registry,
		Diagnostics: diag,
	}
}

func encodeOpenFrame(t *testing.T, path string) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := writeLPString(&buf, path); err != nil {
		t.Fatalf("writeLPString: %v", err)
	}
	fixed := make([]byte, 4*6+8)
	fixed[4] = byte(dispositions.Create)
	buf.Write(fixed)
	return buf.Bytes()
}

func TestDispatcherHandleOpenThenClose(t *testing.T) {
	exec := &fakeExecutor{openResult: rpc.OpenResult{FileHandle: rpc.FileHandle("fh")}}
	d := newDispatcher(exec)

	openReply, err := d.HandleOpen(context.Background(), Header{XID: 1, Opcode: OpOpen}, bytes.NewReader(encodeOpenFrame(t, "/export/dir/newfile")))
	if err != nil {
		t.Fatalf("HandleOpen: %v", err)
	}
	if len(openReply) == 0 {
		t.Fatal("HandleOpen returned no reply bytes")
	}

	// StateHandle sits at byte 28 of the downcall (12-byte Header, then
	// Status, Mode and the 8-byte ChangeAttr before it), encoded
	// little-endian.
	var rawHandle uint64
	for i := 0; i < 8; i++ {
		rawHandle |= uint64(openReply[28+i]) << (8 * i)
	}
	handle := openstate.Handle(rawHandle)
	if _, ok := d.Registry.Lookup(handle); !ok {
		t.Fatal("no open-state was registered at the handle HandleOpen returned")
	}

	var closeBuf bytes.Buffer
	closeBuf.WriteByte(0) // Remove = false
	binaryPutUint64(&closeBuf, 0)
	closeReply, err := d.HandleClose(context.Background(), Header{XID: 2, Opcode: OpClose}, &closeBuf, handle)
	if err != nil {
		t.Fatalf("HandleClose: %v", err)
	}
	if len(closeReply) == 0 {
		t.Fatal("HandleClose returned no reply bytes")
	}
	if _, ok := d.Registry.Lookup(handle); ok {
		t.Fatal("handle should be freed after HandleClose released the last reference")
	}
}

func TestDispatcherHandleCloseUnknownHandleNotQuarantined(t *testing.T) {
	d := newDispatcher(&fakeExecutor{})
	reply, err := d.HandleClose(context.Background(), Header{XID: 3, Opcode: OpClose}, bytes.NewReader(append([]byte{0}, make([]byte, 8)...)), openstate.Handle(99))
	if err != nil {
		t.Fatalf("HandleClose: %v", err)
	}
	if len(reply) == 0 {
		t.Fatal("HandleClose returned no reply bytes")
	}
}
