// Package upcall implements the kernel upcall/downcall wire framing:
// packed little-endian decode/encode of OPEN and CLOSE requests, and
// the dispatcher loop that turns a parsed upcall into a call against
// the OPEN/CLOSE drivers, producing a downcall or feeding cancellation
// to C8.
package upcall

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kudingc/nfs41client/internal/cancel"
	"github.com/kudingc/nfs41client/internal/closedriver"
	"github.com/kudingc/nfs41client/internal/dispositions"
	"github.com/kudingc/nfs41client/internal/hosterr"
	"github.com/kudingc/nfs41client/internal/openstate"
	"github.com/kudingc/nfs41client/internal/opendriver"
	"github.com/kudingc/nfs41client/internal/rpc"
)

// statusForError is the single host-status translation point for this
// dispatcher: every error the OPEN/CLOSE drivers can return is mapped
// here instead of collapsing to a generic failure at the call site.
func statusForError(err error) hosterr.Code {
	switch {
	case errors.Is(err, dispositions.ErrFileExists):
		return hosterr.FileExists
	case errors.Is(err, dispositions.ErrFileNotFound):
		return hosterr.FileNotFound
	case errors.Is(err, opendriver.ErrNotFound):
		return hosterr.FileNotFound
	case errors.Is(err, opendriver.ErrTooManyLinks):
		return hosterr.TooManyLinks
	case errors.Is(err, opendriver.ErrIsDirectory):
		return hosterr.FileIsADirectory
	case errors.Is(err, opendriver.ErrBadFileType):
		return hosterr.BadFileType
	case errors.Is(err, opendriver.ErrAccessDenied):
		return hosterr.AccessDenied
	case errors.Is(err, openstate.ErrFilenameExceedsRange):
		return hosterr.FilenameExceedsRange
	}
	var se *rpc.StatusError
	if errors.As(err, &se) {
		return hosterr.FromProtocol(se.Status, hosterr.InternalError)
	}
	return hosterr.InternalError
}

// Opcode identifies which upcall this frame carries.
type Opcode uint32

const (
	OpOpen  Opcode = 1
	OpClose Opcode = 2
)

// Header is the fixed-size prefix every upcall/downcall frame starts
// with: a correlation id the kernel uses to match a downcall back to
// its upcall, and the opcode.
type Header struct {
	XID    uint64
	Opcode Opcode
}

const headerSize = 8 + 4

func readHeader(r io.Reader) (Header, error) {
	var raw [headerSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Header{}, err
	}
	return Header{
		XID:    binary.LittleEndian.Uint64(raw[0:8]),
		Opcode: Opcode(binary.LittleEndian.Uint32(raw[8:12])),
	}, nil
}

func writeHeader(w io.Writer, h Header) error {
	var raw [headerSize]byte
	binary.LittleEndian.PutUint64(raw[0:8], h.XID)
	binary.LittleEndian.PutUint32(raw[8:12], uint32(h.Opcode))
	_, err := w.Write(raw[:])
	return err
}

// OpenUpcall is the parsed NFS41_OPEN upcall payload.
type OpenUpcall struct {
	Header
	Path        string
	OpenOwnerID uint32
	Disposition uint32
	AccessMask  uint32
	AccessMode  uint32
	CreateOpts  uint32
	FileAttrs   uint32
	Mode        uint32
	SrvOpen     uint64
}

func readLPString(r io.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
	}
	return string(buf), nil
}

func writeLPString(w io.Writer, s string) error {
	if len(s) > 0xffff {
		return fmt.Errorf("upcall: string too long to frame (%d bytes)", len(s))
	}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(s)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// DecodeOpen parses an NFS41_OPEN upcall frame (the Header has already
// been consumed by the dispatcher and is passed in).
func DecodeOpen(h Header, r io.Reader) (OpenUpcall, error) {
	u := OpenUpcall{Header: h}
	path, err := readLPString(r)
	if err != nil {
		return OpenUpcall{}, err
	}
	u.Path = path

	var fixed [4*6 + 8]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return OpenUpcall{}, err
	}
	u.OpenOwnerID = binary.LittleEndian.Uint32(fixed[0:4])
	u.Disposition = binary.LittleEndian.Uint32(fixed[4:8])
	u.AccessMask = binary.LittleEndian.Uint32(fixed[8:12])
	u.AccessMode = binary.LittleEndian.Uint32(fixed[12:16])
	u.CreateOpts = binary.LittleEndian.Uint32(fixed[16:20])
	u.FileAttrs = binary.LittleEndian.Uint32(fixed[20:24])
	u.SrvOpen = binary.LittleEndian.Uint64(fixed[24:32])
	return u, nil
}

// OpenDowncall is the NFS41_OPEN downcall payload.
type OpenDowncall struct {
	Header
	Status      hosterr.Code
	Mode        uint32
	ChangeAttr  uint64
	StateHandle uint64
	// LastError carries a soft, non-fatal status alongside a successful
	// open -- e.g. FileNotFound when FILE_OPEN_IF had to create --
	// mirroring upcall->last_error. hosterr.Success when nothing to report.
	LastError   hosterr.Code
	// OwnerUID and GroupGID carry the idmapper-resolved ids from an
	// open_for_attributes short-circuit (step 5). Zero when the open
	// issued a real OPEN4 instead, where the kernel already has its own
	// attribute cache entry to update.
	OwnerUID    uint32
	GroupGID    uint32
	Reparse     bool
	ReparsePath string
}

// EncodeOpen renders an OpenDowncall as wire bytes.
func EncodeOpen(d OpenDowncall) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeHeader(&buf, d.Header); err != nil {
		return nil, err
	}
	var fixed [4 + 4 + 8 + 8 + 4 + 4 + 4 + 1]byte
	binary.LittleEndian.PutUint32(fixed[0:4], uint32(d.Status))
	binary.LittleEndian.PutUint32(fixed[4:8], d.Mode)
	binary.LittleEndian.PutUint64(fixed[8:16], d.ChangeAttr)
	binary.LittleEndian.PutUint64(fixed[16:24], d.StateHandle)
	binary.LittleEndian.PutUint32(fixed[24:28], uint32(d.LastError))
	binary.LittleEndian.PutUint32(fixed[28:32], d.OwnerUID)
	binary.LittleEndian.PutUint32(fixed[32:36], d.GroupGID)
	if d.Reparse {
		fixed[36] = 1
	}
	if _, err := buf.Write(fixed[:]); err != nil {
		return nil, err
	}
	if d.Reparse {
		if err := writeLPString(&buf, d.ReparsePath); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// CloseUpcall is the parsed NFS41_CLOSE upcall payload.
type CloseUpcall struct {
	Header
	Remove  bool
	SrvOpen uint64
	Path    string
	Renamed bool
}

// DecodeClose parses an NFS41_CLOSE upcall frame.
func DecodeClose(h Header, r io.Reader) (CloseUpcall, error) {
	u := CloseUpcall{Header: h}
	var fixed [1 + 8]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return CloseUpcall{}, err
	}
	u.Remove = fixed[0] != 0
	u.SrvOpen = binary.LittleEndian.Uint64(fixed[1:9])
	if u.Remove {
		path, err := readLPString(r)
		if err != nil {
			return CloseUpcall{}, err
		}
		u.Path = path
		var renamed [1]byte
		if _, err := io.ReadFull(r, renamed[:]); err != nil {
			return CloseUpcall{}, err
		}
		u.Renamed = renamed[0] != 0
	}
	return u, nil
}

// CloseDowncall is the NFS41_CLOSE downcall payload.
type CloseDowncall struct {
	Header
	Status hosterr.Code
}

// EncodeClose renders a CloseDowncall as wire bytes.
func EncodeClose(d CloseDowncall) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeHeader(&buf, d.Header); err != nil {
		return nil, err
	}
	var fixed [4]byte
	binary.LittleEndian.PutUint32(fixed[:], uint32(d.Status))
	_, err := buf.Write(fixed[:])
	return buf.Bytes(), err
}

// Dispatcher routes decoded upcalls to the OPEN/CLOSE drivers and the
// cancellation path, and registers the resulting OpenState so a later
// CLOSE upcall (or a cancellation) can look it up by handle.
type Dispatcher struct {
	OpenDriver  *opendriver.Driver
	CloseDriver *closedriver.Driver
	Canceller   *cancel.Canceller
	Registry    *openstate.Registry
	Diagnostics *openstate.Diagnostics
}

// HandleOpen decodes, drives, and encodes a complete OPEN round trip.
func (d *Dispatcher) HandleOpen(ctx context.Context, h Header, body io.Reader) ([]byte, error) {
	u, err := DecodeOpen(h, body)
	if err != nil {
		return nil, err
	}

	res, err := d.OpenDriver.Open(ctx, opendriver.Request{
		Path:        u.Path,
		OpenOwnerID: u.OpenOwnerID,
		Disposition: dispositions.Disposition(u.Disposition),
		AccessMask:  u.AccessMask,
		AccessMode:  u.AccessMode,
		CreateOpts:  opendriver.CreateOpts(u.CreateOpts),
		FileAttrs:   u.FileAttrs,
	})
	if err != nil {
		return EncodeOpen(OpenDowncall{Header: h, Status: statusForError(err)})
	}
	if res.Reparse {
		return EncodeOpen(OpenDowncall{Header: h, Status: hosterr.Reparse, Reparse: true, ReparsePath: res.ReparsePath})
	}

	var handle uint64
	if res.State != nil {
		handle = uint64(res.State.Register(d.Registry))
	}
	lastStatus := hosterr.Success
	if res.LastError != nil {
		lastStatus = statusForError(res.LastError)
	}
	return EncodeOpen(OpenDowncall{
		Header:      h,
		Status:      hosterr.Success,
		Mode:        u.Mode,
		StateHandle: handle,
		LastError:   lastStatus,
		OwnerUID:    res.OwnerUID,
		GroupGID:    res.GroupGID,
	})
}

// HandleClose decodes, drives, and encodes a complete CLOSE round trip.
// handle is the kernel-supplied value the OPEN downcall returned, looked
// up in the Registry to find the OpenState it names (the Go analogue of
// the kernel passing back the HANDLE from the OPEN downcall).
func (d *Dispatcher) HandleClose(ctx context.Context, h Header, body io.Reader, handle openstate.Handle) ([]byte, error) {
	u, err := DecodeClose(h, body)
	if err != nil {
		return nil, err
	}

	state, ok := d.Registry.Lookup(handle)
	if !ok {
		if d.Diagnostics.IsQuarantined(handle) {
			return EncodeClose(CloseDowncall{Header: h, Status: hosterr.Success})
		}
		return EncodeClose(CloseDowncall{Header: h, Status: hosterr.FileNotFound})
	}

	err = d.CloseDriver.Close(ctx, state, closedriver.Request{
		Remove:  u.Remove,
		Renamed: u.Renamed,
		Name:    u.Path,
		SrvOpen: u.SrvOpen,
	})
	state.Release(d.Diagnostics)
	if err != nil {
		return EncodeClose(CloseDowncall{Header: h, Status: statusForError(err)})
	}
	return EncodeClose(CloseDowncall{Header: h, Status: hosterr.Success})
}

// Cancel handles a kernel cancellation of an in-flight OPEN.
func (d *Dispatcher) Cancel(ctx context.Context, handle openstate.Handle, created bool, name string) error {
	state, ok := d.Registry.Lookup(handle)
	if !ok {
		return nil
	}
	return d.Canceller.Cancel(ctx, state, cancel.Request{Created: created, Name: name})
}

// ReadHeader exposes the frame header decode for the dispatch loop in
// cmd/nfs41daemon, which needs the opcode before it knows which of
// DecodeOpen/DecodeClose to call.
func ReadHeader(r io.Reader) (Header, error) { return readHeader(r) }
