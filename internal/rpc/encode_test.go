package rpc

import (
	"testing"
)

func TestEncodeOpenArgsProducesWireBytes(t *testing.T) {
	b, err := EncodeOpenArgs(OpenArgs{
		Claim:         ClaimNull,
		Name:          "newfile",
		OwnerClientID: 7,
		OwnerOpaque:   []byte("owner"),
		ShareAccess:   1,
		ShareDeny:     0,
	})
	if err != nil {
		t.Fatalf("EncodeOpenArgs: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("EncodeOpenArgs returned no bytes")
	}
}

func TestEncodeCloseArgsProducesWireBytes(t *testing.T) {
	b, err := EncodeCloseArgs(CloseArgs{})
	if err != nil {
		t.Fatalf("EncodeCloseArgs: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("EncodeCloseArgs returned no bytes")
	}
}

func TestDecodeOpenResultParsesFixedStateidPrefix(t *testing.T) {
	var resultBytes [4 + 12]byte
	resultBytes[0] = 1 // most-significant byte: XDR is big-endian
	resultBytes[4] = 0xaa

	seqid, other, err := DecodeOpenResult(resultBytes[:])
	if err != nil {
		t.Fatalf("DecodeOpenResult: %v", err)
	}
	if seqid != 1<<24 {
		t.Fatalf("seqid = %d, want %d", seqid, 1<<24)
	}
	if other[0] != 0xaa {
		t.Fatalf("other[0] = %x, want 0xaa", other[0])
	}
}
