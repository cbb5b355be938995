package openstate

import (
	"strconv"
)

// OpaqueLimit bounds an NFSv4 open-owner opaque string (NFS4_OPAQUE_LIMIT).
const OpaqueLimit = 32

// Owner is C2: a per-open stable opaque identity derived deterministically
// from a caller-supplied 32-bit open_owner_id. Two opens presenting the
// same id share an owner identity on the wire; different ids never do,
// because the owner bytes are just the decimal text encoding of the id.
type Owner struct {
	bytes []byte
}

// NewOwner derives the wire owner identity for a kernel-supplied
// open_owner_id, matching the original's use of _ultoa(id, 10) as an
// optimized decimal formatter.
func NewOwner(openOwnerID uint32) Owner {
	b := strconv.AppendUint(nil, uint64(openOwnerID), 10)
	if len(b) > OpaqueLimit {
		// Unreachable for a 32-bit id (max 10 digits), but keep the
		// invariant honest rather than silently truncating.
		b = b[:OpaqueLimit]
	}
	return Owner{bytes: b}
}

// Bytes returns the opaque owner string as placed on the wire.
func (o Owner) Bytes() []byte { return o.bytes }

// Len returns len(Bytes()); the owner invariant requires this equal
// strlen of the owner contents, which is automatically true here since
// the bytes are never NUL-padded.
func (o Owner) Len() int { return len(o.bytes) }

func (o Owner) String() string { return string(o.bytes) }

// Equal reports whether two owners carry the same wire identity.
func (o Owner) Equal(other Owner) bool {
	if len(o.bytes) != len(other.bytes) {
		return false
	}
	for i := range o.bytes {
		if o.bytes[i] != other.bytes[i] {
			return false
		}
	}
	return true
}
