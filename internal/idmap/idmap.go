// Package idmap provides the minimal idmapper collaborator C5 calls
// directly: mapping the NFS string owner/owner-group identifiers a
// GETATTR returns to local Windows-side uid/gid values, falling back
// to sentinel nobody/nogroup ids when a name is unknown. The full
// NFSv4 idmapper (domain configuration, upcall to a real name service)
// is out of scope; this package exists only to give
// open_for_attributes (spec step 5) a real, if narrow, collaborator.
package idmap

import "context"

// NobodyID and NogroupID mirror the conventional anonymous uid/gid
// (65534), used whenever a principal string cannot be resolved --
// deliberately the same sentinel sid.h reserves for an unmapped SID
// rather than failing the attributes-only open outright.
const (
	NobodyID  uint32 = 65534
	NogroupID uint32 = 65534
)

// Resolver is the narrow seam over the real name service (LDAP, NIS,
// a local passwd/group file, a Windows SID translation table) that
// turns an NFS owner or owner-group string into a uid/gid. Found is
// false, not an error, when the resolver has no mapping for name.
type Resolver interface {
	ResolveOwner(ctx context.Context, name string) (id uint32, found bool, err error)
	ResolveGroup(ctx context.Context, name string) (id uint32, found bool, err error)
}

// Mapper is what opendriver.Driver depends on: MapOwner/MapGroup never
// fail to produce an id -- an unresolvable name or a nil/erroring
// Resolver degrades to the nobody/nogroup sentinel rather than failing
// the open. Unmapped names fall back to sentinel nobody/nogroup ids.
type Mapper struct {
	Resolver Resolver
}

// MapOwner resolves an NFS owner string to a uid, or NobodyID.
func (m Mapper) MapOwner(ctx context.Context, name string) uint32 {
	if m.Resolver == nil || name == "" {
		return NobodyID
	}
	id, found, err := m.Resolver.ResolveOwner(ctx, name)
	if err != nil || !found {
		return NobodyID
	}
	return id
}

// MapGroup resolves an NFS owner-group string to a gid, or NogroupID.
func (m Mapper) MapGroup(ctx context.Context, name string) uint32 {
	if m.Resolver == nil || name == "" {
		return NogroupID
	}
	id, found, err := m.Resolver.ResolveGroup(ctx, name)
	if err != nil || !found {
		return NogroupID
	}
	return id
}
