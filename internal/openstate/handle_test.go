package openstate

import "testing"

func TestRegistryAllocLookupFree(t *testing.T) {
	reg := NewRegistry()
	s := &OpenState{}
	h := reg.Alloc(s)

	got, ok := reg.Lookup(h)
	if !ok || got != s {
		t.Fatalf("Lookup(%v) = %v, %v; want %v, true", h, got, ok, s)
	}

	reg.Free(h)
	if _, ok := reg.Lookup(h); ok {
		t.Fatalf("Lookup(%v) after Free: got ok=true, want false", h)
	}
}

func TestRegistryGenerationRejectsStaleHandle(t *testing.T) {
	reg := NewRegistry()
	s1 := &OpenState{}
	h1 := reg.Alloc(s1)
	reg.Free(h1)

	s2 := &OpenState{}
	h2 := reg.Alloc(s2)

	if h1.index() != h2.index() {
		t.Fatalf("expected slot reuse: h1.index=%d h2.index=%d", h1.index(), h2.index())
	}
	if h1 == h2 {
		t.Fatalf("expected reused slot to carry a new generation, got identical handles")
	}
	if _, ok := reg.Lookup(h1); ok {
		t.Fatalf("Lookup(h1) should fail after slot reuse, got ok=true")
	}
	got, ok := reg.Lookup(h2)
	if !ok || got != s2 {
		t.Fatalf("Lookup(h2) = %v, %v; want %v, true", got, ok, s2)
	}
}

func TestInvalidHandleNeverLooksUp(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.Lookup(invalidHandle); ok {
		t.Fatalf("Lookup(invalidHandle) should always fail")
	}
}
