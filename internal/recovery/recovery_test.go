package recovery

import (
	"context"
	"testing"

	"github.com/kudingc/nfs41client/internal/stateid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveListDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	snap := Snapshot{
		ClientID:    1,
		SrvOpen:     100,
		Path:        "/export/file.txt",
		OwnerID:     7,
		Stateid:     stateid.Stateid{Seqid: 1, Other: [stateid.OtherSize]byte{1, 2, 3}},
		ShareAccess: 1,
		ShareDeny:   0,
	}
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.ListForClient(ctx, 1)
	if err != nil {
		t.Fatalf("ListForClient: %v", err)
	}
	if len(got) != 1 || got[0] != snap {
		t.Fatalf("ListForClient = %+v, want [%+v]", got, snap)
	}

	if err := s.Delete(ctx, 1, 100); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err = s.ListForClient(ctx, 1)
	if err != nil {
		t.Fatalf("ListForClient after delete: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("ListForClient after delete = %+v, want empty", got)
	}
}

func TestListForClientScopesByClientID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, Snapshot{ClientID: 1, SrvOpen: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, Snapshot{ClientID: 2, SrvOpen: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.ListForClient(ctx, 1)
	if err != nil {
		t.Fatalf("ListForClient: %v", err)
	}
	if len(got) != 1 || got[0].ClientID != 1 {
		t.Fatalf("ListForClient(1) = %+v, want exactly client 1's snapshot", got)
	}
}

func TestHealthcheck(t *testing.T) {
	s := openTestStore(t)
	if err := s.Healthcheck(context.Background()); err != nil {
		t.Fatalf("Healthcheck: %v", err)
	}
}
