// Package recovery persists the open-state list's essentials to
// BadgerDB so a restarted daemon can reissue OPEN with CLAIM_PREVIOUS
// during the server's grace period instead of losing every open on a
// process restart -- the original kept this list in memory only.
package recovery

import (
	"context"
	"encoding/json"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/kudingc/nfs41client/internal/stateid"
)

const keyPrefix = "openstate:"

// Snapshot is the durable form of an OpenState: just enough to reissue
// a CLAIM_PREVIOUS OPEN during recovery, not the full in-memory object
// (locks, delegation, EA buffers are not reclaimed this way -- they
// are reacquired fresh once the open itself is reclaimed).
type Snapshot struct {
	ClientID    uint64          `json:"client_id"`
	SrvOpen     uint64          `json:"srv_open"`
	Path        string          `json:"path"`
	OwnerID     uint32          `json:"owner_id"`
	Stateid     stateid.Stateid `json:"stateid"`
	ShareAccess uint32          `json:"share_access"`
	ShareDeny   uint32          `json:"share_deny"`
}

func key(clientID, srvOpen uint64) []byte {
	return []byte(fmt.Sprintf("%s%d:%d", keyPrefix, clientID, srvOpen))
}

func clientPrefix(clientID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d:", keyPrefix, clientID))
}

// Store is the Badger-backed persistence layer for open-state
// snapshots, keyed "openstate:<client-id>:<srv-open>" so a reclaim
// pass can range-scan every open belonging to one client.
type Store struct {
	db *badgerdb.DB
}

// Open opens (creating if absent) a Badger database at dir.
func Open(dir string) (*Store, error) {
	db, err := badgerdb.Open(badgerdb.DefaultOptions(dir))
	if err != nil {
		return nil, fmt.Errorf("recovery: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Healthcheck verifies the store can still serve a read transaction.
func (s *Store) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.View(func(txn *badgerdb.Txn) error { return nil })
	if err != nil {
		return fmt.Errorf("recovery: healthcheck: %w", err)
	}
	return nil
}

// Save persists (or overwrites) a snapshot. The OPEN driver does not
// call it when an open acquires do_close.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("recovery: encode snapshot: %w", err)
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key(snap.ClientID, snap.SrvOpen), val)
	})
}

// Delete drops a snapshot. The CLOSE driver and cancellation rollback
// do not call it when they unlink an open-state.
func (s *Store) Delete(ctx context.Context, clientID, srvOpen uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(key(clientID, srvOpen))
	})
}

// ListForClient returns every snapshot recorded for clientID, for the
// reclaim pass a daemon runs against its own recovery database right
// after it re-establishes a lease with the server.
func (s *Store) ListForClient(ctx context.Context, clientID uint64) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []Snapshot
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = clientPrefix(clientID)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var snap Snapshot
				if err := json.Unmarshal(val, &snap); err != nil {
					return err
				}
				out = append(out, snap)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recovery: list for client %d: %w", clientID, err)
	}
	return out, nil
}
