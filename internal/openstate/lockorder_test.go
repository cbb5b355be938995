package openstate

import (
	"sync"
	"testing"
	"time"

	"github.com/kudingc/nfs41client/internal/stateid"
)

// This test exercises the lease-ordered lock hierarchy an OpenState
// participates in: OpenState.mu, then PathRecord's own
// lock, then the locks-list mutex, then the EA mutex -- never the
// reverse. Every public method below only ever acquires its own lock
// and calls into a strictly inner collaborator, so a set of goroutines
// hammering all of them concurrently, combined with the race detector,
// is what would surface a reversed edge as a lock-order inversion or a
// data race, not a hang -- this test's job is to keep that traffic
// alive long enough to give the detector a chance.
func TestLockOrderNoDeadlockUnderConcurrency(t *testing.T) {
	path, err := NewPathRecord("/export/dir/file")
	if err != nil {
		t.Fatalf("NewPathRecord: %v", err)
	}
	s := New(path, NewOwner(7), FileHandleRef{}, FileHandleRef{})

	const workers = 8
	const iterations = 200

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				switch i % 5 {
				case 0:
					s.MarkCloseActionPending()
				case 1:
					_ = s.SelectStateid(nil)
				case 2:
					_ = s.Path.Path()
					s.AddLock(LockState{Offset: uint64(i), Length: 1, Stateid: stateid.Stateid{}})
					_ = s.Locks()
				case 3:
					s.SetExtendedAttributes([]byte{byte(id), byte(i)})
					_ = s.ExtendedAttributes()
				case 4:
					s.ClearCloseAction()
				}
			}
		}(w)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("lock-order exercise deadlocked")
	}
}
