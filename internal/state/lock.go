package state

import (
	"os"

	"golang.org/x/sys/unix"
)

// ProcessProbe answers whether the process that recorded a ledger entry is
// still alive. The default signal-0 probe is a zero-cost existence check:
// it cannot distinguish an unrelated process that reused the pid, which is
// an accepted limitation of this lock. Alternative implementations (lease
// files, an external lock service) can be plugged in here.
type ProcessProbe interface {
	Alive(pid int) bool
}

// PidProbe probes liveness by sending signal 0. Any failure to signal is
// read as "process is gone".
type PidProbe struct{}

// Alive implements ProcessProbe.
func (PidProbe) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}

// Lock guarantees at most one active capture per video id across process
// restarts, using the shared ledger plus process-liveness probing.
type Lock struct {
	store *Store
	probe ProcessProbe
	pid   int
}

// NewLock creates a lock for the current process.
func NewLock(store *Store) *Lock {
	return NewLockWithProbe(store, PidProbe{}, os.Getpid())
}

// NewLockWithProbe creates a lock with an injectable probe and pid, for
// tests and alternative liveness strategies.
func NewLockWithProbe(store *Store, probe ProcessProbe, pid int) *Lock {
	return &Lock{store: store, probe: probe, pid: pid}
}

// TryAcquire attempts to register the current process as the owner of the
// capture for videoID. When another live process already owns it,
// alreadyRunning is true and the ledger is left untouched. A dead owner's
// stale entry is replaced: it must be treated as absent, never as "still
// capturing". force bypasses the liveness check entirely; it is the
// operator's escape hatch and the only way two captures for one video can
// run concurrently.
func (l *Lock) TryAcquire(videoID string, force bool) (alreadyRunning bool, err error) {
	err = l.store.Update(func(doc *Document) error {
		if owner, ok := doc.ActiveDownloaders[videoID]; ok && !force {
			if l.probe.Alive(owner) {
				alreadyRunning = true
				return nil
			}
		}
		doc.ActiveDownloaders[videoID] = l.pid
		return nil
	})
	return alreadyRunning, err
}

// IsActive reports whether a live process currently owns the capture for
// videoID, without mutating the ledger.
func (l *Lock) IsActive(videoID string) (bool, error) {
	doc, err := l.store.Load()
	if err != nil {
		return false, err
	}
	owner, ok := doc.ActiveDownloaders[videoID]
	if !ok {
		return false, nil
	}
	return l.probe.Alive(owner), nil
}

// Release removes the ledger entry for videoID. Release is best-effort:
// when a capture process dies before releasing, the entry is cleaned up
// lazily by the next TryAcquire that finds the owner dead.
func (l *Lock) Release(videoID string) error {
	return l.store.Update(func(doc *Document) error {
		delete(doc.ActiveDownloaders, videoID)
		return nil
	})
}
