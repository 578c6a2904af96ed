package state

import (
	"path/filepath"
	"testing"
)

// fakeProbe reports liveness from a fixed set of pids.
type fakeProbe struct {
	alive map[int]bool
}

func (p fakeProbe) Alive(pid int) bool { return p.alive[pid] }

func TestTryAcquireFresh(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	lock := NewLockWithProbe(store, fakeProbe{alive: map[int]bool{}}, 100)

	alreadyRunning, err := lock.TryAcquire("vid0000000A", false)
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	if alreadyRunning {
		t.Error("TryAcquire() on empty ledger reported already running")
	}

	doc, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.ActiveDownloaders["vid0000000A"]; got != 100 {
		t.Errorf("ledger owner = %d, want 100", got)
	}
}

func TestTryAcquireLiveOwnerBlocks(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	probe := fakeProbe{alive: map[int]bool{100: true}}

	first := NewLockWithProbe(store, probe, 100)
	if _, err := first.TryAcquire("vid0000000A", false); err != nil {
		t.Fatal(err)
	}

	second := NewLockWithProbe(store, probe, 200)
	alreadyRunning, err := second.TryAcquire("vid0000000A", false)
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	if !alreadyRunning {
		t.Error("TryAcquire() against a live owner did not report already running")
	}

	doc, _ := store.Load()
	if got := doc.ActiveDownloaders["vid0000000A"]; got != 100 {
		t.Errorf("ledger owner = %d, want untouched 100", got)
	}
}

func TestTryAcquireStaleOwnerRecovered(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	probe := fakeProbe{alive: map[int]bool{200: true}}

	// Simulate a crashed owner: ledger entry present, pid dead.
	if err := store.Update(func(doc *Document) error {
		doc.ActiveDownloaders["vid0000000A"] = 100
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	lock := NewLockWithProbe(store, probe, 200)
	alreadyRunning, err := lock.TryAcquire("vid0000000A", false)
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	if alreadyRunning {
		t.Error("stale entry treated as a live owner")
	}

	doc, _ := store.Load()
	if got := doc.ActiveDownloaders["vid0000000A"]; got != 200 {
		t.Errorf("ledger owner = %d, want replaced with 200", got)
	}
}

func TestTryAcquireForceBypassesLiveOwner(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	probe := fakeProbe{alive: map[int]bool{100: true, 200: true}}

	first := NewLockWithProbe(store, probe, 100)
	if _, err := first.TryAcquire("vid0000000A", false); err != nil {
		t.Fatal(err)
	}

	second := NewLockWithProbe(store, probe, 200)
	alreadyRunning, err := second.TryAcquire("vid0000000A", true)
	if err != nil {
		t.Fatalf("TryAcquire(force) error = %v", err)
	}
	if alreadyRunning {
		t.Error("force acquire reported already running")
	}

	doc, _ := store.Load()
	if got := doc.ActiveDownloaders["vid0000000A"]; got != 200 {
		t.Errorf("ledger owner = %d, want 200 after force", got)
	}
}

func TestIsActive(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	probe := fakeProbe{alive: map[int]bool{100: true}}
	lock := NewLockWithProbe(store, probe, 999)

	active, err := lock.IsActive("vid0000000A")
	if err != nil {
		t.Fatal(err)
	}
	if active {
		t.Error("IsActive() on empty ledger = true")
	}

	if err := store.Update(func(doc *Document) error {
		doc.ActiveDownloaders["vid0000000A"] = 100
		doc.ActiveDownloaders["vid0000000B"] = 101
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if active, _ := lock.IsActive("vid0000000A"); !active {
		t.Error("IsActive() with live owner = false")
	}
	if active, _ := lock.IsActive("vid0000000B"); active {
		t.Error("IsActive() with dead owner = true")
	}
}

func TestRelease(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	lock := NewLockWithProbe(store, fakeProbe{alive: map[int]bool{}}, 100)

	if _, err := lock.TryAcquire("vid0000000A", false); err != nil {
		t.Fatal(err)
	}
	if err := lock.Release("vid0000000A"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	doc, _ := store.Load()
	if _, ok := doc.ActiveDownloaders["vid0000000A"]; ok {
		t.Error("ledger entry still present after Release()")
	}

	// Releasing an absent entry is a no-op, not an error.
	if err := lock.Release("vid0000000A"); err != nil {
		t.Errorf("Release() of absent entry error = %v", err)
	}
}

func TestPidProbeRejectsNonPositive(t *testing.T) {
	probe := PidProbe{}
	if probe.Alive(0) {
		t.Error("Alive(0) = true")
	}
	if probe.Alive(-1) {
		t.Error("Alive(-1) = true")
	}
}
