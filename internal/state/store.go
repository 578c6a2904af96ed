// Package state persists the shared coordination document: which process
// owns which in-flight capture, and the per-channel classification cache.
// All mutation happens through flock-serialized read-modify-write
// transactions committed with an atomic rename, so concurrent pollers and
// capture processes cannot clobber each other's sections.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/namacap/namacap/internal/classify"
)

// Document is the persisted state file, rewritten wholesale at the end of
// every transaction.
type Document struct {
	// ActiveDownloaders maps video id to the pid of the capture process
	// that owns it.
	ActiveDownloaders map[string]int `json:"active_downloaders"`

	// ChannelVideos caches the last classification per video, keyed by
	// channel id.
	ChannelVideos map[string]map[string]classify.VideoState `json:"channel_videos"`
}

func newDocument() *Document {
	return &Document{
		ActiveDownloaders: map[string]int{},
		ChannelVideos:     map[string]map[string]classify.VideoState{},
	}
}

// normalize fills in nil maps after unmarshalling a partial document.
func (d *Document) normalize() {
	if d.ActiveDownloaders == nil {
		d.ActiveDownloaders = map[string]int{}
	}
	if d.ChannelVideos == nil {
		d.ChannelVideos = map[string]map[string]classify.VideoState{}
	}
}

// Store provides transactional access to the state document.
type Store struct {
	path     string
	lockPath string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{
		path:     path,
		lockPath: path + ".lock",
	}
}

// Load returns a snapshot of the current document under a shared lock.
// A missing or corrupt file reads as an empty document.
func (s *Store) Load() (*Document, error) {
	lock, err := s.acquireLock(unix.LOCK_SH)
	if err != nil {
		return nil, err
	}
	defer releaseLock(lock)

	return s.read(), nil
}

// Update runs fn against the current document under an exclusive lock and
// atomically rewrites the file with the result. Returning an error from fn
// aborts the transaction without writing.
func (s *Store) Update(fn func(*Document) error) error {
	lock, err := s.acquireLock(unix.LOCK_EX)
	if err != nil {
		return err
	}
	defer releaseLock(lock)

	doc := s.read()
	if err := fn(doc); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("commit state file: %w", err)
	}
	return nil
}

// read loads the document without locking. Corrupt or missing content
// yields an empty document rather than an error.
func (s *Store) read() *Document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return newDocument()
	}
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return newDocument()
	}
	doc.normalize()
	return doc
}

func (s *Store) acquireLock(how int) (*os.File, error) {
	f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open state lock: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flock state lock: %w", err)
	}
	return f, nil
}

func releaseLock(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = f.Close()
}
