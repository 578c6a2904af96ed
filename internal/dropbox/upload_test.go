package dropbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeStore implements the upload session endpoints, with optional
// connection drops on selected append attempts.
type fakeStore struct {
	mu            sync.Mutex
	received      []byte
	appendCalls   int
	dropAttempts  map[int]bool // append call number (1-based) -> drop connection
	finishedPath  string
	closeObserved bool
}

func (s *fakeStore) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/files/upload_session/start", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"session_id": "sess-1"})
	})

	mux.HandleFunc("/files/upload_session/append_v2", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.appendCalls++
		call := s.appendCalls
		drop := s.dropAttempts[call]
		s.mu.Unlock()

		if drop {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("response writer does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatalf("hijack: %v", err)
			}
			conn.Close()
			return
		}

		var arg struct {
			Cursor sessionCursor `json:"cursor"`
			Close  bool          `json:"close"`
		}
		if err := json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg); err != nil {
			t.Errorf("bad Dropbox-API-Arg: %v", err)
		}
		body, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		defer s.mu.Unlock()
		if int(arg.Cursor.Offset) != len(s.received) {
			w.WriteHeader(http.StatusConflict)
			return
		}
		s.received = append(s.received, body...)
		if arg.Close {
			s.closeObserved = true
		}
		w.Write([]byte("{}"))
	})

	mux.HandleFunc("/files/upload_session/finish", func(w http.ResponseWriter, r *http.Request) {
		var arg struct {
			Commit struct {
				Path string `json:"path"`
			} `json:"commit"`
		}
		json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.finishedPath = arg.Commit.Path
		json.NewEncoder(w).Encode(FileMetadata{
			Name:        filepath.Base(arg.Commit.Path),
			PathDisplay: arg.Commit.Path,
			Size:        int64(len(s.received)),
			ContentHash: refContentHash(s.received),
		})
	})

	return mux
}

func writeTempFile(t *testing.T, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 253)
	}
	path := filepath.Join(t.TempDir(), "artifact.mp4")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestUploader(srvURL string, chunkSize int64) *Uploader {
	client := NewClient("test-token", WithEndpoints(srvURL, srvURL))
	u := NewUploader(client, chunkSize)
	u.retryDelay = time.Millisecond
	return u
}

func TestUploadChunked(t *testing.T) {
	store := &fakeStore{}
	srv := httptest.NewServer(store.handler(t))
	defer srv.Close()

	path := writeTempFile(t, 20)
	u := newTestUploader(srv.URL, 8)

	meta, err := u.Upload(context.Background(), path, "/dest/artifact.mp4")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if meta.Size != 20 {
		t.Errorf("remote size = %d, want 20", meta.Size)
	}
	if store.appendCalls != 3 {
		t.Errorf("append calls = %d, want 3", store.appendCalls)
	}
	if !store.closeObserved {
		t.Error("final chunk did not close the session")
	}
	if store.finishedPath != "/dest/artifact.mp4" {
		t.Errorf("finished path = %q", store.finishedPath)
	}
}

func TestUploadRetriesConnectionFailureWithoutDoubleHashing(t *testing.T) {
	store := &fakeStore{dropAttempts: map[int]bool{2: true}}
	srv := httptest.NewServer(store.handler(t))
	defer srv.Close()

	path := writeTempFile(t, 20)
	u := newTestUploader(srv.URL, 8)

	// The second append attempt drops mid-flight and is retried. A hash
	// mismatch at finish would mean the retried chunk was hashed twice.
	if _, err := u.Upload(context.Background(), path, "/dest/artifact.mp4"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if store.appendCalls != 4 {
		t.Errorf("append calls = %d, want 4 (3 chunks + 1 retry)", store.appendCalls)
	}
}

func TestUploadDoesNotRetryStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/files/upload_session/start" {
			json.NewEncoder(w).Encode(map[string]string{"session_id": "sess-1"})
			return
		}
		http.Error(w, `{"error_summary":"payload rejected"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	path := writeTempFile(t, 4)
	u := newTestUploader(srv.URL, 8)

	_, err := u.Upload(context.Background(), path, "/dest/artifact.mp4")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Upload() error = %v, want StatusError", err)
	}
	if se.Code != http.StatusBadRequest {
		t.Errorf("StatusError code = %d, want 400", se.Code)
	}
}

func TestUploadDetectsHashMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/upload_session/start":
			json.NewEncoder(w).Encode(map[string]string{"session_id": "sess-1"})
		case "/files/upload_session/append_v2":
			w.Write([]byte("{}"))
		case "/files/upload_session/finish":
			json.NewEncoder(w).Encode(FileMetadata{ContentHash: "not-the-right-hash"})
		}
	}))
	defer srv.Close()

	path := writeTempFile(t, 4)
	u := newTestUploader(srv.URL, 8)

	_, err := u.Upload(context.Background(), path, "/dest/artifact.mp4")
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("Upload() error = %v, want IntegrityError", err)
	}
	if ie.Remote != "not-the-right-hash" {
		t.Errorf("IntegrityError remote = %q", ie.Remote)
	}
}

func TestUploadEmptyFile(t *testing.T) {
	store := &fakeStore{}
	srv := httptest.NewServer(store.handler(t))
	defer srv.Close()

	path := writeTempFile(t, 0)
	u := newTestUploader(srv.URL, 8)

	if _, err := u.Upload(context.Background(), path, "/dest/empty.mp4"); err != nil {
		t.Fatalf("Upload() of empty file error = %v", err)
	}
	if store.appendCalls != 1 {
		t.Errorf("append calls = %d, want 1", store.appendCalls)
	}
}
