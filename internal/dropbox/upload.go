package dropbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/namacap/namacap/internal/log"
	"github.com/namacap/namacap/internal/telemetry"
)

// IntegrityError reports a mismatch between the locally computed content
// hash and the one the remote store recorded for the finalized file. It
// is fatal: the artifact must be re-uploaded manually or by an outer
// retry policy, never silently accepted.
type IntegrityError struct {
	Path   string
	Local  string
	Remote string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("content hash mismatch for %s: local %s, remote %s", e.Path, e.Local, e.Remote)
}

// Uploader coordinates a chunked, verified upload of one local artifact.
type Uploader struct {
	client *Client
	// chunkSize is the session append size; independent of the 4 MiB
	// content-hash block size.
	chunkSize  int64
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewUploader creates an uploader sending chunkSize-byte pieces.
func NewUploader(client *Client, chunkSize int64) *Uploader {
	return &Uploader{
		client:     client,
		chunkSize:  chunkSize,
		retryDelay: 10 * time.Second,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Upload sends the file at localPath to destPath in ordered chunks,
// verifies the remote content hash against the locally computed one, and
// returns the finalized file's metadata.
func (u *Uploader) Upload(ctx context.Context, localPath, destPath string) (*FileMetadata, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	totalSize := info.Size()

	totalChunks := (totalSize + u.chunkSize - 1) / u.chunkSize
	if totalChunks == 0 {
		totalChunks = 1
	}

	log.Info("starting upload session",
		zap.String("dest", destPath),
		zap.Int64("size", totalSize),
		zap.Int64("chunks", totalChunks),
	)

	sessionID, err := u.client.SessionStart(ctx)
	if err != nil {
		return nil, err
	}

	hasher := NewContentHasher()
	buf := make([]byte, u.chunkSize)
	var uploaded int64

	for chunkNum := int64(0); chunkNum < totalChunks; chunkNum++ {
		isLast := chunkNum == totalChunks-1

		n, err := io.ReadFull(f, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read chunk %d: %w", chunkNum, err)
		}
		chunk := buf[:n]

		log.Debug("uploading chunk",
			zap.Int64("chunk", chunkNum),
			zap.Int64("offset", uploaded),
			zap.Int("bytes", n),
		)
		if err := u.sendChunk(ctx, sessionID, uploaded, chunk, isLast); err != nil {
			return nil, fmt.Errorf("upload chunk %d: %w", chunkNum, err)
		}

		// Hash only after the chunk durably landed; hashing before a
		// retried send would double-count bytes.
		_, _ = hasher.Write(chunk)
		uploaded += int64(n)
		telemetry.AddUploadBytes(n)
	}

	log.Info("finishing session", zap.String("session_id", sessionID))
	meta, err := u.client.SessionFinish(ctx, sessionID, uploaded, destPath)
	if err != nil {
		return nil, err
	}

	local := hasher.HexDigest()
	if local != meta.ContentHash {
		return nil, &IntegrityError{Path: destPath, Local: local, Remote: meta.ContentHash}
	}

	return meta, nil
}

// UploadAndPublish uploads the artifact, then obtains a hot-linkable
// public link and a thumbnail for it.
func (u *Uploader) UploadAndPublish(ctx context.Context, localPath, destPath string) (string, []byte, error) {
	if _, err := u.Upload(ctx, localPath, destPath); err != nil {
		return "", nil, err
	}

	link, err := u.client.SharedLink(ctx, destPath)
	if err != nil {
		return "", nil, err
	}
	thumb, err := u.client.Thumbnail(ctx, destPath)
	if err != nil {
		return "", nil, err
	}
	return link, thumb, nil
}

// sendChunk sends one chunk, retrying connection-level failures with a
// fixed delay for as long as the context allows. Any other failure, a
// rejected status from the store included, propagates immediately.
func (u *Uploader) sendChunk(ctx context.Context, sessionID string, offset int64, chunk []byte, closeSession bool) error {
	for attempt := 1; ; attempt++ {
		err := u.client.SessionAppend(ctx, sessionID, offset, chunk, closeSession)
		if err == nil {
			return nil
		}
		if !isTransient(err) || ctx.Err() != nil {
			return err
		}

		telemetry.IncUploadRetries()
		log.Warn("transient chunk upload failure, will retry",
			zap.Int64("offset", offset),
			zap.Int("attempt", attempt),
			zap.Duration("delay", u.retryDelay),
			zap.Error(err),
		)
		if err := u.sleep(ctx, u.retryDelay); err != nil {
			return err
		}
	}
}

// isTransient reports whether the error is a connection-level failure.
// Only those are retried; protocol rejections are not.
func isTransient(err error) bool {
	var ue *url.Error
	return errors.As(err, &ue)
}
