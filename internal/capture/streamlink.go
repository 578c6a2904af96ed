package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/namacap/namacap/internal/task"
)

// Streamlink wraps the external streamlink tool.
type Streamlink struct {
	binPath string
}

// NewStreamlink creates a wrapper around the streamlink binary at binPath.
func NewStreamlink(binPath string) *Streamlink {
	return &Streamlink{binPath: binPath}
}

// Record captures the stream at watchURL into outPath, blocking until the
// stream ends or ctx is canceled. Retries around brief dropouts are
// delegated to the tool itself.
func (s *Streamlink) Record(ctx context.Context, watchURL, outPath string) error {
	args := []string{
		"--force",
		"--hls-timeout", "60",
		"--hls-live-restart",
		"--retry-streams", "10",
		"--retry-max", "10",
		"-o", outPath,
		watchURL,
		"best",
	}
	return task.Run(ctx, os.Stdout, os.Stderr, s.binPath, args...)
}

// StreamURL resolves the direct manifest URL for the best quality variant
// without starting a capture.
func (s *Streamlink) StreamURL(ctx context.Context, watchURL string) (string, error) {
	var stdout bytes.Buffer
	args := []string{"--stream-url", watchURL, "best"}
	if err := task.Run(ctx, &stdout, os.Stderr, s.binPath, args...); err != nil {
		return "", fmt.Errorf("resolve stream url: %w", err)
	}
	u := strings.TrimSpace(stdout.String())
	if u == "" {
		return "", fmt.Errorf("streamlink returned no stream url")
	}
	return u, nil
}
