package capture

import (
	"context"
	"os"

	"github.com/namacap/namacap/internal/task"
)

// FFmpeg wraps the external ffmpeg tool for the final remux.
type FFmpeg struct {
	binPath string
}

// NewFFmpeg creates a wrapper around the ffmpeg binary at binPath.
func NewFFmpeg(binPath string) *FFmpeg {
	return &FFmpeg{binPath: binPath}
}

// Metadata is embedded into the remuxed container.
type Metadata struct {
	Title   string
	Artist  string
	Comment string
}

// Remux copies the captured stream into a clean MP4 without re-encoding,
// moving the moov atom up front so playback can start before the download
// finishes.
func (f *FFmpeg) Remux(ctx context.Context, inPath, outPath string, meta Metadata) error {
	args := []string{
		"-y",
		"-i", inPath,
		"-c", "copy",
		"-movflags", "faststart",
		"-metadata", "title=" + meta.Title,
		"-metadata", "artist=" + meta.Artist,
		"-metadata", "comment=" + meta.Comment,
		outPath,
	}
	return task.Run(ctx, os.Stdout, os.Stderr, f.binPath, args...)
}
