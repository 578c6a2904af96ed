// Package capture runs the per-video pipeline: acquire the singleton
// ledger entry, wait for the scheduled start, record the stream, remux,
// upload, notify, clean up.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/namacap/namacap/internal/config"
	"github.com/namacap/namacap/internal/hls"
	"github.com/namacap/namacap/internal/log"
	"github.com/namacap/namacap/internal/notify"
	"github.com/namacap/namacap/internal/state"
	"github.com/namacap/namacap/internal/waiter"
	"github.com/namacap/namacap/internal/youtube"
)

// ErrAlreadyRunning means another live process owns the capture for this
// video. The caller should treat it as a clean no-op, not a failure.
var ErrAlreadyRunning = errors.New("capture already running for this video")

// MetadataClient is the slice of the metadata API the pipeline needs.
type MetadataClient interface {
	GetVideo(ctx context.Context, videoID string) (*youtube.Video, error)
	FetchHeartbeat(ctx context.Context, videoID string) (*youtube.Heartbeat, error)
}

// Publisher uploads the finished artifact and returns a public link plus
// a thumbnail of it.
type Publisher interface {
	UploadAndPublish(ctx context.Context, localPath, destPath string) (string, []byte, error)
}

// Notifier announces a completed upload.
type Notifier interface {
	Send(ctx context.Context, n notify.Notification) error
}

// Options tune a single pipeline run. The skip flags exist so a failed
// run can be resumed stage by stage against files already in the work
// directory.
type Options struct {
	// Force acquires the ledger entry even when a live owner exists.
	Force bool
	// SkipDownload reuses the raw capture already in the work directory.
	SkipDownload bool
	// SkipRemux uploads the remuxed artifact already in the work
	// directory instead of producing a fresh one.
	SkipRemux bool
	// SkipUpload stops after the remux, leaving the artifact in the work
	// directory.
	SkipUpload bool
	// KeepWorkFiles leaves work files in place after a successful run.
	KeepWorkFiles bool
	// ChannelName overrides the channel name used for the remote folder
	// and the notification. Setting it together with VideoName makes the
	// run independent of the metadata API.
	ChannelName string
	// VideoName overrides the title used for the artifact filename.
	VideoName string
}

// Result describes a completed capture.
type Result struct {
	Title string
	Link  string
}

// Pipeline is the per-video capture pipeline.
type Pipeline struct {
	cfg        *config.Config
	metadata   MetadataClient
	lock       *state.Lock
	streamlink *Streamlink
	ffmpeg     *FFmpeg
	probe      *hls.Probe
	publisher  Publisher
	notifier   Notifier
}

// NewPipeline wires a pipeline from its dependencies. publisher and
// notifier may be nil when uploads or notifications are disabled.
func NewPipeline(cfg *config.Config, metadata MetadataClient, lock *state.Lock, streamlink *Streamlink, ffmpeg *FFmpeg, probe *hls.Probe, publisher Publisher, notifier Notifier) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		metadata:   metadata,
		lock:       lock,
		streamlink: streamlink,
		ffmpeg:     ffmpeg,
		probe:      probe,
		publisher:  publisher,
		notifier:   notifier,
	}
}

// Run executes the pipeline for one video. The ledger entry is held for
// the whole run and released on the way out, success or not.
func (p *Pipeline) Run(ctx context.Context, videoID string, opts Options) (*Result, error) {
	alreadyRunning, err := p.lock.TryAcquire(videoID, opts.Force)
	if err != nil {
		return nil, fmt.Errorf("acquire capture ledger entry: %w", err)
	}
	if alreadyRunning {
		return nil, ErrAlreadyRunning
	}
	defer func() {
		if err := p.lock.Release(videoID); err != nil {
			log.Error("failed to release capture ledger entry",
				zap.String("video_id", videoID), zap.Error(err))
		}
	}()

	title := opts.VideoName
	channelName := opts.ChannelName

	// With both names overridden the metadata fetch has nothing to add,
	// and skipping it lets a run resume after the video has gone private
	// or been removed. An overridden video is never treated as upcoming.
	if title == "" || channelName == "" {
		video, err := p.metadata.GetVideo(ctx, videoID)
		if err != nil {
			return nil, fmt.Errorf("fetch video metadata: %w", err)
		}
		if !video.HasDetails {
			return nil, fmt.Errorf("video %s has no metadata details", videoID)
		}

		if video.IsUpcoming && video.ScheduledStart != nil {
			wcfg := waiter.Config{
				PollThreshold: p.cfg.PollThreshold,
				PollInterval:  p.cfg.PollInterval,
				Thresholds:    p.cfg.Thresholds(),
			}
			fetch := func(ctx context.Context) (*youtube.Heartbeat, error) {
				return p.metadata.FetchHeartbeat(ctx, videoID)
			}
			if err := waiter.Wait(ctx, videoID, *video.ScheduledStart, fetch, wcfg); err != nil {
				return nil, fmt.Errorf("wait for stream start: %w", err)
			}
			// Title and author may have changed while we slept.
			if refreshed, err := p.metadata.GetVideo(ctx, videoID); err == nil {
				video = refreshed
			}
		}

		if title == "" {
			title = video.Title
		}
		if channelName == "" {
			channelName = video.Author
		}
	}
	if title == "" {
		title = videoID
	}

	watchURL := "https://www.youtube.com/watch?v=" + videoID

	if err := os.MkdirAll(p.cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	// Filenames carry the video id so concurrent captures of same-titled
	// streams never collide in the shared work directory.
	baseName := SanitizeFilename(title) + "-" + videoID
	rawPath := filepath.Join(p.cfg.WorkDir, baseName+".ts")
	finalName := baseName + ".mp4"
	finalPath := filepath.Join(p.cfg.WorkDir, finalName)

	if !opts.SkipDownload {
		p.prelaunchCheck(ctx, videoID, watchURL)
		log.Info("starting capture",
			zap.String("video_id", videoID),
			zap.String("title", title),
			zap.String("out", rawPath),
		)
		if err := p.streamlink.Record(ctx, watchURL, rawPath); err != nil {
			return nil, fmt.Errorf("record stream: %w", err)
		}
	}

	if opts.SkipRemux {
		if _, err := os.Stat(finalPath); err != nil {
			return nil, fmt.Errorf("remux skipped but no remuxed artifact present: %w", err)
		}
	} else {
		if _, err := os.Stat(rawPath); err != nil {
			return nil, fmt.Errorf("no raw capture to remux: %w", err)
		}
		log.Info("remuxing capture", zap.String("video_id", videoID), zap.String("out", finalPath))
		meta := Metadata{Title: title, Artist: channelName, Comment: watchURL}
		if err := p.ffmpeg.Remux(ctx, rawPath, finalPath, meta); err != nil {
			return nil, fmt.Errorf("remux capture: %w", err)
		}
	}

	result := &Result{Title: title}

	if opts.SkipUpload || p.publisher == nil {
		log.Info("upload disabled, leaving artifact in place",
			zap.String("video_id", videoID), zap.String("path", finalPath))
		return result, nil
	}

	destPath := p.cfg.DropboxRoot + "/" + SanitizeFilename(channelName) + "/" + finalName
	link, thumb, err := p.publisher.UploadAndPublish(ctx, finalPath, destPath)
	if err != nil {
		return nil, fmt.Errorf("upload capture: %w", err)
	}
	result.Link = link
	log.Info("upload complete", zap.String("video_id", videoID), zap.String("link", link))

	if p.notifier != nil {
		n := notify.Notification{
			Channel:   channelName,
			Title:     title,
			Link:      link,
			Thumbnail: thumb,
		}
		if err := p.notifier.Send(ctx, n); err != nil {
			// The artifact is safe; a lost mail is not worth failing the run.
			log.Error("failed to send notification",
				zap.String("video_id", videoID), zap.Error(err))
		}
	}

	// Work files survive until here so a failed upload can be retried
	// with the stage-skip flags.
	if !opts.KeepWorkFiles {
		_ = os.Remove(rawPath)
		_ = os.Remove(finalPath)
	}
	return result, nil
}

// prelaunchCheck resolves the stream manifest and verifies it still looks
// live. Purely advisory: the external recorder has its own retries, so a
// failed check only logs.
func (p *Pipeline) prelaunchCheck(ctx context.Context, videoID, watchURL string) {
	if p.probe == nil {
		return
	}
	manifestURL, err := p.streamlink.StreamURL(ctx, watchURL)
	if err != nil {
		log.Warn("could not resolve stream url for prelaunch check",
			zap.String("video_id", videoID), zap.Error(err))
		return
	}
	live, err := p.probe.Check(ctx, manifestURL)
	if err != nil {
		log.Warn("prelaunch manifest check failed",
			zap.String("video_id", videoID), zap.Error(err))
		return
	}
	if !live {
		log.Warn("manifest does not look live, capturing anyway",
			zap.String("video_id", videoID))
	}
}
