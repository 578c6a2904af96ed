// Package poller drives one watch pass over the configured channels:
// list each channel's recent videos, classify them, and hand every
// capturable one to a fresh capture process.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/namacap/namacap/internal/classify"
	"github.com/namacap/namacap/internal/config"
	"github.com/namacap/namacap/internal/log"
	"github.com/namacap/namacap/internal/state"
	"github.com/namacap/namacap/internal/telemetry"
	"github.com/namacap/namacap/internal/youtube"
)

// MetadataClient is the slice of the metadata API the poller needs.
type MetadataClient interface {
	FetchFeed(ctx context.Context, channelID string) (*youtube.Feed, error)
	FetchLiveVideoID(ctx context.Context, channelID string) (string, error)
	GetVideo(ctx context.Context, videoID string) (*youtube.Video, error)
}

// CaptureLauncher starts a capture process for a video and returns its
// pid.
type CaptureLauncher interface {
	Launch(videoID string) (int, error)
}

// Options tune a poll pass.
type Options struct {
	// SkipLiveEndpoint disables the per-channel /live probe, saving one
	// page fetch per channel at the cost of missing unlisted streams.
	SkipLiveEndpoint bool
}

// Poller checks channels for capturable livestreams.
type Poller struct {
	metadata MetadataClient
	store    *state.Store
	lock     *state.Lock
	launcher CaptureLauncher
	th       config.Thresholds
	now      func() time.Time
}

// New creates a poller.
func New(metadata MetadataClient, store *state.Store, lock *state.Lock, launcher CaptureLauncher, th config.Thresholds) *Poller {
	return &Poller{
		metadata: metadata,
		store:    store,
		lock:     lock,
		launcher: launcher,
		th:       th,
		now:      time.Now,
	}
}

// Poll runs one pass over all channels and returns the number of
// channels whose pass failed. Individual channel failures never stop the
// pass.
func (p *Poller) Poll(ctx context.Context, channels []string, opts Options) int {
	failed := 0
	for _, channelID := range channels {
		if ctx.Err() != nil {
			return failed
		}
		if err := p.CheckChannel(ctx, channelID, opts); err != nil {
			log.Error("channel poll failed",
				zap.String("channel_id", channelID), zap.Error(err))
			telemetry.IncChannelPollFailures()
			failed++
		}
	}
	return failed
}

// CheckChannel polls one channel: fetch its video list, classify every
// video, launch captures for the available ones, and replace the
// channel's classification cache with this pass's results. A feed fetch
// failure marks the pass failed but does not abort it: the /live probe
// can still discover a stream worth capturing.
func (p *Poller) CheckChannel(ctx context.Context, channelID string, opts Options) error {
	telemetry.IncChannelPolls()

	var videoIDs []string
	var feedErr error
	if feed, err := p.metadata.FetchFeed(ctx, channelID); err != nil {
		feedErr = fmt.Errorf("fetch feed: %w", err)
	} else {
		videoIDs = feed.VideoIDs
	}

	// The feed only lists published videos; an unlisted stream is only
	// discoverable through the channel's /live page.
	if !opts.SkipLiveEndpoint {
		liveID, err := p.metadata.FetchLiveVideoID(ctx, channelID)
		if err != nil {
			log.Warn("live endpoint probe failed",
				zap.String("channel_id", channelID), zap.Error(err))
		} else if liveID != "" && !contains(videoIDs, liveID) {
			log.Info("found unlisted live video",
				zap.String("channel_id", channelID), zap.String("video_id", liveID))
			videoIDs = append(videoIDs, liveID)
		}
	}

	doc, err := p.store.Load()
	if err != nil {
		return err
	}
	cache := doc.ChannelVideos[channelID]

	fresh := make(map[string]classify.VideoState, len(videoIDs))
	for _, videoID := range videoIDs {
		st := p.classifyVideo(ctx, videoID, cache)
		fresh[videoID] = st
		telemetry.IncClassifierResult(st.String())

		if st != classify.Available {
			continue
		}
		if err := p.launchCapture(videoID); err != nil {
			log.Error("failed to launch capture",
				zap.String("video_id", videoID), zap.Error(err))
		}
	}

	// Whole-channel replace: videos that fell off the feed fall out of
	// the cache with it.
	if err := p.store.Update(func(doc *state.Document) error {
		doc.ChannelVideos[channelID] = fresh
		return nil
	}); err != nil {
		return err
	}
	return feedErr
}

// classifyVideo determines a video's current state, consulting the cache
// first so settled videos cost no metadata fetch.
func (p *Poller) classifyVideo(ctx context.Context, videoID string, cache map[string]classify.VideoState) classify.VideoState {
	var cached *classify.VideoState
	if prev, ok := cache[videoID]; ok {
		cached = &prev
	}
	if cached != nil && cached.Cacheable() {
		return *cached
	}

	video, err := p.metadata.GetVideo(ctx, videoID)
	if err != nil {
		if !errors.Is(err, youtube.ErrRateLimited) {
			// Unknown failure: treat like a rate limit so the video is
			// retried on the next pass instead of being mis-cached.
			log.Warn("video metadata fetch failed",
				zap.String("video_id", videoID), zap.Error(err))
		}
		return classify.RateLimited
	}

	return classify.Classify(video, cached, p.now(), p.th)
}

// launchCapture spawns a capture process for videoID unless a live one
// already owns it. The ledger entry itself is acquired by the capture
// process, not here; this check only avoids pointless spawns.
func (p *Poller) launchCapture(videoID string) error {
	active, err := p.lock.IsActive(videoID)
	if err != nil {
		return err
	}
	if active {
		log.Debug("capture already active", zap.String("video_id", videoID))
		return nil
	}

	pid, err := p.launcher.Launch(videoID)
	if err != nil {
		return err
	}
	telemetry.IncCapturesLaunched()
	log.Info("capture launched",
		zap.String("video_id", videoID), zap.Int("pid", pid))
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
