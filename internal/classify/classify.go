// Package classify decides whether a video is worth capturing based on
// remote player metadata and the previously cached decision.
package classify

import (
	"time"

	"github.com/namacap/namacap/internal/config"
	"github.com/namacap/namacap/internal/youtube"
)

// VideoState is the classification of a single video. The numeric values
// are the wire codes stored in the persisted state document and must not
// be reordered.
type VideoState int

const (
	Available VideoState = iota
	NotLivestream
	Finished
	// Channel listings are only eventually consistent and may keep
	// showing removed or unavailable videos for a while.
	Removed
	TooFarInFuture
	NotScheduled
	RateLimited
	TooFarInPast
	// From playabilityStatus
	Private
	// Only known reason is a membership-only stream
	MembersOnly
)

var stateNames = map[VideoState]string{
	Available:      "available",
	NotLivestream:  "not_livestream",
	Finished:       "finished",
	Removed:        "removed",
	TooFarInFuture: "too_far_in_future",
	NotScheduled:   "not_scheduled",
	RateLimited:    "rate_limited",
	TooFarInPast:   "too_far_in_past",
	Private:        "private",
	MembersOnly:    "members_only",
}

// String returns a readable name for logging.
func (s VideoState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Cacheable reports whether the state is terminal for caching purposes:
// a video in one of these states does not change back, so the cached
// value can be trusted indefinitely and the metadata fetch skipped.
// Every other state must be re-derived from fresh metadata each poll.
func (s VideoState) Cacheable() bool {
	switch s {
	case NotLivestream, Finished, NotScheduled:
		return true
	default:
		return false
	}
}

// Classify maps player metadata plus the cached prior classification to a
// VideoState. Pure function, no I/O: the caller is responsible for skipping
// the metadata fetch entirely when the cached state is trustable, and for
// mapping a rate-limited fetch to RateLimited before ever calling this.
func Classify(v *youtube.Video, cached *VideoState, now time.Time, th config.Thresholds) VideoState {
	if cached != nil && cached.Cacheable() {
		return *cached
	}

	if v == nil {
		// No metadata at all; treat like removed content.
		return Removed
	}

	switch v.PlayabilityStatus {
	case youtube.StatusLoginRequired:
		// Read: private video
		return Private
	case youtube.StatusError:
		return Removed
	case youtube.StatusUnplayable:
		// Read: membership required
		return MembersOnly
	}

	if !v.HasDetails {
		return Removed
	}

	if !v.IsLiveContent {
		return NotLivestream
	}

	// A finalized length means the stream already ended; we presumably
	// saved it while it was live.
	if v.LengthSeconds != "" && v.LengthSeconds != "0" {
		return Finished
	}

	if v.IsUpcoming {
		if v.ScheduledStart == nil {
			// Persistent streams reached via the channel /live endpoint
			// show up upcoming with no scheduled start.
			return NotScheduled
		}
		wait := v.ScheduledStart.Sub(now)
		if wait > th.IgnoreWaitGreaterThan {
			return TooFarInFuture
		}
		if -wait > th.IgnorePastScheduledStartGreater {
			return TooFarInPast
		}
	}

	return Available
}
