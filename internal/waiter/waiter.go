// Package waiter holds a capture process until its scheduled stream
// actually goes live, sleeping in one shot until shortly before the
// announced start and then polling the heartbeat endpoint.
package waiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/namacap/namacap/internal/config"
	"github.com/namacap/namacap/internal/log"
	"github.com/namacap/namacap/internal/youtube"
)

// State of the wait state machine.
type State string

const (
	StateSleeping State = "sleeping"
	StatePolling  State = "polling"
	StateDone     State = "done"
	StateAborted  State = "aborted"
)

// Give-up reasons. All are fatal for this attempt; an outer scheduler may
// decide to try again later.
var (
	ErrUnplayable     = errors.New("stream is not playable")
	ErrTooFarInFuture = errors.New("rescheduled too far in the future")
	ErrTooFarInPast   = errors.New("scheduled start too far in the past")
)

// UnknownStatusError is returned when the heartbeat reports a status this
// code does not understand. Failing closed beats looping forever on an
// unknown contract.
type UnknownStatusError struct {
	Status string
	Reason string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown playability status %q (%s)", e.Status, e.Reason)
}

// HeartbeatFunc fetches the current liveness status for a video.
type HeartbeatFunc func(ctx context.Context) (*youtube.Heartbeat, error)

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Config controls the wait behavior.
type Config struct {
	// PollThreshold is how long before the scheduled start polling
	// begins; anything earlier is covered by one long sleep.
	PollThreshold time.Duration
	// PollInterval is the delay between heartbeat probes when the
	// server does not suggest one.
	PollInterval time.Duration
	// Thresholds are the same scheduling-window limits the classifier
	// applies, re-checked when the stream gets rescheduled mid-wait.
	Thresholds config.Thresholds
}

// Step is one transition of the wait state machine.
type Step struct {
	State State
	// Delay to observe before the next probe, when State is Polling.
	Delay time.Duration
	// Err is the abort reason, when State is Aborted.
	Err error
}

// Next is the single transition function, driven by an externally polled
// heartbeat. Pure; the loop in Wait applies it.
func Next(hb *youtube.Heartbeat, now time.Time, cfg Config) Step {
	// A re-announced schedule is re-checked against the same window the
	// classifier uses; overrunning either side aborts the wait.
	if hb.ScheduledStart != nil {
		wait := hb.ScheduledStart.Sub(now)
		if wait > cfg.Thresholds.IgnoreWaitGreaterThan {
			return Step{State: StateAborted, Err: ErrTooFarInFuture}
		}
		if -wait > cfg.Thresholds.IgnorePastScheduledStartGreater {
			return Step{State: StateAborted, Err: ErrTooFarInPast}
		}
	}

	switch hb.Status {
	case youtube.StatusOK:
		return Step{State: StateDone}
	case youtube.StatusUnplayable:
		return Step{State: StateAborted, Err: ErrUnplayable}
	case youtube.StatusLiveStreamOffline:
		delay := hb.PollDelay
		if delay <= 0 {
			delay = cfg.PollInterval
		}
		return Step{State: StatePolling, Delay: delay}
	default:
		return Step{State: StateAborted, Err: &UnknownStatusError{Status: hb.Status, Reason: hb.Reason}}
	}
}

// Wait blocks until the stream for videoID leaves the upcoming state.
// There is no upper bound on total polling time beyond the scheduling
// window thresholds; that is intentional.
func Wait(ctx context.Context, videoID string, scheduledStart time.Time, fetch HeartbeatFunc, cfg Config) error {
	return waitWithClock(ctx, videoID, scheduledStart, fetch, cfg, realClock{})
}

func waitWithClock(ctx context.Context, videoID string, scheduledStart time.Time, fetch HeartbeatFunc, cfg Config, clock Clock) error {
	totalWait := scheduledStart.Sub(clock.Now())
	log.Info("stream is scheduled",
		zap.String("video_id", videoID),
		zap.Time("scheduled_start", scheduledStart),
		zap.Duration("wait", totalWait),
	)

	// One long sleep until shortly before start; constantly polling for
	// hours would be needless traffic.
	if totalWait > cfg.PollThreshold {
		longSleep := totalWait - cfg.PollThreshold
		log.Info("sleeping before polling",
			zap.String("video_id", videoID),
			zap.Duration("sleep", longSleep),
		)
		if err := clock.Sleep(ctx, longSleep); err != nil {
			return err
		}
	}

	for {
		hb, err := fetch(ctx)
		if err != nil {
			return fmt.Errorf("heartbeat for %s: %w", videoID, err)
		}

		step := Next(hb, clock.Now(), cfg)
		switch step.State {
		case StateDone:
			log.Info("video is no longer upcoming, time to go",
				zap.String("video_id", videoID))
			return nil
		case StateAborted:
			log.Warn("giving up on scheduled stream",
				zap.String("video_id", videoID),
				zap.Error(step.Err),
			)
			return step.Err
		case StatePolling:
			log.Debug("still offline",
				zap.String("video_id", videoID),
				zap.Duration("poll_delay", step.Delay),
			)
			if err := clock.Sleep(ctx, step.Delay); err != nil {
				return err
			}
		}
	}
}
