package classify

import (
	"testing"
	"time"

	"github.com/namacap/namacap/internal/config"
	"github.com/namacap/namacap/internal/youtube"
)

var testThresholds = config.Thresholds{
	IgnoreWaitGreaterThan:           6 * time.Hour,
	IgnorePastScheduledStartGreater: 2 * time.Hour,
}

func timePtr(t time.Time) *time.Time { return &t }

func statePtr(s VideoState) *VideoState { return &s }

func TestClassify(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		video  *youtube.Video
		cached *VideoState
		want   VideoState
	}{
		{
			name:  "no metadata",
			video: nil,
			want:  Removed,
		},
		{
			name: "private video",
			video: &youtube.Video{
				PlayabilityStatus: youtube.StatusLoginRequired,
			},
			want: Private,
		},
		{
			name: "errored video",
			video: &youtube.Video{
				PlayabilityStatus: youtube.StatusError,
			},
			want: Removed,
		},
		{
			name: "members only stream",
			video: &youtube.Video{
				PlayabilityStatus: youtube.StatusUnplayable,
			},
			want: MembersOnly,
		},
		{
			name: "no video details",
			video: &youtube.Video{
				PlayabilityStatus: youtube.StatusOK,
				HasDetails:        false,
			},
			want: Removed,
		},
		{
			name: "regular upload",
			video: &youtube.Video{
				PlayabilityStatus: youtube.StatusOK,
				HasDetails:        true,
				IsLiveContent:     false,
			},
			want: NotLivestream,
		},
		{
			name: "finished stream",
			video: &youtube.Video{
				PlayabilityStatus: youtube.StatusOK,
				HasDetails:        true,
				IsLiveContent:     true,
				LengthSeconds:     "5400",
			},
			want: Finished,
		},
		{
			name: "live stream with zero length",
			video: &youtube.Video{
				PlayabilityStatus: youtube.StatusOK,
				HasDetails:        true,
				IsLiveContent:     true,
				LengthSeconds:     "0",
			},
			want: Available,
		},
		{
			name: "upcoming without schedule",
			video: &youtube.Video{
				PlayabilityStatus: youtube.StatusOK,
				HasDetails:        true,
				IsLiveContent:     true,
				IsUpcoming:        true,
			},
			want: NotScheduled,
		},
		{
			name: "upcoming soon",
			video: &youtube.Video{
				PlayabilityStatus: youtube.StatusOK,
				HasDetails:        true,
				IsLiveContent:     true,
				IsUpcoming:        true,
				ScheduledStart:    timePtr(now.Add(30 * time.Minute)),
			},
			want: Available,
		},
		{
			name: "upcoming too far in the future",
			video: &youtube.Video{
				PlayabilityStatus: youtube.StatusOK,
				HasDetails:        true,
				IsLiveContent:     true,
				IsUpcoming:        true,
				ScheduledStart:    timePtr(now.Add(6*time.Hour + time.Second)),
			},
			want: TooFarInFuture,
		},
		{
			name: "upcoming exactly at the future threshold",
			video: &youtube.Video{
				PlayabilityStatus: youtube.StatusOK,
				HasDetails:        true,
				IsLiveContent:     true,
				IsUpcoming:        true,
				ScheduledStart:    timePtr(now.Add(6 * time.Hour)),
			},
			want: Available,
		},
		{
			name: "scheduled start long gone",
			video: &youtube.Video{
				PlayabilityStatus: youtube.StatusOK,
				HasDetails:        true,
				IsLiveContent:     true,
				IsUpcoming:        true,
				ScheduledStart:    timePtr(now.Add(-(2*time.Hour + time.Second))),
			},
			want: TooFarInPast,
		},
		{
			name: "scheduled start exactly at the past threshold",
			video: &youtube.Video{
				PlayabilityStatus: youtube.StatusOK,
				HasDetails:        true,
				IsLiveContent:     true,
				IsUpcoming:        true,
				ScheduledStart:    timePtr(now.Add(-2 * time.Hour)),
			},
			want: Available,
		},
		{
			name: "live right now",
			video: &youtube.Video{
				PlayabilityStatus: youtube.StatusOK,
				HasDetails:        true,
				IsLiveContent:     true,
			},
			want: Available,
		},
		{
			name:   "cached finished short-circuits fresh metadata",
			video:  &youtube.Video{PlayabilityStatus: youtube.StatusOK, HasDetails: true, IsLiveContent: true},
			cached: statePtr(Finished),
			want:   Finished,
		},
		{
			name:   "cached not_livestream short-circuits",
			video:  nil,
			cached: statePtr(NotLivestream),
			want:   NotLivestream,
		},
		{
			name: "cached rate_limited is re-derived",
			video: &youtube.Video{
				PlayabilityStatus: youtube.StatusOK,
				HasDetails:        true,
				IsLiveContent:     true,
			},
			cached: statePtr(RateLimited),
			want:   Available,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.video, tt.cached, now, testThresholds)
			if got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	video := &youtube.Video{
		PlayabilityStatus: youtube.StatusOK,
		HasDetails:        true,
		IsLiveContent:     true,
		IsUpcoming:        true,
		ScheduledStart:    timePtr(now.Add(time.Hour)),
	}

	first := Classify(video, nil, now, testThresholds)
	for i := 0; i < 10; i++ {
		if got := Classify(video, nil, now, testThresholds); got != first {
			t.Fatalf("Classify() not deterministic: got %v then %v", first, got)
		}
	}
}

func TestVideoStateWireCodes(t *testing.T) {
	// The numeric values are persisted in the state document and must
	// stay stable across releases.
	codes := map[VideoState]int{
		Available:      0,
		NotLivestream:  1,
		Finished:       2,
		Removed:        3,
		TooFarInFuture: 4,
		NotScheduled:   5,
		RateLimited:    6,
		TooFarInPast:   7,
		Private:        8,
		MembersOnly:    9,
	}
	for state, want := range codes {
		if int(state) != want {
			t.Errorf("wire code for %v = %d, want %d", state, int(state), want)
		}
	}
}

func TestVideoStateCacheable(t *testing.T) {
	cacheable := map[VideoState]bool{
		Available:      false,
		NotLivestream:  true,
		Finished:       true,
		Removed:        false,
		TooFarInFuture: false,
		NotScheduled:   true,
		RateLimited:    false,
		TooFarInPast:   false,
		Private:        false,
		MembersOnly:    false,
	}
	for state, want := range cacheable {
		if got := state.Cacheable(); got != want {
			t.Errorf("%v.Cacheable() = %v, want %v", state, got, want)
		}
	}
}

func TestVideoStateString(t *testing.T) {
	if got := Finished.String(); got != "finished" {
		t.Errorf("Finished.String() = %q, want %q", got, "finished")
	}
	if got := VideoState(42).String(); got != "unknown" {
		t.Errorf("VideoState(42).String() = %q, want %q", got, "unknown")
	}
}
