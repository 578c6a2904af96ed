package youtube

import "time"

// Playability status values returned by the player and heartbeat endpoints.
const (
	StatusOK                = "OK"
	StatusLoginRequired     = "LOGIN_REQUIRED"
	StatusError             = "ERROR"
	StatusUnplayable        = "UNPLAYABLE"
	StatusLiveStreamOffline = "LIVE_STREAM_OFFLINE"
)

// Video is the subset of the player response the classifier and the
// capture pipeline consult.
type Video struct {
	ID                string
	PlayabilityStatus string
	PlayabilityReason string

	// HasDetails is false when the response carried no videoDetails
	// object at all; the classifier treats that as removed content.
	HasDetails    bool
	Title         string
	Author        string
	IsLiveContent bool
	LengthSeconds string
	IsUpcoming    bool

	// ScheduledStart is the announced start instant for upcoming
	// streams, nil when the stream has no schedule.
	ScheduledStart *time.Time
}

// Heartbeat is the result of one liveness probe for a video.
type Heartbeat struct {
	Status string
	Reason string

	// PollDelay is the server-suggested delay before the next probe,
	// zero when the server did not provide one.
	PollDelay time.Duration

	// ScheduledStart is the (possibly re-announced) start instant,
	// nil when the offline slate carries none.
	ScheduledStart *time.Time
}

// playerResponse mirrors the wire shape of the player and heartbeat
// endpoints, only as deep as we need.
type playerResponse struct {
	PlayabilityStatus struct {
		Status            string `json:"status"`
		Reason            string `json:"reason"`
		LiveStreamability struct {
			LiveStreamabilityRenderer struct {
				VideoID      string `json:"videoId"`
				PollDelayMs  string `json:"pollDelayMs"`
				OfflineSlate struct {
					LiveStreamOfflineSlateRenderer struct {
						ScheduledStartTime string `json:"scheduledStartTime"`
					} `json:"liveStreamOfflineSlateRenderer"`
				} `json:"offlineSlate"`
			} `json:"liveStreamabilityRenderer"`
		} `json:"liveStreamability"`
	} `json:"playabilityStatus"`
	VideoDetails *struct {
		VideoID       string `json:"videoId"`
		Title         string `json:"title"`
		Author        string `json:"author"`
		IsLiveContent bool   `json:"isLiveContent"`
		LengthSeconds string `json:"lengthSeconds"`
		IsUpcoming    bool   `json:"isUpcoming"`
	} `json:"videoDetails"`
}
