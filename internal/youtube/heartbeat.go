package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// FetchHeartbeat performs one liveness probe for a video. The heartbeat
// endpoint is what a real player uses while parked on an offline slate;
// it is considerably cheaper than a full player fetch and not subject to
// the same rate limits.
func (c *Client) FetchHeartbeat(ctx context.Context, videoID string) (*Heartbeat, error) {
	payload := map[string]interface{}{
		"context": innertubeContext(),
		"videoId": videoID,
		"heartbeatRequestParams": map[string]interface{}{
			"heartbeatChecks": []string{"HEARTBEAT_CHECK_TYPE_LIVE_STREAM_STATUS"},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal heartbeat request: %w", err)
	}

	u := c.baseURL + "/youtubei/v1/player/heartbeat?alt=json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch heartbeat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("heartbeat fetch failed with status %d", resp.StatusCode)
	}

	var pr playerResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode heartbeat: %w", err)
	}

	hb := &Heartbeat{
		Status: pr.PlayabilityStatus.Status,
		Reason: pr.PlayabilityStatus.Reason,
	}

	renderer := pr.PlayabilityStatus.LiveStreamability.LiveStreamabilityRenderer
	if renderer.PollDelayMs != "" {
		if ms, err := strconv.ParseInt(renderer.PollDelayMs, 10, 64); err == nil && ms > 0 {
			hb.PollDelay = time.Duration(ms) * time.Millisecond
		}
	}
	hb.ScheduledStart = parseScheduledStart(
		renderer.OfflineSlate.LiveStreamOfflineSlateRenderer.ScheduledStartTime)

	return hb, nil
}
