package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// GetVideo fetches the player response for a video and reduces it to the
// fields the pipeline cares about. A 429 yields ErrRateLimited so callers
// can defer to the next poll cycle instead of failing the run.
func (c *Client) GetVideo(ctx context.Context, videoID string) (*Video, error) {
	payload := map[string]interface{}{
		"context": innertubeContext(),
		"videoId": videoID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal player request: %w", err)
	}

	u := c.baseURL + "/youtubei/v1/player"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch player response: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("player fetch failed with status %d", resp.StatusCode)
	}

	var pr playerResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode player response: %w", err)
	}

	return videoFromPlayerResponse(videoID, &pr), nil
}

func videoFromPlayerResponse(videoID string, pr *playerResponse) *Video {
	v := &Video{
		ID:                videoID,
		PlayabilityStatus: pr.PlayabilityStatus.Status,
		PlayabilityReason: pr.PlayabilityStatus.Reason,
	}
	if pr.VideoDetails != nil {
		v.HasDetails = true
		v.Title = pr.VideoDetails.Title
		v.Author = pr.VideoDetails.Author
		v.IsLiveContent = pr.VideoDetails.IsLiveContent
		v.LengthSeconds = pr.VideoDetails.LengthSeconds
		v.IsUpcoming = pr.VideoDetails.IsUpcoming
	}
	slate := pr.PlayabilityStatus.LiveStreamability.LiveStreamabilityRenderer.OfflineSlate
	v.ScheduledStart = parseScheduledStart(slate.LiveStreamOfflineSlateRenderer.ScheduledStartTime)
	return v
}
