package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
)

// Feed is a channel's current video listing.
type Feed struct {
	Title    string
	VideoIDs []string
}

type atomFeed struct {
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	VideoID string `xml:"videoId"`
}

// FetchFeed retrieves the channel's video-listing feed. The endpoint does
// not honor If-Modified-Since, so every call serves the full document.
func (c *Client) FetchFeed(ctx context.Context, channelID string) (*Feed, error) {
	u := fmt.Sprintf("%s/feeds/videos.xml?channel_id=%s", c.baseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("feed fetch failed with status %d", resp.StatusCode)
	}

	var parsed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	feed := &Feed{Title: parsed.Title}
	for _, entry := range parsed.Entries {
		if entry.VideoID != "" {
			feed.VideoIDs = append(feed.VideoIDs, entry.VideoID)
		}
	}
	return feed, nil
}
