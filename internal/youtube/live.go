package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
)

// The live page is occasionally delivered completely blank with no
// canonical link at all, so absence is not an error.
var canonicalLinkPattern = regexp.MustCompile(`<link[^>]+rel="canonical"[^>]+href="([^"]+)"`)

// FetchLiveVideoID probes the channel's /live endpoint and returns the
// video id it currently points at, or "" when nothing is live. The page
// is requested with an empty User-Agent: pretending to be a modern
// browser yields far too much script.
func (c *Client) FetchLiveVideoID(ctx context.Context, channelID string) (string, error) {
	u := fmt.Sprintf("%s/channel/%s/live", c.baseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch live page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("live page fetch failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read live page: %w", err)
	}

	m := canonicalLinkPattern.FindSubmatch(body)
	if m == nil {
		return "", nil
	}

	canonical, err := url.Parse(string(m[1]))
	if err != nil {
		return "", nil
	}
	// The canonical link is only a video when it carries a watch query.
	return canonical.Query().Get("v"), nil
}
