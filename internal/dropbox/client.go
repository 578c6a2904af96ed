// Package dropbox implements the chunked-upload session protocol against
// the remote store, plus the block-wise content hash used to verify
// end-to-end integrity of each uploaded artifact.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAPIURL     = "https://api.dropboxapi.com/2"
	defaultContentURL = "https://content.dropboxapi.com/2"
)

// StatusError is a non-2xx answer from the remote store. It is never
// retried by the upload coordinator; only connection-level failures are.
type StatusError struct {
	Code    int
	Summary string
}

func (e *StatusError) Error() string {
	if e.Summary != "" {
		return fmt.Sprintf("dropbox: HTTP %d: %s", e.Code, e.Summary)
	}
	return fmt.Sprintf("dropbox: HTTP %d", e.Code)
}

// FileMetadata describes a finalized remote file.
type FileMetadata struct {
	Name        string `json:"name"`
	PathDisplay string `json:"path_display"`
	Size        int64  `json:"size"`
	ContentHash string `json:"content_hash"`
}

// Client talks to the remote store's HTTP API.
type Client struct {
	httpClient *http.Client
	token      string
	apiURL     string
	contentURL string
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoints overrides the API and content endpoints, for tests.
func WithEndpoints(apiURL, contentURL string) Option {
	return func(c *Client) {
		c.apiURL = strings.TrimSuffix(apiURL, "/")
		c.contentURL = strings.TrimSuffix(contentURL, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client with the given access token. The token is an
// opaque operator-supplied credential.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		token:      token,
		apiURL:     defaultAPIURL,
		contentURL: defaultContentURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sessionCursor struct {
	SessionID string `json:"session_id"`
	Offset    int64  `json:"offset"`
}

// SessionStart opens a new upload session and returns its id.
func (c *Client) SessionStart(ctx context.Context) (string, error) {
	var result struct {
		SessionID string `json:"session_id"`
	}
	err := c.contentCall(ctx, "/files/upload_session/start",
		map[string]interface{}{"close": false}, nil, &result)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return result.SessionID, nil
}

// SessionAppend sends one chunk at the given byte offset. closeSession
// marks the chunk as the session's last.
func (c *Client) SessionAppend(ctx context.Context, sessionID string, offset int64, chunk []byte, closeSession bool) error {
	arg := map[string]interface{}{
		"cursor": sessionCursor{SessionID: sessionID, Offset: offset},
		"close":  closeSession,
	}
	if err := c.contentCall(ctx, "/files/upload_session/append_v2", arg, chunk, nil); err != nil {
		return fmt.Errorf("append at offset %d: %w", offset, err)
	}
	return nil
}

// SessionFinish commits the session to the destination path and returns
// the finalized file's metadata, including the remote content hash.
func (c *Client) SessionFinish(ctx context.Context, sessionID string, offset int64, destPath string) (*FileMetadata, error) {
	arg := map[string]interface{}{
		"cursor": sessionCursor{SessionID: sessionID, Offset: offset},
		"commit": map[string]interface{}{
			"path": destPath,
			"mode": "add",
		},
	}
	var meta FileMetadata
	if err := c.contentCall(ctx, "/files/upload_session/finish", arg, nil, &meta); err != nil {
		return nil, fmt.Errorf("finish session: %w", err)
	}
	return &meta, nil
}

// SharedLink returns a public link for the given path, with the share
// domain substituted for the direct-content domain so the link can be
// hot-linked.
func (c *Client) SharedLink(ctx context.Context, destPath string) (string, error) {
	var result struct {
		URL string `json:"url"`
	}
	err := c.apiCall(ctx, "/sharing/create_shared_link_with_settings",
		map[string]interface{}{"path": destPath}, &result)
	if err != nil {
		// A link may already exist from an earlier run; fetch it instead.
		var se *StatusError
		if isStatus(err, http.StatusConflict, &se) {
			existing, listErr := c.listSharedLink(ctx, destPath)
			if listErr == nil && existing != "" {
				return directURL(existing), nil
			}
		}
		return "", fmt.Errorf("create shared link: %w", err)
	}
	return directURL(result.URL), nil
}

func (c *Client) listSharedLink(ctx context.Context, destPath string) (string, error) {
	var result struct {
		Links []struct {
			URL string `json:"url"`
		} `json:"links"`
	}
	err := c.apiCall(ctx, "/sharing/list_shared_links",
		map[string]interface{}{"path": destPath, "direct_only": true}, &result)
	if err != nil {
		return "", err
	}
	if len(result.Links) == 0 {
		return "", fmt.Errorf("no shared links for %s", destPath)
	}
	return result.Links[0].URL, nil
}

// Thumbnail fetches a PNG thumbnail of the uploaded artifact.
func (c *Client) Thumbnail(ctx context.Context, destPath string) ([]byte, error) {
	arg := map[string]interface{}{
		"resource": map[string]interface{}{".tag": "path", "path": destPath},
		"format":   map[string]interface{}{".tag": "png"},
		"size":     map[string]interface{}{".tag": "w1024h768"},
	}
	argJSON, err := json.Marshal(arg)
	if err != nil {
		return nil, fmt.Errorf("marshal thumbnail arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.contentURL+"/files/get_thumbnail_v2", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Dropbox-API-Arg", string(argJSON))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch thumbnail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		summary, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Summary: strings.TrimSpace(string(summary))}
	}

	return io.ReadAll(resp.Body)
}

// contentCall posts to the content endpoint with the call arguments in
// the Dropbox-API-Arg header and an octet-stream body.
func (c *Client) contentCall(ctx context.Context, endpoint string, arg interface{}, body []byte, result interface{}) error {
	argJSON, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("marshal api arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.contentURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Dropbox-API-Arg", string(argJSON))
	req.Header.Set("Content-Type", "application/octet-stream")

	return c.do(req, result)
}

// apiCall posts JSON to the RPC endpoint.
func (c *Client) apiCall(ctx context.Context, endpoint string, arg interface{}, result interface{}) error {
	body, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("marshal api arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Connection-level failure; the coordinator may retry this.
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		summary, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Summary: strings.TrimSpace(string(summary))}
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isStatus(err error, code int, out **StatusError) bool {
	var se *StatusError
	if errors.As(err, &se) && se.Code == code {
		*out = se
		return true
	}
	return false
}

func directURL(shared string) string {
	return strings.Replace(shared, "www.dropbox.com", "dl.dropboxusercontent.com", 1)
}
