// Package youtube implements the narrow remote-metadata contract the rest
// of the pipeline depends on: the channel video feed, the channel /live
// probe, the per-video player response, and the liveness heartbeat.
package youtube

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrRateLimited is returned when the remote side answers 429. It is a
// transient condition: never cached, retried on the next poll cycle.
var ErrRateLimited = errors.New("youtube: rate limited")

const (
	defaultBaseURL = "https://www.youtube.com"
	readTimeout    = 60 * time.Second

	// Firefox moved to a 4 week release cycle in Q1 2020.
	firefoxReleaseBase = 74
	innocuousUAFormat  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:%d.0) Gecko/20100101 Firefox/%d.0"
)

// firefoxCycleBase is three weeks into the first 4-week release cycle.
var firefoxCycleBase = time.Date(2020, 2, 11, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 21)

// firefoxVersion estimates the currently shipping Firefox major version so
// the User-Agent stays plausible without maintenance.
func firefoxVersion(now time.Time) int {
	weeks := int(now.Sub(firefoxCycleBase).Hours() / (24 * 7))
	return firefoxReleaseBase + weeks/4
}

// userAgent returns the browser-mimicking User-Agent header value.
func userAgent() string {
	v := firefoxVersion(time.Now())
	return fmt.Sprintf(innocuousUAFormat, v, v)
}

// Client talks to the metadata endpoints. The zero base URL targets the
// real service; tests point it at an httptest server.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the service base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCookiesFile loads a Netscape-format cookies.txt into the client's
// cookie jar. A missing file is not an error; the cookies are opaque
// operator-supplied credentials.
func WithCookiesFile(path string) Option {
	return func(c *Client) {
		jar, err := loadCookies(path)
		if err == nil && jar != nil {
			c.httpClient.Jar = jar
		}
	}
}

// NewClient creates a metadata client.
func NewClient(opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		httpClient: &http.Client{Timeout: readTimeout, Jar: jar},
		baseURL:    defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// loadCookies reads a Netscape cookies.txt file into a fresh jar.
func loadCookies(path string) (http.CookieJar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}
		domain := strings.TrimPrefix(fields[0], ".")
		cookie := &http.Cookie{
			Domain: fields[0],
			Path:   fields[2],
			Secure: fields[3] == "TRUE",
			Name:   fields[5],
			Value:  fields[6],
		}
		if expiry, err := strconv.ParseInt(fields[4], 10, 64); err == nil && expiry > 0 {
			cookie.Expires = time.Unix(expiry, 0)
		}
		u := &url.URL{Scheme: "https", Host: domain, Path: cookie.Path}
		jar.SetCookies(u, []*http.Cookie{cookie})
	}
	return jar, scanner.Err()
}

// innertubeContext is the fixed client context both the player and the
// heartbeat endpoints expect.
func innertubeContext() map[string]interface{} {
	version := firefoxVersion(time.Now())
	return map[string]interface{}{
		"client": map[string]interface{}{
			"browserName":    "Firefox",
			"browserVersion": strconv.Itoa(version) + ".0",
			"clientName":     "WEB",
			"clientVersion":  "2.20240101.00.00",
			"deviceMake":     "www",
			"deviceModel":    "www",
			"gl":             "US",
			"hl":             "en",
			"osName":         "Windows",
			"osVersion":      "10.0",
		},
		"request": map[string]interface{}{},
	}
}

// parseScheduledStart converts the wire scheduledStartTime (unix seconds
// as a decimal string) into a time, nil when absent or malformed.
func parseScheduledStart(s string) *time.Time {
	if s == "" {
		return nil
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}
