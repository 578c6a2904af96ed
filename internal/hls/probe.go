// Package hls sanity-checks a stream's HLS manifest before the external
// capture tool is launched: reachable, decodable, and not yet ended.
package hls

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/grafov/m3u8"
)

// Master playlists are followed to a media playlist; cap the recursion so
// a malformed chain cannot loop.
const maxProbeDepth = 4

// Probe fetches and inspects HLS manifests.
type Probe struct {
	httpClient *http.Client
}

// NewProbe creates a probe with the given fetch timeout.
func NewProbe(timeout time.Duration) *Probe {
	return &Probe{httpClient: &http.Client{Timeout: timeout}}
}

// Check reports whether the manifest at manifestURL describes a live
// (unfinished) stream with at least one segment.
func (p *Probe) Check(ctx context.Context, manifestURL string) (bool, error) {
	return p.checkWithDepth(ctx, manifestURL, 0)
}

func (p *Probe) checkWithDepth(ctx context.Context, manifestURL string, depth int) (bool, error) {
	if depth > maxProbeDepth {
		return false, fmt.Errorf("max master->media recursion depth exceeded")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("manifest fetch failed with status %d", resp.StatusCode)
	}

	playlist, listType, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		return false, fmt.Errorf("decode manifest: %w", err)
	}

	switch listType {
	case m3u8.MEDIA:
		mediapl := playlist.(*m3u8.MediaPlaylist)
		if mediapl.Closed {
			// EXT-X-ENDLIST: the stream already finished.
			return false, nil
		}
		return countSegments(mediapl) > 0, nil
	case m3u8.MASTER:
		masterpl := playlist.(*m3u8.MasterPlaylist)
		if len(masterpl.Variants) == 0 {
			return false, fmt.Errorf("master playlist has no variants")
		}
		base, err := url.Parse(manifestURL)
		if err != nil {
			return false, fmt.Errorf("parse manifest URL: %w", err)
		}
		mediaURL, err := resolveURL(base, masterpl.Variants[0].URI)
		if err != nil {
			return false, fmt.Errorf("resolve variant URL: %w", err)
		}
		return p.checkWithDepth(ctx, mediaURL, depth+1)
	default:
		return false, fmt.Errorf("unknown playlist type")
	}
}

func countSegments(mediapl *m3u8.MediaPlaylist) int {
	n := 0
	for i := uint(0); i < mediapl.Count(); i++ {
		if mediapl.Segments[i] != nil {
			n++
		}
	}
	return n
}

func resolveURL(base *url.URL, ref string) (string, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if refURL.IsAbs() {
		return refURL.String(), nil
	}
	resolved := *base
	if strings.HasPrefix(ref, "/") {
		resolved.Path = refURL.Path
	} else {
		resolved.Path = path.Join(path.Dir(base.Path), refURL.Path)
	}
	resolved.RawQuery = refURL.RawQuery
	resolved.Fragment = refURL.Fragment
	return resolved.String(), nil
}
