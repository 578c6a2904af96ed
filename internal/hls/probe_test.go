package hls

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const liveMediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:5
#EXT-X-MEDIA-SEQUENCE:100
#EXTINF:5.0,
seg100.ts
#EXTINF:5.0,
seg101.ts
`

const endedMediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:5
#EXTINF:5.0,
seg0.ts
#EXT-X-ENDLIST
`

const emptyMediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:5
`

func TestCheckMediaPlaylist(t *testing.T) {
	tests := []struct {
		name     string
		playlist string
		want     bool
	}{
		{name: "live with segments", playlist: liveMediaPlaylist, want: true},
		{name: "ended", playlist: endedMediaPlaylist, want: false},
		{name: "no segments yet", playlist: emptyMediaPlaylist, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.playlist)
			}))
			defer srv.Close()

			p := NewProbe(5 * time.Second)
			live, err := p.Check(context.Background(), srv.URL+"/index.m3u8")
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if live != tt.want {
				t.Errorf("Check() = %v, want %v", live, tt.want)
			}
		})
	}
}

func TestCheckFollowsMasterPlaylist(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
media/index.m3u8
`)
	})
	mux.HandleFunc("/media/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, liveMediaPlaylist)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewProbe(5 * time.Second)
	live, err := p.Check(context.Background(), srv.URL+"/master.m3u8")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !live {
		t.Error("Check() via master playlist = false, want true")
	}
}

func TestCheckBoundsRecursion(t *testing.T) {
	// A master playlist that points at itself must not loop forever.
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=5000000
%s/master.m3u8
`, srv.URL)
	}))
	defer srv.Close()

	p := NewProbe(5 * time.Second)
	if _, err := p.Check(context.Background(), srv.URL+"/master.m3u8"); err == nil {
		t.Error("Check() on self-referential master did not fail")
	}
}

func TestCheckReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := NewProbe(5 * time.Second)
	if _, err := p.Check(context.Background(), srv.URL+"/gone.m3u8"); err == nil {
		t.Error("Check() on 404 did not fail")
	}
}
