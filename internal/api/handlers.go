// Package api implements the runner daemon's HTTP handlers: a live view
// of the shared state document and the watched channel list.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/namacap/namacap/internal/httpapi"
	"github.com/namacap/namacap/internal/state"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	store    *state.Store
	probe    state.ProcessProbe
	channels []string
}

// NewHandler creates a new API handler.
func NewHandler(store *state.Store, probe state.ProcessProbe, channels []string) *Handler {
	return &Handler{store: store, probe: probe, channels: channels}
}

// DownloaderStatus is one active capture ledger entry.
type DownloaderStatus struct {
	VideoID string `json:"video_id"`
	PID     int    `json:"pid"`
	Alive   bool   `json:"alive"`
}

// ChannelStatus is the cached classification map of one channel.
type ChannelStatus struct {
	ChannelID string            `json:"channel_id"`
	Videos    map[string]string `json:"videos"`
}

// StateResponse is the full state document, resolved for human eyes: pids
// annotated with liveness, classification codes rendered as names.
type StateResponse struct {
	ActiveDownloaders []DownloaderStatus `json:"active_downloaders"`
	Channels          []ChannelStatus    `json:"channels"`
}

// GetState returns the current state document.
func (h *Handler) GetState(c *gin.Context) {
	doc, err := h.store.Load()
	if err != nil {
		httpapi.RespondError(c, 500, httpapi.ErrCodeState, "failed to load state")
		return
	}

	resp := StateResponse{
		ActiveDownloaders: make([]DownloaderStatus, 0, len(doc.ActiveDownloaders)),
		Channels:          make([]ChannelStatus, 0, len(doc.ChannelVideos)),
	}
	for videoID, pid := range doc.ActiveDownloaders {
		resp.ActiveDownloaders = append(resp.ActiveDownloaders, DownloaderStatus{
			VideoID: videoID,
			PID:     pid,
			Alive:   h.probe.Alive(pid),
		})
	}
	for channelID, videos := range doc.ChannelVideos {
		cs := ChannelStatus{
			ChannelID: channelID,
			Videos:    make(map[string]string, len(videos)),
		}
		for videoID, st := range videos {
			cs.Videos[videoID] = st.String()
		}
		resp.Channels = append(resp.Channels, cs)
	}

	httpapi.RespondOK(c, resp)
}

// ListChannels returns the configured watch list.
func (h *Handler) ListChannels(c *gin.Context) {
	httpapi.RespondOK(c, gin.H{"channels": h.channels})
}

// GetChannel returns one channel's cached classification map.
func (h *Handler) GetChannel(c *gin.Context) {
	channelID := c.Param("channel_id")

	doc, err := h.store.Load()
	if err != nil {
		httpapi.RespondError(c, 500, httpapi.ErrCodeState, "failed to load state")
		return
	}
	videos, ok := doc.ChannelVideos[channelID]
	if !ok {
		httpapi.RespondNotFound(c, "channel not tracked")
		return
	}

	resolved := make(map[string]string, len(videos))
	for videoID, st := range videos {
		resolved[videoID] = st.String()
	}
	httpapi.RespondOK(c, ChannelStatus{ChannelID: channelID, Videos: resolved})
}
