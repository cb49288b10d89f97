// Package catalog talks to the music catalog REST API: playlist fetches
// and play-count reporting.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/seguefm/segue/internal/logger"
	"github.com/seguefm/segue/internal/track"
)

// dedupeWindow suppresses duplicate play reports for the same track.
const dedupeWindow = 30 * time.Second

// Client communicates with the catalog API.
type Client struct {
	baseURL string
	http    *http.Client

	mu       sync.Mutex
	reported map[string]time.Time
	now      func() time.Time
}

// NewClient creates a catalog API client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		reported: make(map[string]time.Time),
		now:      time.Now,
	}
}

type playlistResp struct {
	Tracks []map[string]any `json:"tracks"`
	Songs  []map[string]any `json:"songs"`
	Data   []map[string]any `json:"data"`
}

// FetchPlaylistTracks fetches a playlist and returns its playable tracks,
// normalized and deduplicated. Relative file and cover URLs are resolved
// against the API base.
func (c *Client) FetchPlaylistTracks(ctx context.Context, playlistID string) ([]track.Track, error) {
	u := fmt.Sprintf("%s/api/playlists/%s", c.baseURL, playlistID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch playlist %s: %w", playlistID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch playlist %s: status %d", playlistID, resp.StatusCode)
	}

	var body playlistResp
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode playlist %s: %w", playlistID, err)
	}

	raw := body.Tracks
	if len(raw) == 0 {
		raw = body.Songs
	}
	if len(raw) == 0 {
		raw = body.Data
	}

	tracks := track.FilterPlayable(track.NormalizeAll(raw))
	for i := range tracks {
		tracks[i].FileURL = track.ResolveURL(c.baseURL, tracks[i].FileURL)
		tracks[i].CoverImage = track.ResolveURL(c.baseURL, tracks[i].CoverImage)
	}
	return tracks, nil
}

// ReportPlay records a play for trackID, fire and forget. Reports for the
// same track within the dedupe window are dropped, and failures are only
// logged so reporting can never affect playback.
func (c *Client) ReportPlay(trackID string) {
	if trackID == "" {
		return
	}

	c.mu.Lock()
	if last, ok := c.reported[trackID]; ok && c.now().Sub(last) < dedupeWindow {
		c.mu.Unlock()
		return
	}
	c.reported[trackID] = c.now()
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		body, _ := json.Marshal(map[string]string{"trackId": trackID})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/api/plays", bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			logger.Debug("play report failed", logger.String("track", trackID), logger.Err(err))
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			logger.Debug("play report rejected",
				logger.String("track", trackID), logger.Int("status", resp.StatusCode))
		}
	}()
}
