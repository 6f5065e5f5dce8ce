package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flacsweep/logger"
)

const songLinkBaseURL = "https://api.song.link/v1-alpha.1"

// losslessPlatforms are the services we report availability for, in
// display order. All of them offer lossless tiers.
var losslessPlatforms = []string{"tidal", "deezer", "amazonMusic", "qobuz"}

// ServiceAvailability says whether one service carries the track.
type ServiceAvailability struct {
	Available bool   `json:"available"`
	URL       string `json:"url,omitempty"`
}

// AvailabilityResult is the per-track availability summary.
type AvailabilityResult struct {
	EntityID string                         `json:"entity_id"`
	PageURL  string                         `json:"page_url"`
	Services map[string]ServiceAvailability `json:"services"`
}

// HasLosslessSource reports whether any service carries the track.
func (r *AvailabilityResult) HasLosslessSource() bool {
	if r == nil {
		return false
	}
	for _, svc := range r.Services {
		if svc.Available {
			return true
		}
	}
	return false
}

// SongLinkClient resolves catalog track IDs to per-service availability
// through the song.link aggregation API.
type SongLinkClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewSongLinkClient() *SongLinkClient {
	return &SongLinkClient{
		httpClient: &http.Client{Timeout: 25 * time.Second},
		baseURL:    songLinkBaseURL,
	}
}

type songLinkResponse struct {
	EntityUniqueID  string `json:"entityUniqueId"`
	PageURL         string `json:"pageUrl"`
	LinksByPlatform map[string]struct {
		URL string `json:"url"`
	} `json:"linksByPlatform"`
}

// CheckAvailability looks the track up on song.link. When the primary ID
// fails and a fallback ID is given, the lookup is retried once with the
// fallback before giving up.
func (c *SongLinkClient) CheckAvailability(ctx context.Context, trackID, fallbackID string) (*AvailabilityResult, error) {
	if strings.TrimSpace(trackID) == "" {
		return nil, fmt.Errorf("track id is required")
	}

	result, err := c.lookup(ctx, trackID)
	if err != nil && fallbackID != "" && fallbackID != trackID {
		logger.Debug("song.link lookup failed, retrying with fallback",
			logger.String("track_id", trackID),
			logger.String("fallback_id", fallbackID),
			logger.ErrorField(err))
		result, err = c.lookup(ctx, fallbackID)
	}
	return result, err
}

func (c *SongLinkClient) lookup(ctx context.Context, trackID string) (*AvailabilityResult, error) {
	params := url.Values{}
	params.Set("platform", "spotify")
	params.Set("type", "song")
	params.Set("id", trackID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/links?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("availability request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("availability: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload songLinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode availability response: %w", err)
	}

	result := &AvailabilityResult{
		EntityID: payload.EntityUniqueID,
		PageURL:  payload.PageURL,
		Services: make(map[string]ServiceAvailability, len(losslessPlatforms)),
	}
	for _, platform := range losslessPlatforms {
		link, ok := payload.LinksByPlatform[platform]
		result.Services[platform] = ServiceAvailability{
			Available: ok && link.URL != "",
			URL:       link.URL,
		}
	}
	return result, nil
}
