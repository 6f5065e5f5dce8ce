package backend

import (
	"context"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"flacsweep/logger"
)

const (
	spotifyTokenURL = "https://open.spotify.com/get_access_token"
	spotifyAPIURL   = "https://api.spotify.com"

	spotifyTOTPVersion = 5
	spotifyUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	// refresh the anonymous token slightly before Spotify expires it
	tokenExpirySlack = 30 * time.Second
)

// totpSecretCipher is the obfuscated seed the web player derives its
// request TOTP from. Each byte is XORed with its index before the result
// is rendered as decimal digits and base32 encoded.
var totpSecretCipher = []byte{12, 56, 76, 33, 88, 44, 88, 33, 78, 78, 11, 66, 22, 22, 55, 69, 54}

func spotifyTOTPSecret() string {
	var digits strings.Builder
	for i, b := range totpSecretCipher {
		digits.WriteString(strconv.Itoa(int(b) ^ (i%33 + 9)))
	}
	return base32.StdEncoding.EncodeToString([]byte(digits.String()))
}

// SpotifyClient searches the Spotify catalog using the web player's
// anonymous token flow. No user credentials are involved.
type SpotifyClient struct {
	httpClient *http.Client
	tokenURL   string
	apiURL     string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewSpotifyClient returns a client against the public endpoints.
func NewSpotifyClient() *SpotifyClient {
	return &SpotifyClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokenURL:   spotifyTokenURL,
		apiURL:     spotifyAPIURL,
	}
}

// token returns a cached anonymous access token, fetching a fresh one
// when the cache is empty or about to expire.
func (c *SpotifyClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpirySlack)) {
		return c.accessToken, nil
	}
	return c.fetchTokenLocked(ctx)
}

// invalidateToken drops the cached token after a 401.
func (c *SpotifyClient) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

func (c *SpotifyClient) fetchTokenLocked(ctx context.Context) (string, error) {
	now := time.Now()
	code, err := totp.GenerateCodeCustom(spotifyTOTPSecret(), now, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("generate totp: %w", err)
	}

	params := url.Values{}
	params.Set("reason", "transport")
	params.Set("productType", "web-player")
	params.Set("totp", code)
	params.Set("totpVer", strconv.Itoa(spotifyTOTPVersion))
	params.Set("ts", strconv.FormatInt(now.UnixMilli(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", spotifyUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"accessToken"`
		ExpiresAtMs int64  `json:"accessTokenExpirationTimestampMs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token response had no access token")
	}

	c.accessToken = payload.AccessToken
	if payload.ExpiresAtMs > 0 {
		c.tokenExpiry = time.UnixMilli(payload.ExpiresAtMs)
	} else {
		c.tokenExpiry = now.Add(30 * time.Minute)
	}
	logger.Debug("spotify token refreshed",
		logger.Duration("valid_for", time.Until(c.tokenExpiry)))
	return c.accessToken, nil
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			Album struct {
				ID     string `json:"id"`
				Name   string `json:"name"`
				Images []struct {
					URL string `json:"url"`
				} `json:"images"`
			} `json:"album"`
			ExternalURLs struct {
				Spotify string `json:"spotify"`
			} `json:"external_urls"`
			DurationMs int `json:"duration_ms"`
		} `json:"items"`
	} `json:"tracks"`
}

// SearchTracks searches the catalog for tracks matching query. A 401
// invalidates the cached token and the request is retried once with a
// fresh one.
func (c *SpotifyClient) SearchTracks(ctx context.Context, query string, limit int) ([]CatalogTrack, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	tracks, status, err := c.searchOnce(ctx, query, limit)
	if status == http.StatusUnauthorized {
		c.invalidateToken()
		tracks, _, err = c.searchOnce(ctx, query, limit)
	}
	return tracks, err
}

func (c *SpotifyClient) searchOnce(ctx context.Context, query string, limit int) ([]CatalogTrack, int, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, 0, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/v1/search?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", spotifyUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode, fmt.Errorf("search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload spotifySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode search response: %w", err)
	}

	tracks := make([]CatalogTrack, 0, len(payload.Tracks.Items))
	for _, item := range payload.Tracks.Items {
		names := make([]string, 0, len(item.Artists))
		for _, a := range item.Artists {
			names = append(names, a.Name)
		}
		track := CatalogTrack{
			ID:          item.ID,
			Name:        item.Name,
			Artists:     strings.Join(names, ", "),
			AlbumName:   item.Album.Name,
			AlbumID:     item.Album.ID,
			ExternalURL: item.ExternalURLs.Spotify,
			Duration:    item.DurationMs,
		}
		if len(item.Album.Images) > 0 {
			track.Images = item.Album.Images[0].URL
		}
		tracks = append(tracks, track)
	}
	return tracks, resp.StatusCode, nil
}
