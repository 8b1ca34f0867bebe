package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/desertthunder/deworm/internal/models"
	"github.com/desertthunder/deworm/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// Scopes requested on login: profile/email reads, playback state read/modify,
// streaming, playlist reads.
var Scopes = []string{
	"user-read-private",
	"user-read-email",
	"user-read-playback-state",
	"user-modify-playback-state",
	"user-read-currently-playing",
	"streaming",
	"playlist-read-private",
	"playlist-read-collaborative",
}

// Authenticator covers the authorization-code and refresh-token grants.
type Authenticator interface {
	// AuthCodeURL builds the provider authorize URL carrying the state nonce.
	AuthCodeURL(state string) string

	// ExchangeCode trades an authorization code for tokens.
	ExchangeCode(ctx context.Context, code string) (*models.TokenResponse, error)

	// RefreshToken trades a refresh token for a new access token. The
	// provider may or may not rotate the refresh token.
	RefreshToken(ctx context.Context, refreshToken string) (*models.TokenResponse, error)
}

// Gateway covers the authenticated catalog and player operations. Each call is
// a pass-through mapping of upstream JSON to the local model shapes; there is
// no caching.
//
// A 401 surfaces as [shared.ErrUnauthorized] so callers can trigger a single
// refresh-and-retry; any other non-2xx surfaces as [shared.ErrUpstream].
type Gateway interface {
	Me(ctx context.Context, token string) (*models.UserProfile, error)
	SearchTracks(ctx context.Context, token, query string, limit int) ([]models.Track, error)
	Track(ctx context.Context, token, id string) (*models.Track, error)
	PlaylistTracks(ctx context.Context, token, playlistID string) ([]models.Track, error)
	Play(ctx context.Context, token, uri, deviceID string) error
	Pause(ctx context.Context, token string) error
	SetVolume(ctx context.Context, token string, percent int, deviceID string) error
	Devices(ctx context.Context, token string) ([]models.PlaybackDevice, error)
}

// Client implements [Authenticator] and [Gateway] on [oauth2.Config] and a
// plain [http.Client].
type Client struct {
	config     *oauth2.Config
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// NewClient creates a Spotify client from the configured credentials.
func NewClient(cfg shared.SpotifyConfig) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &Client{
		config:     config,
		httpClient: http.DefaultClient,
		baseURL:    spotifyBaseURL,
		// search is the only endpoint hit on every keystroke
		limiter: rate.NewLimiter(rate.Limit(5), 1),
	}, nil
}

// AuthCodeURL builds the authorize URL. show_dialog forces the consent screen
// on every login.
func (c *Client) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))
}

// ExchangeCode trades the authorization code for tokens. Non-2xx responses
// surface as [shared.ErrExchangeFailed] carrying the provider's description.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*models.TokenResponse, error) {
	tok, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrExchangeFailed, retrieveDescription(err))
	}
	return tokenResponse(tok), nil
}

// RefreshToken trades a refresh token for a fresh access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenResponse, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	src := c.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrRefreshFailed, retrieveDescription(err))
	}

	resp := tokenResponse(tok)
	if resp.RefreshToken == refreshToken {
		// oauth2 echoes the old refresh token when the provider didn't
		// rotate it; callers only persist a replacement
		resp.RefreshToken = ""
	}
	return resp, nil
}

// retrieveDescription pulls the provider's error description out of an oauth2
// retrieval failure.
func retrieveDescription(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorDescription != "" {
			return re.ErrorDescription
		}
		if re.ErrorCode != "" {
			return re.ErrorCode
		}
		return re.Response.Status
	}
	return err.Error()
}

func tokenResponse(tok *oauth2.Token) *models.TokenResponse {
	return &models.TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    int(tok.ExpiresIn),
		RefreshToken: tok.RefreshToken,
	}
}

// upstreamError is the Web API's error envelope.
type upstreamError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// do performs an authenticated request against the Web API and decodes the
// response into out when non-nil.
func (c *Client) do(ctx context.Context, method, endpoint, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", shared.ErrUnauthorized, upstreamMessage(resp.Body, resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s", shared.ErrUpstream, upstreamMessage(resp.Body, resp.StatusCode))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func upstreamMessage(body io.Reader, status int) string {
	var envelope upstreamError
	if err := json.NewDecoder(body).Decode(&envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return fmt.Sprintf("status %d", status)
}

// Me retrieves the authenticated user's profile.
func (c *Client) Me(ctx context.Context, token string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := c.do(ctx, http.MethodGet, "/me", token, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// SearchTracks searches the catalog for tracks matching query, returning at
// most limit results. Limits outside 1..50 fall back to 10.
func (c *Client) SearchTracks(ctx context.Context, token, query string, limit int) ([]models.Track, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrInvalidArgument)
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=%d", url.QueryEscape(query), limit)

	var response struct {
		Tracks struct {
			Items []models.Track `json:"items"`
		} `json:"tracks"`
	}

	if err := c.do(ctx, http.MethodGet, endpoint, token, nil, &response); err != nil {
		return nil, err
	}

	return response.Tracks.Items, nil
}

// Track retrieves a single track by ID.
func (c *Client) Track(ctx context.Context, token, id string) (*models.Track, error) {
	var track models.Track
	if err := c.do(ctx, http.MethodGet, "/tracks/"+url.PathEscape(id), token, nil, &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// playlistPage is one page of a playlist's tracks.
type playlistPage struct {
	Items []struct {
		Track models.Track `json:"track"`
	} `json:"items"`
	Next *string `json:"next"`
}

// PlaylistTracks retrieves every track in a playlist, following the next
// cursor until exhausted.
func (c *Client) PlaylistTracks(ctx context.Context, token, playlistID string) ([]models.Track, error) {
	var tracks []models.Track
	limit := 100
	offset := 0

	for {
		endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d", url.PathEscape(playlistID), limit, offset)

		var page playlistPage
		if err := c.do(ctx, http.MethodGet, endpoint, token, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			tracks = append(tracks, item.Track)
		}

		if page.Next == nil {
			break
		}
		offset += limit
	}

	return tracks, nil
}

// Play starts playback of uri on the given device.
func (c *Client) Play(ctx context.Context, token, uri, deviceID string) error {
	endpoint := "/me/player/play"
	if deviceID != "" {
		endpoint += "?device_id=" + url.QueryEscape(deviceID)
	}

	body := map[string][]string{"uris": {uri}}
	return c.do(ctx, http.MethodPut, endpoint, token, body, nil)
}

// Pause pauses playback on the user's active device.
func (c *Client) Pause(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPut, "/me/player/pause", token, nil, nil)
}

// SetVolume sets the playback volume on the given device as a percentage.
func (c *Client) SetVolume(ctx context.Context, token string, percent int, deviceID string) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: volume %d%% out of range", shared.ErrInvalidArgument, percent)
	}

	endpoint := fmt.Sprintf("/me/player/volume?volume_percent=%d", percent)
	if deviceID != "" {
		endpoint += "&device_id=" + url.QueryEscape(deviceID)
	}
	return c.do(ctx, http.MethodPut, endpoint, token, nil, nil)
}

// Devices lists the playback devices registered for the user.
func (c *Client) Devices(ctx context.Context, token string) ([]models.PlaybackDevice, error) {
	var response struct {
		Devices []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			IsActive bool   `json:"is_active"`
		} `json:"devices"`
	}

	if err := c.do(ctx, http.MethodGet, "/me/player/devices", token, nil, &response); err != nil {
		return nil, err
	}

	devices := make([]models.PlaybackDevice, 0, len(response.Devices))
	for _, d := range response.Devices {
		devices = append(devices, models.PlaybackDevice{
			DeviceID: d.ID,
			Name:     d.Name,
			IsReady:  d.IsActive,
		})
	}

	return devices, nil
}

var (
	_ Authenticator = (*Client)(nil)
	_ Gateway       = (*Client)(nil)
)
