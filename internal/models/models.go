package models

import "time"

// Session holds the OAuth tokens and cached profile for a logged-in user.
//
// An absent AccessToken means the session is unauthenticated regardless of the
// other fields. ExpiresAt in the past (minus the store's safety buffer) means
// the session is treated as expired even while AccessToken is still present.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Profile      *UserProfile
}

// UserProfile is a denormalized cache of the Spotify user profile, fetched
// once per login and not refreshed automatically.
type UserProfile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email"`
	Images      []Image `json:"images,omitempty"`
}

// Image represents an image resource.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Artist represents a Spotify artist.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Album represents the album a track belongs to.
type Album struct {
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

// Track is an immutable value object fetched on demand from the catalog.
// It is never persisted beyond the lifetime of a view.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	URI        string   `json:"uri"`
	DurationMS int      `json:"duration_ms"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
}

// PlaybackDevice is the provider-assigned playback endpoint for this client.
//
// A cached device id must be reconciled against the provider's device list
// before it is trusted across restarts.
type PlaybackDevice struct {
	DeviceID string
	Name     string
	IsReady  bool
	LastSeen time.Time
}

// TokenResponse is the provider's token endpoint response for both the
// authorization-code and refresh-token grants.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}
