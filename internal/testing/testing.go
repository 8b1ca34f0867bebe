// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/deworm/internal/models"
)

// MockGateway is a configurable test double for [spotify.Gateway]. Unset
// functions return zero values.
type MockGateway struct {
	MeFunc             func(ctx context.Context, token string) (*models.UserProfile, error)
	SearchTracksFunc   func(ctx context.Context, token, query string, limit int) ([]models.Track, error)
	TrackFunc          func(ctx context.Context, token, id string) (*models.Track, error)
	PlaylistTracksFunc func(ctx context.Context, token, playlistID string) ([]models.Track, error)
	PlayFunc           func(ctx context.Context, token, uri, deviceID string) error
	PauseFunc          func(ctx context.Context, token string) error
	SetVolumeFunc      func(ctx context.Context, token string, percent int, deviceID string) error
	DevicesFunc        func(ctx context.Context, token string) ([]models.PlaybackDevice, error)
}

func (m *MockGateway) Me(ctx context.Context, token string) (*models.UserProfile, error) {
	if m.MeFunc != nil {
		return m.MeFunc(ctx, token)
	}
	return &models.UserProfile{}, nil
}

func (m *MockGateway) SearchTracks(ctx context.Context, token, query string, limit int) ([]models.Track, error) {
	if m.SearchTracksFunc != nil {
		return m.SearchTracksFunc(ctx, token, query, limit)
	}
	return nil, nil
}

func (m *MockGateway) Track(ctx context.Context, token, id string) (*models.Track, error) {
	if m.TrackFunc != nil {
		return m.TrackFunc(ctx, token, id)
	}
	return &models.Track{ID: id}, nil
}

func (m *MockGateway) PlaylistTracks(ctx context.Context, token, playlistID string) ([]models.Track, error) {
	if m.PlaylistTracksFunc != nil {
		return m.PlaylistTracksFunc(ctx, token, playlistID)
	}
	return nil, nil
}

func (m *MockGateway) Play(ctx context.Context, token, uri, deviceID string) error {
	if m.PlayFunc != nil {
		return m.PlayFunc(ctx, token, uri, deviceID)
	}
	return nil
}

func (m *MockGateway) Pause(ctx context.Context, token string) error {
	if m.PauseFunc != nil {
		return m.PauseFunc(ctx, token)
	}
	return nil
}

func (m *MockGateway) SetVolume(ctx context.Context, token string, percent int, deviceID string) error {
	if m.SetVolumeFunc != nil {
		return m.SetVolumeFunc(ctx, token, percent, deviceID)
	}
	return nil
}

func (m *MockGateway) Devices(ctx context.Context, token string) ([]models.PlaybackDevice, error) {
	if m.DevicesFunc != nil {
		return m.DevicesFunc(ctx, token)
	}
	return nil, nil
}

// MockAuthenticator is a test double for [spotify.Authenticator].
type MockAuthenticator struct {
	AuthCodeURLFunc  func(state string) string
	ExchangeCodeFunc func(ctx context.Context, code string) (*models.TokenResponse, error)
	RefreshTokenFunc func(ctx context.Context, refreshToken string) (*models.TokenResponse, error)
}

func (m *MockAuthenticator) AuthCodeURL(state string) string {
	if m.AuthCodeURLFunc != nil {
		return m.AuthCodeURLFunc(state)
	}
	return "https://accounts.example.com/authorize?state=" + state
}

func (m *MockAuthenticator) ExchangeCode(ctx context.Context, code string) (*models.TokenResponse, error) {
	if m.ExchangeCodeFunc != nil {
		return m.ExchangeCodeFunc(ctx, code)
	}
	return &models.TokenResponse{AccessToken: "access-" + code, ExpiresIn: 3600}, nil
}

func (m *MockAuthenticator) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenResponse, error) {
	if m.RefreshTokenFunc != nil {
		return m.RefreshTokenFunc(ctx, refreshToken)
	}
	return &models.TokenResponse{AccessToken: "refreshed", ExpiresIn: 3600}, nil
}

// MemoryStore is an in-memory [session.Store] for handler tests.
type MemoryStore struct {
	mu      sync.Mutex
	Session models.Session
	State   string
	Expired bool
}

func (s *MemoryStore) Put(sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.RefreshToken == "" {
		sess.RefreshToken = s.Session.RefreshToken
	}
	if sess.Profile == nil {
		sess.Profile = s.Session.Profile
	}
	s.Session = sess
	s.Expired = false
	return nil
}

func (s *MemoryStore) Get() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Session
}

func (s *MemoryStore) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Expired || s.Session.AccessToken == ""
}

func (s *MemoryStore) IsAuthenticated() bool {
	return s.Get().AccessToken != "" && !s.IsExpired()
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Session = models.Session{}
	s.State = ""
	return nil
}

func (s *MemoryStore) SaveState(state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = state
	return nil
}

func (s *MemoryStore) TakeState() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.State
	s.State = ""
	return state, state != ""
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}
