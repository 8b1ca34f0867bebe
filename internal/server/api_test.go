package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/deworm/internal/models"
	"github.com/desertthunder/deworm/internal/shared"
	mocks "github.com/desertthunder/deworm/internal/testing"
)

type mockSuggester struct {
	fn func(ctx context.Context, token, earwormID string) (*models.Track, error)
}

func (m *mockSuggester) Suggest(ctx context.Context, token, earwormID string) (*models.Track, error) {
	if m.fn != nil {
		return m.fn(ctx, token, earwormID)
	}
	return &models.Track{ID: "cure", URI: "spotify:track:cure"}, nil
}

func newAPIHandler(store *mocks.MemoryStore, auth *mocks.MockAuthenticator, gateway *mocks.MockGateway, suggester *mockSuggester) *APIHandler {
	if auth == nil {
		auth = &mocks.MockAuthenticator{}
	}
	if gateway == nil {
		gateway = &mocks.MockGateway{}
	}
	if suggester == nil {
		suggester = &mockSuggester{}
	}
	return NewAPIHandler(auth, gateway, suggester, fixedFactory(store), "playlist1", log.New(io.Discard))
}

func validStore() *mocks.MemoryStore {
	return &mocks.MemoryStore{Session: models.Session{AccessToken: "tok", RefreshToken: "rt"}}
}

func doAPI(h *APIHandler, method, target string, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, reader))
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	return out
}

func assertReauth(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	body := decodeBody(t, w)
	if body["reauth"] != true {
		t.Errorf("reauth = %v, want true", body["reauth"])
	}
}

func TestTokenLifecycle(t *testing.T) {
	t.Run("no session at all asks for login", func(t *testing.T) {
		h := newAPIHandler(&mocks.MemoryStore{}, nil, nil, nil)
		assertReauth(t, doAPI(h, http.MethodGet, "/api/spotify/search?q=x", ""))
	})

	t.Run("expired token refreshes before the call", func(t *testing.T) {
		store := validStore()
		store.Expired = true

		var gotToken string
		gateway := &mocks.MockGateway{
			SearchTracksFunc: func(ctx context.Context, token, query string, limit int) ([]models.Track, error) {
				gotToken = token
				return []models.Track{{ID: "t1"}}, nil
			},
		}
		h := newAPIHandler(store, nil, gateway, nil)

		w := doAPI(h, http.MethodGet, "/api/spotify/search?q=x", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body)
		}
		if gotToken != "refreshed" {
			t.Errorf("call used token %q, want the refreshed one", gotToken)
		}
		sess := store.Get()
		if sess.AccessToken != "refreshed" {
			t.Errorf("session not updated: %q", sess.AccessToken)
		}
		if sess.RefreshToken != "rt" {
			t.Errorf("refresh token lost on non-rotating refresh: %q", sess.RefreshToken)
		}
	})

	t.Run("upstream rejection triggers one silent retry", func(t *testing.T) {
		store := validStore()
		calls := 0
		gateway := &mocks.MockGateway{
			SearchTracksFunc: func(ctx context.Context, token, query string, limit int) ([]models.Track, error) {
				calls++
				if calls == 1 {
					return nil, fmt.Errorf("%w: token expired", shared.ErrUnauthorized)
				}
				if token != "refreshed" {
					t.Errorf("retry used token %q", token)
				}
				return []models.Track{{ID: "t1"}}, nil
			},
		}
		h := newAPIHandler(store, nil, gateway, nil)

		w := doAPI(h, http.MethodGet, "/api/spotify/search?q=x", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body)
		}
		if calls != 2 {
			t.Errorf("gateway called %d times, want 2", calls)
		}
	})

	t.Run("no third attempt after a refreshed call fails", func(t *testing.T) {
		store := validStore()
		store.Expired = true
		calls := 0
		gateway := &mocks.MockGateway{
			SearchTracksFunc: func(ctx context.Context, token, query string, limit int) ([]models.Track, error) {
				calls++
				return nil, fmt.Errorf("%w: still rejected", shared.ErrUnauthorized)
			},
		}
		h := newAPIHandler(store, nil, gateway, nil)

		assertReauth(t, doAPI(h, http.MethodGet, "/api/spotify/search?q=x", ""))
		if calls != 1 {
			t.Errorf("gateway called %d times, want 1", calls)
		}
	})

	t.Run("refresh failure asks for login", func(t *testing.T) {
		store := validStore()
		store.Expired = true
		auth := &mocks.MockAuthenticator{
			RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*models.TokenResponse, error) {
				return nil, fmt.Errorf("refresh token revoked")
			},
		}
		calls := 0
		gateway := &mocks.MockGateway{
			SearchTracksFunc: func(ctx context.Context, token, query string, limit int) ([]models.Track, error) {
				calls++
				return nil, nil
			},
		}
		h := newAPIHandler(store, auth, gateway, nil)

		assertReauth(t, doAPI(h, http.MethodGet, "/api/spotify/search?q=x", ""))
		if calls != 0 {
			t.Errorf("gateway called %d times before giving up, want 0", calls)
		}
	})

	t.Run("expired with no refresh token asks for login", func(t *testing.T) {
		store := &mocks.MemoryStore{Session: models.Session{AccessToken: "tok"}, Expired: true}
		h := newAPIHandler(store, nil, nil, nil)
		assertReauth(t, doAPI(h, http.MethodGet, "/api/spotify/search?q=x", ""))
	})
}

func TestSearchEndpoint(t *testing.T) {
	t.Run("requires a query", func(t *testing.T) {
		h := newAPIHandler(validStore(), nil, nil, nil)
		w := doAPI(h, http.MethodGet, "/api/spotify/search", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("passes query and limit through", func(t *testing.T) {
		var gotQuery string
		var gotLimit int
		gateway := &mocks.MockGateway{
			SearchTracksFunc: func(ctx context.Context, token, query string, limit int) ([]models.Track, error) {
				gotQuery, gotLimit = query, limit
				return []models.Track{{ID: "t1", Name: "Found"}}, nil
			},
		}
		h := newAPIHandler(validStore(), nil, gateway, nil)

		w := doAPI(h, http.MethodGet, "/api/spotify/search?q=never+gonna&limit=5", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if gotQuery != "never gonna" || gotLimit != 5 {
			t.Errorf("forwarded q=%q limit=%d", gotQuery, gotLimit)
		}
		body := decodeBody(t, w)
		if _, ok := body["tracks"]; !ok {
			t.Errorf("body = %v, want tracks envelope", body)
		}
	})

	t.Run("rejects non-GET", func(t *testing.T) {
		h := newAPIHandler(validStore(), nil, nil, nil)
		if w := doAPI(h, http.MethodPost, "/api/spotify/search?q=x", ""); w.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", w.Code)
		}
	})
}

func TestPlayEndpoint(t *testing.T) {
	t.Run("POST starts playback", func(t *testing.T) {
		var gotURI, gotDevice string
		gateway := &mocks.MockGateway{
			PlayFunc: func(ctx context.Context, token, uri, deviceID string) error {
				gotURI, gotDevice = uri, deviceID
				return nil
			},
		}
		h := newAPIHandler(validStore(), nil, gateway, nil)

		w := doAPI(h, http.MethodPost, "/api/spotify/play", `{"uri":"spotify:track:abc","device_id":"d1"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body)
		}
		if gotURI != "spotify:track:abc" || gotDevice != "d1" {
			t.Errorf("played %q on %q", gotURI, gotDevice)
		}
		if body := decodeBody(t, w); body["playing"] != true {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("POST without a uri fails", func(t *testing.T) {
		h := newAPIHandler(validStore(), nil, nil, nil)
		for _, body := range []string{"", "{}", `{"device_id":"d1"}`, "not json"} {
			if w := doAPI(h, http.MethodPost, "/api/spotify/play", body); w.Code != http.StatusBadRequest {
				t.Errorf("body %q: status = %d, want 400", body, w.Code)
			}
		}
	})

	t.Run("DELETE pauses playback", func(t *testing.T) {
		paused := false
		gateway := &mocks.MockGateway{
			PauseFunc: func(ctx context.Context, token string) error {
				paused = true
				return nil
			},
		}
		h := newAPIHandler(validStore(), nil, gateway, nil)

		w := doAPI(h, http.MethodDelete, "/api/spotify/play", "")
		if w.Code != http.StatusOK || !paused {
			t.Fatalf("status = %d, paused = %v", w.Code, paused)
		}
		if body := decodeBody(t, w); body["playing"] != false {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("other methods are rejected", func(t *testing.T) {
		h := newAPIHandler(validStore(), nil, nil, nil)
		if w := doAPI(h, http.MethodPut, "/api/spotify/play", ""); w.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", w.Code)
		}
	})
}

func TestPlaylistEndpoint(t *testing.T) {
	t.Run("serves the replacement playlist", func(t *testing.T) {
		var gotPlaylist string
		gateway := &mocks.MockGateway{
			PlaylistTracksFunc: func(ctx context.Context, token, playlistID string) ([]models.Track, error) {
				gotPlaylist = playlistID
				return []models.Track{{ID: "t1"}}, nil
			},
		}
		h := newAPIHandler(validStore(), nil, gateway, nil)

		w := doAPI(h, http.MethodGet, "/api/spotify/playlist", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if gotPlaylist != "playlist1" {
			t.Errorf("playlist id = %q", gotPlaylist)
		}
	})

	t.Run("suggest_for picks a replacement", func(t *testing.T) {
		var gotEarworm string
		suggester := &mockSuggester{
			fn: func(ctx context.Context, token, earwormID string) (*models.Track, error) {
				gotEarworm = earwormID
				return &models.Track{ID: "cure1", Name: "The Cure"}, nil
			},
		}
		h := newAPIHandler(validStore(), nil, nil, suggester)

		w := doAPI(h, http.MethodGet, "/api/spotify/playlist?suggest_for=worm1", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if gotEarworm != "worm1" {
			t.Errorf("earworm id = %q", gotEarworm)
		}
		body := decodeBody(t, w)
		track, ok := body["track"].(map[string]any)
		if !ok || track["id"] != "cure1" {
			t.Errorf("body = %v", body)
		}
	})
}

func TestTrackEndpoint(t *testing.T) {
	t.Run("fetches a track by id", func(t *testing.T) {
		h := newAPIHandler(validStore(), nil, nil, nil)

		w := doAPI(h, http.MethodGet, "/api/spotify/track/abc123", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if body := decodeBody(t, w); body["id"] != "abc123" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("rejects empty and nested ids", func(t *testing.T) {
		h := newAPIHandler(validStore(), nil, nil, nil)
		for _, path := range []string{"/api/spotify/track/", "/api/spotify/track/a/b"} {
			if w := doAPI(h, http.MethodGet, path, ""); w.Code != http.StatusBadRequest {
				t.Errorf("%s: status = %d, want 400", path, w.Code)
			}
		}
	})
}

func TestTokenEndpoint(t *testing.T) {
	t.Run("hands the SDK a valid token", func(t *testing.T) {
		h := newAPIHandler(validStore(), nil, nil, nil)

		w := doAPI(h, http.MethodGet, "/api/spotify/token", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if body := decodeBody(t, w); body["access_token"] != "tok" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("requires a session", func(t *testing.T) {
		h := newAPIHandler(&mocks.MemoryStore{}, nil, nil, nil)
		assertReauth(t, doAPI(h, http.MethodGet, "/api/spotify/token", ""))
	})

	t.Run("rejects non-GET", func(t *testing.T) {
		h := newAPIHandler(validStore(), nil, nil, nil)
		if w := doAPI(h, http.MethodPost, "/api/spotify/token", ""); w.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", w.Code)
		}
	})
}

func TestUpstreamErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"bad argument", fmt.Errorf("%w: bad limit", shared.ErrInvalidArgument), http.StatusBadRequest},
		{"upstream failure", fmt.Errorf("%w: 503", shared.ErrUpstream), http.StatusBadGateway},
		{"unexpected failure", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := &mocks.MockGateway{
				SearchTracksFunc: func(ctx context.Context, token, query string, limit int) ([]models.Track, error) {
					return nil, tt.err
				},
			}
			h := newAPIHandler(validStore(), nil, gateway, nil)

			w := doAPI(h, http.MethodGet, "/api/spotify/search?q=x", "")
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if body := decodeBody(t, w); body["reauth"] != false {
				t.Errorf("reauth = %v, want false", body["reauth"])
			}
		})
	}

	t.Run("unknown route", func(t *testing.T) {
		h := newAPIHandler(validStore(), nil, nil, nil)
		if w := doAPI(h, http.MethodGet, "/api/spotify/bogus", ""); w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}
