package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/deworm/internal/shared"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(shared.SpotifyConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:8080/callback",
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	client.baseURL = srv.URL
	client.httpClient = srv.Client()
	return client, srv
}

func TestNewClient(t *testing.T) {
	t.Run("requires client id", func(t *testing.T) {
		_, err := NewClient(shared.SpotifyConfig{ClientSecret: "s"})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("err = %v, want ErrMissingCredentials", err)
		}
	})

	t.Run("requires client secret", func(t *testing.T) {
		_, err := NewClient(shared.SpotifyConfig{ClientID: "id"})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("err = %v, want ErrMissingCredentials", err)
		}
	})

	t.Run("defaults the redirect uri", func(t *testing.T) {
		client, err := NewClient(shared.SpotifyConfig{ClientID: "id", ClientSecret: "s"})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if client.config.RedirectURL == "" {
			t.Error("redirect URL not defaulted")
		}
	})
}

func TestAuthCodeURL(t *testing.T) {
	client, err := NewClient(shared.SpotifyConfig{ClientID: "id", ClientSecret: "s"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	url := client.AuthCodeURL("nonce123")

	for _, want := range []string{"state=nonce123", "show_dialog=true", "client_id=id", "streaming"} {
		if !strings.Contains(url, want) {
			t.Errorf("auth URL missing %q: %s", want, url)
		}
	}
}

func TestExchangeCode(t *testing.T) {
	t.Run("returns token response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"at","token_type":"Bearer","expires_in":3600,"refresh_token":"rt","scope":"streaming"}`)
		}))
		defer srv.Close()

		client, _ := NewClient(shared.SpotifyConfig{ClientID: "id", ClientSecret: "s"})
		client.config.Endpoint.AuthURL = srv.URL
		client.config.Endpoint.TokenURL = srv.URL

		resp, err := client.ExchangeCode(context.Background(), "code123")
		if err != nil {
			t.Fatalf("ExchangeCode failed: %v", err)
		}
		if resp.AccessToken != "at" || resp.RefreshToken != "rt" {
			t.Errorf("tokens = %q, %q", resp.AccessToken, resp.RefreshToken)
		}
		if resp.ExpiresIn != 3600 {
			t.Errorf("ExpiresIn = %d, want 3600", resp.ExpiresIn)
		}
	})

	t.Run("surfaces provider error description", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Invalid authorization code"}`)
		}))
		defer srv.Close()

		client, _ := NewClient(shared.SpotifyConfig{ClientID: "id", ClientSecret: "s"})
		client.config.Endpoint.TokenURL = srv.URL

		_, err := client.ExchangeCode(context.Background(), "bad-code")
		if !errors.Is(err, shared.ErrExchangeFailed) {
			t.Fatalf("err = %v, want ErrExchangeFailed", err)
		}
		if !strings.Contains(err.Error(), "Invalid authorization code") {
			t.Errorf("error lost provider description: %v", err)
		}
	})
}

func TestRefreshToken(t *testing.T) {
	t.Run("rejects empty refresh token", func(t *testing.T) {
		client, _ := NewClient(shared.SpotifyConfig{ClientID: "id", ClientSecret: "s"})
		if _, err := client.RefreshToken(context.Background(), ""); !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("err = %v, want ErrNoRefreshToken", err)
		}
	})

	t.Run("blanks echoed refresh token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"new-at","token_type":"Bearer","expires_in":3600,"refresh_token":"same-rt"}`)
		}))
		defer srv.Close()

		client, _ := NewClient(shared.SpotifyConfig{ClientID: "id", ClientSecret: "s"})
		client.config.Endpoint.TokenURL = srv.URL

		resp, err := client.RefreshToken(context.Background(), "same-rt")
		if err != nil {
			t.Fatalf("RefreshToken failed: %v", err)
		}
		if resp.AccessToken != "new-at" {
			t.Errorf("AccessToken = %q", resp.AccessToken)
		}
		if resp.RefreshToken != "" {
			t.Errorf("echoed refresh token not blanked: %q", resp.RefreshToken)
		}
	})

	t.Run("keeps rotated refresh token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"new-at","token_type":"Bearer","expires_in":3600,"refresh_token":"rotated-rt"}`)
		}))
		defer srv.Close()

		client, _ := NewClient(shared.SpotifyConfig{ClientID: "id", ClientSecret: "s"})
		client.config.Endpoint.TokenURL = srv.URL

		resp, err := client.RefreshToken(context.Background(), "old-rt")
		if err != nil {
			t.Fatalf("RefreshToken failed: %v", err)
		}
		if resp.RefreshToken != "rotated-rt" {
			t.Errorf("RefreshToken = %q, want rotated-rt", resp.RefreshToken)
		}
	})

	t.Run("wraps refresh failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Refresh token revoked"}`)
		}))
		defer srv.Close()

		client, _ := NewClient(shared.SpotifyConfig{ClientID: "id", ClientSecret: "s"})
		client.config.Endpoint.TokenURL = srv.URL

		_, err := client.RefreshToken(context.Background(), "revoked")
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("err = %v, want ErrRefreshFailed", err)
		}
	})
}

func TestDo(t *testing.T) {
	t.Run("401 surfaces as ErrUnauthorized", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"status":401,"message":"The access token expired"}}`)
		})

		_, err := client.Me(context.Background(), "stale")
		if !errors.Is(err, shared.ErrUnauthorized) {
			t.Fatalf("err = %v, want ErrUnauthorized", err)
		}
		if !strings.Contains(err.Error(), "The access token expired") {
			t.Errorf("error lost upstream message: %v", err)
		}
	})

	t.Run("other failures surface as ErrUpstream", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := client.Me(context.Background(), "tok")
		if !errors.Is(err, shared.ErrUpstream) {
			t.Errorf("err = %v, want ErrUpstream", err)
		}
		if errors.Is(err, shared.ErrUnauthorized) {
			t.Error("503 misclassified as unauthorized")
		}
	})

	t.Run("sends bearer token", func(t *testing.T) {
		var gotAuth string
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			fmt.Fprint(w, `{"id":"u1"}`)
		})

		if _, err := client.Me(context.Background(), "tok123"); err != nil {
			t.Fatalf("Me failed: %v", err)
		}
		if gotAuth != "Bearer tok123" {
			t.Errorf("Authorization = %q", gotAuth)
		}
	})
}

func TestSearchTracks(t *testing.T) {
	t.Run("rejects empty query", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
		if _, err := client.SearchTracks(context.Background(), "tok", "", 10); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("err = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("clamps out-of-range limits", func(t *testing.T) {
		var gotLimit string
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotLimit = r.URL.Query().Get("limit")
			fmt.Fprint(w, `{"tracks":{"items":[]}}`)
		})

		tests := []struct {
			limit int
			want  string
		}{
			{0, "10"},
			{-5, "10"},
			{51, "10"},
			{25, "25"},
		}
		for _, tt := range tests {
			if _, err := client.SearchTracks(context.Background(), "tok", "query", tt.limit); err != nil {
				t.Fatalf("SearchTracks(%d) failed: %v", tt.limit, err)
			}
			if gotLimit != tt.want {
				t.Errorf("limit %d sent as %q, want %q", tt.limit, gotLimit, tt.want)
			}
		}
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("request sent despite cancelled context")
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := client.SearchTracks(ctx, "tok", "query", 10); err == nil {
			t.Error("expected an error from the cancelled context")
		}
	})

	t.Run("parses track items", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("q"); got != "never gonna" {
				t.Errorf("q = %q", got)
			}
			fmt.Fprint(w, `{"tracks":{"items":[
				{"id":"t1","name":"Song One","uri":"spotify:track:t1","duration_ms":200000,
				 "artists":[{"id":"a1","name":"Artist"}],"album":{"name":"Album","images":[]}}
			]}}`)
		})

		tracks, err := client.SearchTracks(context.Background(), "tok", "never gonna", 10)
		if err != nil {
			t.Fatalf("SearchTracks failed: %v", err)
		}
		if len(tracks) != 1 {
			t.Fatalf("got %d tracks", len(tracks))
		}
		track := tracks[0]
		if track.ID != "t1" || track.URI != "spotify:track:t1" || track.DurationMS != 200000 {
			t.Errorf("track = %+v", track)
		}
		if len(track.Artists) != 1 || track.Artists[0].Name != "Artist" {
			t.Errorf("artists = %+v", track.Artists)
		}
	})
}

func TestPlaylistTracks(t *testing.T) {
	t.Run("follows pagination until exhausted", func(t *testing.T) {
		var offsets []string
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			offset := r.URL.Query().Get("offset")
			offsets = append(offsets, offset)
			if offset == "0" {
				fmt.Fprint(w, `{"items":[{"track":{"id":"t1","name":"One"}}],"next":"https://api.example.com/page2"}`)
				return
			}
			fmt.Fprint(w, `{"items":[{"track":{"id":"t2","name":"Two"}}],"next":null}`)
		})

		tracks, err := client.PlaylistTracks(context.Background(), "tok", "playlist1")
		if err != nil {
			t.Fatalf("PlaylistTracks failed: %v", err)
		}
		if len(tracks) != 2 || tracks[0].ID != "t1" || tracks[1].ID != "t2" {
			t.Errorf("tracks = %+v", tracks)
		}
		if len(offsets) != 2 || offsets[0] != "0" || offsets[1] != "100" {
			t.Errorf("offsets = %v", offsets)
		}
	})
}

func TestPlay(t *testing.T) {
	t.Run("puts uris to the device", func(t *testing.T) {
		var gotMethod, gotDevice string
		var gotBody map[string][]string

		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotDevice = r.URL.Query().Get("device_id")
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &gotBody)
			w.WriteHeader(http.StatusNoContent)
		})

		err := client.Play(context.Background(), "tok", "spotify:track:abc", "dev1")
		if err != nil {
			t.Fatalf("Play failed: %v", err)
		}
		if gotMethod != http.MethodPut {
			t.Errorf("method = %s, want PUT", gotMethod)
		}
		if gotDevice != "dev1" {
			t.Errorf("device_id = %q", gotDevice)
		}
		if len(gotBody["uris"]) != 1 || gotBody["uris"][0] != "spotify:track:abc" {
			t.Errorf("body = %+v", gotBody)
		}
	})

	t.Run("omits device_id when empty", func(t *testing.T) {
		var gotQuery string
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			w.WriteHeader(http.StatusNoContent)
		})

		if err := client.Play(context.Background(), "tok", "spotify:track:abc", ""); err != nil {
			t.Fatalf("Play failed: %v", err)
		}
		if gotQuery != "" {
			t.Errorf("query = %q, want empty", gotQuery)
		}
	})
}

func TestPause(t *testing.T) {
	var gotPath, gotMethod string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.Pause(context.Background(), "tok"); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/me/player/pause" {
		t.Errorf("%s %s", gotMethod, gotPath)
	}
}

func TestSetVolume(t *testing.T) {
	t.Run("puts the percentage for the device", func(t *testing.T) {
		var gotPath, gotMethod, gotQuery string
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotMethod = r.Method
			gotQuery = r.URL.RawQuery
			w.WriteHeader(http.StatusNoContent)
		})

		if err := client.SetVolume(context.Background(), "tok", 40, "dev1"); err != nil {
			t.Fatalf("SetVolume failed: %v", err)
		}
		if gotMethod != http.MethodPut || gotPath != "/me/player/volume" {
			t.Errorf("%s %s", gotMethod, gotPath)
		}
		if gotQuery != "volume_percent=40&device_id=dev1" {
			t.Errorf("query = %q", gotQuery)
		}
	})

	t.Run("rejects out-of-range percentages", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("request sent for an invalid percentage")
		})

		for _, percent := range []int{-1, 101} {
			if err := client.SetVolume(context.Background(), "tok", percent, ""); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("SetVolume(%d) err = %v, want ErrInvalidArgument", percent, err)
			}
		}
	})
}

func TestDevices(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"devices":[
			{"id":"d1","name":"Web Player","is_active":true},
			{"id":"d2","name":"Phone","is_active":false}
		]}`)
	})

	devices, err := client.Devices(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices", len(devices))
	}
	if devices[0].DeviceID != "d1" || !devices[0].IsReady {
		t.Errorf("devices[0] = %+v", devices[0])
	}
	if devices[1].DeviceID != "d2" || devices[1].IsReady {
		t.Errorf("devices[1] = %+v", devices[1])
	}
}
