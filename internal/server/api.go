package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/deworm/internal/models"
	"github.com/desertthunder/deworm/internal/session"
	"github.com/desertthunder/deworm/internal/shared"
	"github.com/desertthunder/deworm/internal/spotify"
	"github.com/desertthunder/deworm/internal/tasks"
)

// APIHandler proxies the browser's catalog and player calls to the upstream
// API, attaching the session's token server-side so it never reaches page
// scripts.
type APIHandler struct {
	auth       spotify.Authenticator
	gateway    spotify.Gateway
	suggester  tasks.Suggester
	stores     StoreFactory
	playlistID string
	logger     *log.Logger
	now        func() time.Time
}

// NewAPIHandler creates the proxy handler. playlistID names the curated
// replacement playlist.
func NewAPIHandler(auth spotify.Authenticator, gateway spotify.Gateway, suggester tasks.Suggester, stores StoreFactory, playlistID string, logger *log.Logger) *APIHandler {
	return &APIHandler{
		auth:       auth,
		gateway:    gateway,
		suggester:  suggester,
		stores:     stores,
		playlistID: playlistID,
		logger:     logger,
		now:        time.Now,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *APIHandler) Routes() []string {
	return []string{
		"/api/spotify/play",
		"/api/spotify/search",
		"/api/spotify/playlist",
		"/api/spotify/track/",
		"/api/spotify/token",
	}
}

func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/spotify/play":
		h.play(w, r)
	case r.URL.Path == "/api/spotify/search":
		h.search(w, r)
	case r.URL.Path == "/api/spotify/playlist":
		h.playlist(w, r)
	case r.URL.Path == "/api/spotify/token":
		h.token(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/spotify/track/"):
		h.track(w, r)
	default:
		writeError(w, http.StatusNotFound, "not found", false)
	}
}

// call runs fn with a valid access token, refreshing silently at most once:
// proactively when the stored token is already expired, or reactively when
// the upstream rejects it. A failed or impossible refresh asks the client to
// log in again.
func (h *APIHandler) call(w http.ResponseWriter, r *http.Request, fn func(token string) error) {
	store := h.stores(w, r)
	sess := store.Get()

	if sess.AccessToken == "" && sess.RefreshToken == "" {
		writeError(w, http.StatusUnauthorized, "not authenticated", true)
		return
	}

	token := sess.AccessToken
	refreshed := false

	if token == "" || store.IsExpired() {
		next, err := h.refresh(r, store, sess)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "session expired", true)
			return
		}
		token = next
		refreshed = true
	}

	err := fn(token)
	if errors.Is(err, shared.ErrUnauthorized) && !refreshed && sess.RefreshToken != "" {
		next, refreshErr := h.refresh(r, store, sess)
		if refreshErr != nil {
			writeError(w, http.StatusUnauthorized, "session expired", true)
			return
		}
		err = fn(next)
	}

	if err != nil {
		h.writeUpstreamError(w, err)
	}
}

// refresh trades the session's refresh token for a new access token and
// persists the result.
func (h *APIHandler) refresh(r *http.Request, store session.Store, sess models.Session) (string, error) {
	if sess.RefreshToken == "" {
		return "", shared.ErrNoRefreshToken
	}

	tokens, err := h.auth.RefreshToken(r.Context(), sess.RefreshToken)
	if err != nil {
		h.logger.Warn("token refresh failed", "err", err)
		return "", err
	}

	next := models.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    h.now().Add(time.Duration(tokens.ExpiresIn) * time.Second),
	}
	if err := store.Put(next); err != nil {
		return "", err
	}

	return tokens.AccessToken, nil
}

func (h *APIHandler) writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "session expired", true)
	case errors.Is(err, shared.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error(), false)
	case errors.Is(err, shared.ErrUpstream):
		writeError(w, http.StatusBadGateway, err.Error(), false)
	default:
		h.logger.Error("proxy call failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error", false)
	}
}

// playRequest is the body of POST /api/spotify/play.
type playRequest struct {
	URI      string `json:"uri"`
	DeviceID string `json:"device_id"`
}

// play starts playback (POST) or pauses it (DELETE).
func (h *APIHandler) play(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var body playRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URI == "" {
			writeError(w, http.StatusBadRequest, "missing track uri", false)
			return
		}
		h.call(w, r, func(token string) error {
			if err := h.gateway.Play(r.Context(), token, body.URI, body.DeviceID); err != nil {
				return err
			}
			writeJSON(w, http.StatusOK, map[string]bool{"playing": true})
			return nil
		})

	case http.MethodDelete:
		h.call(w, r, func(token string) error {
			if err := h.gateway.Pause(r.Context(), token); err != nil {
				return err
			}
			writeJSON(w, http.StatusOK, map[string]bool{"playing": false})
			return nil
		})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", false)
	}
}

// search proxies track search. q is required; limit is optional.
func (h *APIHandler) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", false)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing search query", false)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	h.call(w, r, func(token string) error {
		results, err := h.gateway.SearchTracks(r.Context(), token, query, limit)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string][]models.Track{"tracks": results})
		return nil
	})
}

// playlist serves the replacement playlist, or with suggest_for set, a single
// replacement pick excluding that track.
func (h *APIHandler) playlist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", false)
		return
	}

	if earworm := r.URL.Query().Get("suggest_for"); earworm != "" {
		h.call(w, r, func(token string) error {
			pick, err := h.suggester.Suggest(r.Context(), token, earworm)
			if err != nil {
				return err
			}
			writeJSON(w, http.StatusOK, map[string]*models.Track{"track": pick})
			return nil
		})
		return
	}

	h.call(w, r, func(token string) error {
		items, err := h.gateway.PlaylistTracks(r.Context(), token, h.playlistID)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string][]models.Track{"tracks": items})
		return nil
	})
}

// track serves a single track by id.
func (h *APIHandler) track(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", false)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/spotify/track/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "missing track id", false)
		return
	}

	h.call(w, r, func(token string) error {
		track, err := h.gateway.Track(r.Context(), token, id)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, track)
		return nil
	})
}

// token hands the playback SDK a currently valid access token. The SDK runs
// in the page and needs the raw value; everything else stays proxied.
func (h *APIHandler) token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", false)
		return
	}

	h.call(w, r, func(token string) error {
		writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
		return nil
	})
}

// writeJSON writes v as a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the error envelope. reauth tells the client the fix is a
// fresh login rather than a retry.
func writeError(w http.ResponseWriter, status int, message string, reauth bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": message, "reauth": reauth})
}

var _ Handler = (*APIHandler)(nil)
