package server

import (
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/deworm/internal/models"
	"github.com/desertthunder/deworm/internal/shared"
	"github.com/desertthunder/deworm/internal/spotify"
)

// Error kinds carried on the /auth/error redirect. These are part of the
// page's query contract.
const (
	ErrorKindDenied        = "spotify_denied"
	ErrorKindStateMismatch = "state_mismatch"
	ErrorKindNoCode        = "no_code"
	ErrorKindAuthFailed    = "auth_failed"
)

// stateLength is the size of the CSRF nonce attached to authorize redirects.
const stateLength = 16

// AuthHandler implements the authorization code flow for the browser surface:
// login redirect, provider callback, and logout.
type AuthHandler struct {
	auth    spotify.Authenticator
	gateway spotify.Gateway
	stores  StoreFactory
	logger  *log.Logger
	now     func() time.Time
}

// NewAuthHandler creates the auth flow handler.
func NewAuthHandler(auth spotify.Authenticator, gateway spotify.Gateway, stores StoreFactory, logger *log.Logger) *AuthHandler {
	return &AuthHandler{
		auth:    auth,
		gateway: gateway,
		stores:  stores,
		logger:  logger,
		now:     time.Now,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *AuthHandler) Routes() []string {
	return []string{"/login", "/callback", "/logout"}
}

func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/login":
		h.login(w, r)
	case "/callback":
		h.callback(w, r)
	case "/logout":
		h.logout(w, r)
	default:
		http.NotFound(w, r)
	}
}

// login generates a fresh state nonce, stores it, and redirects to the
// provider's consent screen. Every login starts a new attempt; any previous
// nonce is overwritten.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	store := h.stores(w, r)

	state := shared.GenerateState(stateLength)

	if err := store.SaveState(state); err != nil {
		h.logger.Error("could not persist auth state", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.auth.AuthCodeURL(state), http.StatusFound)
}

// callback finishes the flow. Failures never leave partial sessions behind;
// each distinct failure redirects to the error page with its own kind.
func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	store := h.stores(w, r)
	query := r.URL.Query()

	// the nonce is consumed no matter how the callback went
	storedState, hadState := store.TakeState()

	if query.Get("error") != "" {
		h.logger.Info("user denied authorization", "error", query.Get("error"))
		h.redirectError(w, r, ErrorKindDenied)
		return
	}

	if !hadState || query.Get("state") == "" || query.Get("state") != storedState {
		h.logger.Warn("state mismatch on callback")
		h.redirectError(w, r, ErrorKindStateMismatch)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.redirectError(w, r, ErrorKindNoCode)
		return
	}

	tokens, err := h.auth.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Error("code exchange failed", "err", err)
		h.redirectError(w, r, ErrorKindAuthFailed)
		return
	}

	sess := models.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    h.now().Add(time.Duration(tokens.ExpiresIn) * time.Second),
	}

	// profile fetch failures degrade the display name, not the login
	if profile, err := h.gateway.Me(r.Context(), tokens.AccessToken); err == nil {
		sess.Profile = profile
	} else {
		h.logger.Warn("profile fetch failed", "err", err)
	}

	if err := store.Put(sess); err != nil {
		h.logger.Error("could not persist session", "err", err)
		h.redirectError(w, r, ErrorKindAuthFailed)
		return
	}

	http.Redirect(w, r, "/search", http.StatusFound)
}

// logout clears the session and lands on the index page.
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	store := h.stores(w, r)
	if err := store.Clear(); err != nil {
		h.logger.Error("could not clear session", "err", err)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, kind string) {
	http.Redirect(w, r, "/auth/error?error="+url.QueryEscape(kind), http.StatusFound)
}

var _ Handler = (*AuthHandler)(nil)
