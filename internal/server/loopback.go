package server

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/desertthunder/deworm/internal/models"
	"github.com/desertthunder/deworm/internal/spotify"
)

// LoopbackResult contains the result of a CLI OAuth authorization flow.
type LoopbackResult struct {
	Tokens *models.TokenResponse
	err    error
}

func (l *LoopbackResult) Error() error {
	return l.err
}

// StateSource yields the pending login nonce, consuming it. [session.Store]
// satisfies it.
type StateSource interface {
	TakeState() (string, bool)
}

// LoopbackHandler handles the OAuth2 callback for CLI logins, where a
// temporary localhost server stands in for the web surface.
// Implements the Handler interface for registration with a Router.
type LoopbackHandler struct {
	auth        spotify.Authenticator
	states      StateSource
	resultChan  chan LoopbackResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewLoopbackHandler creates a callback handler that validates the state
// parameter against the single-use nonce saved in states before the browser
// was opened.
func NewLoopbackHandler(auth spotify.Authenticator, states StateSource) *LoopbackHandler {
	return &LoopbackHandler{
		auth:       auth,
		states:     states,
		resultChan: make(chan LoopbackResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *LoopbackHandler) Routes() []string {
	return []string{"/callback"}
}

// ServeHTTP handles the OAuth callback request.
//
// Validates the state parameter, exchanges the authorization code for tokens,
// and sends the result through the result channel.
func (h *LoopbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only handle callback once
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	// the nonce is consumed before any other check so a failed attempt
	// cannot be replayed
	expected, ok := h.states.TakeState()
	if !ok || r.URL.Query().Get("state") != expected {
		err := fmt.Errorf("invalid state parameter")
		h.Send(LoopbackResult{err: err})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		errParam := r.URL.Query().Get("error")
		errDesc := r.URL.Query().Get("error_description")
		err := fmt.Errorf("authorization failed: %s - %s", errParam, errDesc)
		h.Send(LoopbackResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	tokens, err := h.auth.ExchangeCode(r.Context(), code)
	if err != nil {
		h.Send(LoopbackResult{err: err})
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.Send(LoopbackResult{Tokens: tokens})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `
<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Authorization Successful</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`)
}

// Send sends the OAuth result through the channel (only once).
func (h *LoopbackHandler) Send(result LoopbackResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *LoopbackHandler) Result() <-chan LoopbackResult {
	return h.resultChan
}

var _ Handler = (*LoopbackHandler)(nil)
