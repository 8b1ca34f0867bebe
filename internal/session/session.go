// package session owns the token store: how Session and the OAuth state nonce
// are persisted and read back.
//
// Cookies are the wire format at the HTTP boundary; the [Store] interface keeps
// the storage mechanism swappable (see the sqlite implementation in
// internal/repositories used by the CLI and TUI).
package session

import (
	"time"

	"github.com/desertthunder/deworm/internal/models"
)

// Buffer is the safety margin applied when deciding expiry, guarding against
// token death mid-flight on outbound calls.
const Buffer = 60 * time.Second

// Cookie names. These are part of the wire contract with the browser.
const (
	StateCookie        = "spotify_auth_state"
	AccessTokenCookie  = "spotify_access_token"
	RefreshTokenCookie = "spotify_refresh_token"
	TokenExpiryCookie  = "spotify_token_expiry"
	UserCookie         = "spotify_user"
)

// MaxAge is the lifetime of session cookies.
const MaxAge = 30 * 24 * time.Hour

// Store persists and reads the session and the single-use OAuth state nonce.
type Store interface {
	// Put stores the session, overwriting any prior one. ExpiresAt must
	// already be computed (now + expires_in).
	Put(sess models.Session) error

	// Get returns the stored session. Absent fields are zero values; Get
	// never fails. A profile blob that won't parse reads as absent.
	Get() models.Session

	// IsExpired reports whether no expiry is stored or now+Buffer has
	// passed it. The boundary counts as expired.
	IsExpired() bool

	// IsAuthenticated reports an access token is present and not expired.
	IsAuthenticated() bool

	// Clear removes every session field. Idempotent.
	Clear() error

	// SaveState stores the OAuth state nonce for the in-flight
	// authorization attempt.
	SaveState(state string) error

	// TakeState reads and deletes the stored nonce in one step. The second
	// return is false when no nonce was stored.
	TakeState() (string, bool)
}

// Expired reports whether expiresAt has passed from now's point of view,
// applying [Buffer]. A zero expiresAt is always expired.
func Expired(expiresAt, now time.Time) bool {
	if expiresAt.IsZero() {
		return true
	}
	return !now.Add(Buffer).Before(expiresAt)
}
