package session

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/deworm/internal/models"
)

// CookieStore implements [Store] over the request/response cookie pair for a
// single HTTP exchange. Reads consult cookies already written during this
// exchange first, so a Put followed by a Get in the same request observes the
// new session (no partial-write state from the caller's point of view).
type CookieStore struct {
	w       http.ResponseWriter
	r       *http.Request
	secure  bool
	pending map[string]*string // name -> value written this exchange; nil means deleted
	now     func() time.Time
}

// NewCookieStore creates a per-request cookie store. Cookies are HTTP-only,
// SameSite=Lax, path=/ and Secure when production is set.
func NewCookieStore(w http.ResponseWriter, r *http.Request, production bool) *CookieStore {
	return &CookieStore{
		w:       w,
		r:       r,
		secure:  production,
		pending: map[string]*string{},
		now:     time.Now,
	}
}

func (c *CookieStore) set(name, value string) {
	http.SetCookie(c.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	v := value
	c.pending[name] = &v
}

func (c *CookieStore) delete(name string) {
	http.SetCookie(c.w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	c.pending[name] = nil
}

func (c *CookieStore) read(name string) (string, bool) {
	if v, ok := c.pending[name]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}

	cookie, err := c.r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// Put stores the session fields as cookies. The refresh token cookie is only
// written when the provider issued one, leaving a previous refresh token in
// place across refreshes.
func (c *CookieStore) Put(sess models.Session) error {
	c.set(AccessTokenCookie, sess.AccessToken)
	c.set(TokenExpiryCookie, strconv.FormatInt(sess.ExpiresAt.UnixMilli(), 10))

	if sess.RefreshToken != "" {
		c.set(RefreshTokenCookie, sess.RefreshToken)
	}

	if sess.Profile != nil {
		blob, err := json.Marshal(sess.Profile)
		if err != nil {
			return err
		}
		c.set(UserCookie, url.QueryEscape(string(blob)))
	}

	return nil
}

// Get returns the stored session; fields read as zero values when absent and
// a malformed profile blob reads as no profile.
func (c *CookieStore) Get() models.Session {
	var sess models.Session

	if v, ok := c.read(AccessTokenCookie); ok {
		sess.AccessToken = v
	}
	if v, ok := c.read(RefreshTokenCookie); ok {
		sess.RefreshToken = v
	}
	if v, ok := c.read(TokenExpiryCookie); ok {
		if millis, err := strconv.ParseInt(v, 10, 64); err == nil {
			sess.ExpiresAt = time.UnixMilli(millis)
		}
	}
	if v, ok := c.read(UserCookie); ok {
		if raw, err := url.QueryUnescape(v); err == nil {
			var profile models.UserProfile
			if err := json.Unmarshal([]byte(raw), &profile); err == nil {
				sess.Profile = &profile
			}
		}
	}

	return sess
}

func (c *CookieStore) IsExpired() bool {
	return Expired(c.Get().ExpiresAt, c.now())
}

func (c *CookieStore) IsAuthenticated() bool {
	return c.Get().AccessToken != "" && !c.IsExpired()
}

// Clear deletes every session-related cookie, the state nonce included.
func (c *CookieStore) Clear() error {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie, TokenExpiryCookie, UserCookie, StateCookie} {
		c.delete(name)
	}
	return nil
}

func (c *CookieStore) SaveState(state string) error {
	c.set(StateCookie, state)
	return nil
}

// TakeState reads the state nonce and deletes it in the same exchange, making
// the nonce single-use.
func (c *CookieStore) TakeState() (string, bool) {
	state, ok := c.read(StateCookie)
	c.delete(StateCookie)
	return state, ok
}

var _ Store = (*CookieStore)(nil)
