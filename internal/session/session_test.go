package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/desertthunder/deworm/internal/models"
)

func TestExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"zero expiry is expired", time.Time{}, true},
		{"past expiry is expired", now.Add(-time.Hour), true},
		{"inside the buffer is expired", now.Add(30 * time.Second), true},
		{"exactly at the buffer boundary is expired", now.Add(Buffer), true},
		{"just past the buffer is valid", now.Add(Buffer + time.Millisecond), false},
		{"far future is valid", now.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expired(tt.expiresAt, now); got != tt.want {
				t.Errorf("Expired(%v, %v) = %v, want %v", tt.expiresAt, now, got, tt.want)
			}
		})
	}
}

func newTestStore(t *testing.T, cookies ...*http.Cookie) (*CookieStore, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return NewCookieStore(w, r, false), w
}

func TestCookieStore_PutGet(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Millisecond)

	t.Run("round trips session within one exchange", func(t *testing.T) {
		store, _ := newTestStore(t)

		sess := models.Session{
			AccessToken:  "access-token",
			RefreshToken: "refresh-token",
			ExpiresAt:    expiresAt,
			Profile:      &models.UserProfile{ID: "user1", DisplayName: "Test User"},
		}
		if err := store.Put(sess); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got := store.Get()
		if got.AccessToken != "access-token" {
			t.Errorf("AccessToken = %q", got.AccessToken)
		}
		if got.RefreshToken != "refresh-token" {
			t.Errorf("RefreshToken = %q", got.RefreshToken)
		}
		if !got.ExpiresAt.Equal(expiresAt) {
			t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expiresAt)
		}
		if got.Profile == nil || got.Profile.DisplayName != "Test User" {
			t.Errorf("Profile = %+v", got.Profile)
		}
	})

	t.Run("writes expiry as epoch millis", func(t *testing.T) {
		store, w := newTestStore(t)

		if err := store.Put(models.Session{AccessToken: "tok", ExpiresAt: expiresAt}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		found := false
		for _, c := range w.Result().Cookies() {
			if c.Name == TokenExpiryCookie {
				found = true
				if c.Value != strconv.FormatInt(expiresAt.UnixMilli(), 10) {
					t.Errorf("expiry cookie = %q", c.Value)
				}
			}
		}
		if !found {
			t.Error("expiry cookie not written")
		}
	})

	t.Run("omits refresh token cookie when provider issued none", func(t *testing.T) {
		store, w := newTestStore(t)

		if err := store.Put(models.Session{AccessToken: "tok", ExpiresAt: expiresAt}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		for _, c := range w.Result().Cookies() {
			if c.Name == RefreshTokenCookie {
				t.Errorf("refresh token cookie written: %q", c.Value)
			}
		}
	})

	t.Run("reads session from request cookies", func(t *testing.T) {
		blob, _ := json.Marshal(models.UserProfile{ID: "u", DisplayName: "From Cookie"})
		store, _ := newTestStore(t,
			&http.Cookie{Name: AccessTokenCookie, Value: "cookie-token"},
			&http.Cookie{Name: TokenExpiryCookie, Value: strconv.FormatInt(expiresAt.UnixMilli(), 10)},
			&http.Cookie{Name: UserCookie, Value: url.QueryEscape(string(blob))},
		)

		got := store.Get()
		if got.AccessToken != "cookie-token" {
			t.Errorf("AccessToken = %q", got.AccessToken)
		}
		if !got.ExpiresAt.Equal(expiresAt) {
			t.Errorf("ExpiresAt = %v", got.ExpiresAt)
		}
		if got.Profile == nil || got.Profile.DisplayName != "From Cookie" {
			t.Errorf("Profile = %+v", got.Profile)
		}
	})

	t.Run("tolerates malformed profile blob", func(t *testing.T) {
		store, _ := newTestStore(t,
			&http.Cookie{Name: AccessTokenCookie, Value: "tok"},
			&http.Cookie{Name: UserCookie, Value: "%%%not-json"},
		)

		got := store.Get()
		if got.AccessToken != "tok" {
			t.Errorf("AccessToken = %q", got.AccessToken)
		}
		if got.Profile != nil {
			t.Errorf("Profile should read as absent, got %+v", got.Profile)
		}
	})

	t.Run("tolerates malformed expiry", func(t *testing.T) {
		store, _ := newTestStore(t,
			&http.Cookie{Name: AccessTokenCookie, Value: "tok"},
			&http.Cookie{Name: TokenExpiryCookie, Value: "not-a-number"},
		)

		got := store.Get()
		if !got.ExpiresAt.IsZero() {
			t.Errorf("ExpiresAt = %v, want zero", got.ExpiresAt)
		}
	})
}

func TestCookieStore_Auth(t *testing.T) {
	t.Run("expired when no expiry stored", func(t *testing.T) {
		store, _ := newTestStore(t, &http.Cookie{Name: AccessTokenCookie, Value: "tok"})
		if !store.IsExpired() {
			t.Error("IsExpired() = false without stored expiry")
		}
		if store.IsAuthenticated() {
			t.Error("IsAuthenticated() = true with expired session")
		}
	})

	t.Run("authenticated with valid expiry", func(t *testing.T) {
		expiresAt := time.Now().Add(time.Hour)
		store, _ := newTestStore(t,
			&http.Cookie{Name: AccessTokenCookie, Value: "tok"},
			&http.Cookie{Name: TokenExpiryCookie, Value: strconv.FormatInt(expiresAt.UnixMilli(), 10)},
		)
		if store.IsExpired() {
			t.Error("IsExpired() = true with future expiry")
		}
		if !store.IsAuthenticated() {
			t.Error("IsAuthenticated() = false with valid session")
		}
	})

	t.Run("boundary inside buffer counts as expired", func(t *testing.T) {
		expiresAt := time.Now().Add(30 * time.Second)
		store, _ := newTestStore(t,
			&http.Cookie{Name: AccessTokenCookie, Value: "tok"},
			&http.Cookie{Name: TokenExpiryCookie, Value: strconv.FormatInt(expiresAt.UnixMilli(), 10)},
		)
		if !store.IsExpired() {
			t.Error("IsExpired() = false inside the safety buffer")
		}
	})
}

func TestCookieStore_TakeState(t *testing.T) {
	t.Run("returns stored nonce once", func(t *testing.T) {
		store, _ := newTestStore(t, &http.Cookie{Name: StateCookie, Value: "nonce123"})

		state, ok := store.TakeState()
		if !ok || state != "nonce123" {
			t.Fatalf("TakeState() = %q, %v", state, ok)
		}

		if state, ok := store.TakeState(); ok {
			t.Errorf("second TakeState() returned %q, want nothing", state)
		}
	})

	t.Run("reports missing nonce", func(t *testing.T) {
		store, _ := newTestStore(t)
		if _, ok := store.TakeState(); ok {
			t.Error("TakeState() = true with no stored nonce")
		}
	})

	t.Run("save then take in one exchange", func(t *testing.T) {
		store, _ := newTestStore(t)
		if err := store.SaveState("fresh"); err != nil {
			t.Fatalf("SaveState failed: %v", err)
		}
		if state, ok := store.TakeState(); !ok || state != "fresh" {
			t.Errorf("TakeState() = %q, %v", state, ok)
		}
	})
}

func TestCookieStore_Clear(t *testing.T) {
	store, w := newTestStore(t,
		&http.Cookie{Name: AccessTokenCookie, Value: "tok"},
		&http.Cookie{Name: RefreshTokenCookie, Value: "refresh"},
		&http.Cookie{Name: StateCookie, Value: "state"},
	)

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	deleted := map[string]bool{}
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			deleted[c.Name] = true
		}
	}
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie, TokenExpiryCookie, UserCookie, StateCookie} {
		if !deleted[name] {
			t.Errorf("cookie %s not deleted", name)
		}
	}

	if got := store.Get(); got.AccessToken != "" {
		t.Errorf("Get() after Clear returned token %q", got.AccessToken)
	}
}
