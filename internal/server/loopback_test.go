package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mocks "github.com/desertthunder/deworm/internal/testing"
)

func TestLoopbackCallback(t *testing.T) {
	callback := func(h *LoopbackHandler, target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		return w
	}

	t.Run("exchanges the code and consumes the nonce", func(t *testing.T) {
		store := &mocks.MemoryStore{}
		if err := store.SaveState("nonce16"); err != nil {
			t.Fatal(err)
		}
		h := NewLoopbackHandler(&mocks.MockAuthenticator{}, store)

		w := callback(h, "/callback?state=nonce16&code=abc")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}

		result := <-h.Result()
		if result.Error() != nil {
			t.Fatalf("result error: %v", result.Error())
		}
		if result.Tokens == nil || result.Tokens.AccessToken != "access-abc" {
			t.Errorf("tokens = %+v", result.Tokens)
		}
		if _, ok := store.TakeState(); ok {
			t.Error("nonce survived the callback")
		}
	})

	t.Run("rejects a mismatched state", func(t *testing.T) {
		store := &mocks.MemoryStore{}
		store.SaveState("right")
		h := NewLoopbackHandler(&mocks.MockAuthenticator{}, store)

		w := callback(h, "/callback?state=wrong&code=abc")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
		if result := <-h.Result(); result.Error() == nil {
			t.Error("expected a state validation error")
		}
		// consumed even on failure, so the nonce cannot be retried
		if _, ok := store.TakeState(); ok {
			t.Error("nonce survived the failed callback")
		}
	})

	t.Run("rejects when no nonce was saved", func(t *testing.T) {
		h := NewLoopbackHandler(&mocks.MockAuthenticator{}, &mocks.MemoryStore{})

		w := callback(h, "/callback?state=anything&code=abc")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
		if result := <-h.Result(); result.Error() == nil {
			t.Error("expected a state validation error")
		}
	})

	t.Run("surfaces a provider denial", func(t *testing.T) {
		store := &mocks.MemoryStore{}
		store.SaveState("nonce16")
		h := NewLoopbackHandler(&mocks.MockAuthenticator{}, store)

		w := callback(h, "/callback?state=nonce16&error=access_denied&error_description=User+denied")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
		result := <-h.Result()
		if result.Error() == nil || !strings.Contains(result.Error().Error(), "access_denied") {
			t.Errorf("result error = %v", result.Error())
		}
	})

	t.Run("ignores a second callback", func(t *testing.T) {
		store := &mocks.MemoryStore{}
		store.SaveState("nonce16")
		h := NewLoopbackHandler(&mocks.MockAuthenticator{}, store)

		callback(h, "/callback?state=nonce16&code=abc")
		<-h.Result()

		w := callback(h, "/callback?state=nonce16&code=abc")
		if w.Code != http.StatusBadRequest {
			t.Errorf("replayed callback status = %d, want 400", w.Code)
		}
	})
}
