package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/deworm/internal/models"
	"github.com/desertthunder/deworm/internal/session"
	"github.com/desertthunder/deworm/internal/shared"
)

// localSessionID keys the single session row owned by this machine. The CLI
// holds exactly one login at a time.
const localSessionID = "local"

// SessionRepository implements [session.Store] over SQLite for commands
// running outside a browser.
type SessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Put upserts the local session row. A refresh token is only overwritten when
// the provider issued a new one.
func (r *SessionRepository) Put(sess models.Session) error {
	var profile []byte
	if sess.Profile != nil {
		blob, err := json.Marshal(sess.Profile)
		if err != nil {
			return fmt.Errorf("failed to encode profile: %w", err)
		}
		profile = blob
	}

	now := r.now()

	query := `
		INSERT INTO sessions (id, access_token, refresh_token, expires_at, user_profile, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token != '' THEN excluded.refresh_token ELSE sessions.refresh_token END,
			expires_at = excluded.expires_at,
			user_profile = CASE WHEN excluded.user_profile IS NOT NULL THEN excluded.user_profile ELSE sessions.user_profile END,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query, localSessionID, sess.AccessToken, sess.RefreshToken,
		sess.ExpiresAt.UnixMilli(), profile, now, now)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}

// Get returns the stored session. A missing row or malformed profile blob
// reads as zero values, matching the cookie store's tolerance.
func (r *SessionRepository) Get() models.Session {
	query := `
		SELECT access_token, refresh_token, expires_at, user_profile
		FROM sessions
		WHERE id = ?
	`

	var (
		accessToken  string
		refreshToken string
		expiresAt    int64
		profile      []byte
	)

	err := r.db.QueryRow(query, localSessionID).Scan(&accessToken, &refreshToken, &expiresAt, &profile)
	if err != nil {
		return models.Session{}
	}

	sess := models.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if expiresAt != 0 {
		sess.ExpiresAt = time.UnixMilli(expiresAt)
	}
	if len(profile) > 0 {
		var p models.UserProfile
		if err := json.Unmarshal(profile, &p); err == nil {
			sess.Profile = &p
		}
	}

	return sess
}

func (r *SessionRepository) IsExpired() bool {
	return session.Expired(r.Get().ExpiresAt, r.now())
}

func (r *SessionRepository) IsAuthenticated() bool {
	return r.Get().AccessToken != "" && !r.IsExpired()
}

// Clear removes the session row and any pending state nonces. Idempotent.
func (r *SessionRepository) Clear() error {
	if _, err := r.db.Exec("DELETE FROM sessions WHERE id = ?", localSessionID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	if _, err := r.db.Exec("DELETE FROM auth_states"); err != nil {
		return fmt.Errorf("failed to clear auth states: %w", err)
	}
	return nil
}

// SaveState stores the state nonce for the in-flight authorization attempt.
func (r *SessionRepository) SaveState(state string) error {
	if state == "" {
		return fmt.Errorf("%w: empty state", shared.ErrInvalidArgument)
	}

	_, err := r.db.Exec("INSERT OR REPLACE INTO auth_states (state, created_at) VALUES (?, ?)", state, r.now())
	if err != nil {
		return fmt.Errorf("failed to store auth state: %w", err)
	}
	return nil
}

// TakeState returns the most recent nonce and deletes it, so a nonce verifies
// at most once.
func (r *SessionRepository) TakeState() (string, bool) {
	var state string
	err := r.db.QueryRow("SELECT state FROM auth_states ORDER BY created_at DESC LIMIT 1").Scan(&state)
	if err != nil {
		return "", false
	}

	if _, err := r.db.Exec("DELETE FROM auth_states WHERE state = ?", state); err != nil {
		return "", false
	}
	return state, true
}

var _ session.Store = (*SessionRepository)(nil)
