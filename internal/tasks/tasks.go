// package tasks implements the earworm replacement operation.
//
// The core abstraction is [Suggester], which picks a replacement track from
// the curated playlist to knock the stuck song out of the user's head.
package tasks

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/desertthunder/deworm/internal/models"
	"github.com/desertthunder/deworm/internal/shared"
	"github.com/desertthunder/deworm/internal/spotify"
)

// cacheTTL bounds how long the replacement playlist is served from memory
// before it is re-fetched.
const cacheTTL = 10 * time.Minute

// Suggester picks replacement tracks for earworms.
type Suggester interface {
	// Suggest returns a random track from the replacement playlist that is
	// not the earworm itself.
	Suggest(ctx context.Context, token, earwormID string) (*models.Track, error)
}

// PlaylistSuggester implements [Suggester] over a fixed replacement playlist.
type PlaylistSuggester struct {
	gateway    spotify.Gateway
	playlistID string

	mu        sync.Mutex
	cached    []models.Track
	fetchedAt time.Time
	randFn    func(n int) int
	now       func() time.Time
}

// NewPlaylistSuggester creates a suggester drawing from the given playlist.
func NewPlaylistSuggester(gateway spotify.Gateway, playlistID string) *PlaylistSuggester {
	return &PlaylistSuggester{
		gateway:    gateway,
		playlistID: playlistID,
		randFn:     rand.Intn,
		now:        time.Now,
	}
}

// Suggest picks a random replacement, excluding the earworm so the cure is
// never the disease. An empty playlist or one containing only the earworm is
// an error.
func (s *PlaylistSuggester) Suggest(ctx context.Context, token, earwormID string) (*models.Track, error) {
	tracks, err := s.tracks(ctx, token)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.ID == earwormID || t.URI == "" {
			continue
		}
		candidates = append(candidates, t)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: replacement playlist has no usable tracks", shared.ErrUpstream)
	}

	pick := candidates[s.randFn(len(candidates))]
	return &pick, nil
}

// tracks returns the replacement playlist, fetching at most once per TTL.
func (s *PlaylistSuggester) tracks(ctx context.Context, token string) ([]models.Track, error) {
	s.mu.Lock()
	if s.cached != nil && s.now().Sub(s.fetchedAt) < cacheTTL {
		cached := s.cached
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	tracks, err := s.gateway.PlaylistTracks(ctx, token, s.playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch replacement playlist: %w", err)
	}

	s.mu.Lock()
	s.cached = tracks
	s.fetchedAt = s.now()
	s.mu.Unlock()

	return tracks, nil
}

var _ Suggester = (*PlaylistSuggester)(nil)
