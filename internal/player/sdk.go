package player

import (
	"context"
	"sync"

	"github.com/desertthunder/deworm/internal/shared"
)

// PlayerOptions mirrors the SDK's player constructor options.
type PlayerOptions struct {
	Name string

	// GetOAuthToken must return the latest in-scope token on every call,
	// never a snapshot; tokens may be refreshed between calls.
	GetOAuthToken func() (string, error)

	Volume float64
}

// SDK abstracts the Web Playback SDK bridge: script injection, the single
// global ready callback, and player construction.
type SDK interface {
	// Load injects the SDK script and arranges for onReady to fire exactly
	// once when the SDK is available. Loading when the script is already
	// present skips re-injection.
	Load(ctx context.Context, onReady func()) error

	// Unload deregisters the ready callback so it doesn't leak across
	// controller instances.
	Unload()

	// NewPlayer constructs a player once the SDK is ready.
	NewPlayer(opts PlayerOptions) (Player, error)
}

// Player abstracts the SDK player object.
type Player interface {
	Connect(ctx context.Context) (bool, error)
	Disconnect()

	// AddListener registers fn for raw payloads of the named event. The
	// controller parses payloads at the boundary via [ParseEvent].
	AddListener(kind EventType, fn func(payload map[string]any))
	RemoveListener(kind EventType)

	TogglePlay(ctx context.Context) error
	SetVolume(ctx context.Context, volume float64) error

	// Activate is the element-activation hook required for mobile autoplay
	// permission.
	Activate(ctx context.Context) error
}

// readyGate is the process-wide registration point for the SDK's single
// global ready callback. One controller owns the callback at a time; a second
// registration fails rather than silently stacking listeners.
type readyGate struct {
	mu         sync.Mutex
	registered bool
	injected   bool
}

var gate readyGate

// register claims the ready callback slot. The second return reports whether
// the script still needs injecting.
func (g *readyGate) register() (inject bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.registered {
		return false, shared.ErrSDKInit
	}
	g.registered = true

	inject = !g.injected
	g.injected = true
	return inject, nil
}

func (g *readyGate) deregister() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registered = false
}

// reset clears the injected flag; used when a full re-initialization is
// required after the device disappeared from the provider's list.
func (g *readyGate) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registered = false
	g.injected = false
}
