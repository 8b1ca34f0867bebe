package player

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/desertthunder/deworm/internal/models"
	"github.com/desertthunder/deworm/internal/shared"
	"github.com/desertthunder/deworm/internal/spotify"
)

// RemoteSDK drives the playback session over the Web API instead of a browser
// SDK. The terminal cannot host playback itself, so the "player" is whatever
// device the user already has open; readiness means such a device exists
// upstream. It satisfies [SDK] so the [Controller] state machine, reconnect
// budget, and mute model govern terminal playback the same way they govern
// the web player.
type RemoteSDK struct {
	gateway spotify.Gateway

	mu      sync.Mutex
	onReady func()
	playing bool
	lastURI string
	device  string
}

// NewRemoteSDK creates an adapter over the given gateway.
func NewRemoteSDK(gateway spotify.Gateway) *RemoteSDK {
	return &RemoteSDK{gateway: gateway}
}

// Gateway returns the gateway the controller should issue its REST calls
// through. Play and Pause are observed on the way past so TogglePlay knows
// what to resume.
func (s *RemoteSDK) Gateway() spotify.Gateway {
	return &observedGateway{Gateway: s.gateway, sdk: s}
}

// Load fires onReady immediately. There is no script to inject; the Web API
// is available as soon as there is a token.
func (s *RemoteSDK) Load(ctx context.Context, onReady func()) error {
	s.mu.Lock()
	s.onReady = onReady
	s.mu.Unlock()
	onReady()
	return nil
}

func (s *RemoteSDK) Unload() {
	s.mu.Lock()
	s.onReady = nil
	s.playing = false
	s.lastURI = ""
	s.device = ""
	s.mu.Unlock()
}

func (s *RemoteSDK) NewPlayer(opts PlayerOptions) (Player, error) {
	return &remotePlayer{
		sdk:       s,
		token:     opts.GetOAuthToken,
		listeners: map[EventType]func(map[string]any){},
	}, nil
}

func (s *RemoteSDK) notePlaying(uri, deviceID string) {
	s.mu.Lock()
	s.playing = true
	s.lastURI = uri
	if deviceID != "" {
		s.device = deviceID
	}
	s.mu.Unlock()
}

func (s *RemoteSDK) notePaused() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
}

func (s *RemoteSDK) noteDevice(deviceID string) {
	s.mu.Lock()
	s.device = deviceID
	s.mu.Unlock()
}

func (s *RemoteSDK) isPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *RemoteSDK) lastPlayed() (uri, deviceID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastURI, s.device, s.lastURI != ""
}

func (s *RemoteSDK) deviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// observedGateway passes calls through while recording playback transitions
// on the adapter.
type observedGateway struct {
	spotify.Gateway
	sdk *RemoteSDK
}

func (g *observedGateway) Play(ctx context.Context, token, uri, deviceID string) error {
	if err := g.Gateway.Play(ctx, token, uri, deviceID); err != nil {
		return err
	}
	g.sdk.notePlaying(uri, deviceID)
	return nil
}

func (g *observedGateway) Pause(ctx context.Context, token string) error {
	if err := g.Gateway.Pause(ctx, token); err != nil {
		return err
	}
	g.sdk.notePaused()
	return nil
}

// remotePlayer is the [Player] half of the adapter: connecting means finding
// an open device upstream, volume goes through the volume endpoint, and
// toggling replays or pauses the last track.
type remotePlayer struct {
	sdk   *RemoteSDK
	token func() (string, error)

	mu        sync.Mutex
	listeners map[EventType]func(map[string]any)
}

// Connect looks the user's devices up and reports the chosen one through the
// ready event, preferring the active device over idle ones.
func (p *remotePlayer) Connect(ctx context.Context) (bool, error) {
	token, err := p.token()
	if err != nil {
		return false, err
	}

	devices, err := p.sdk.gateway.Devices(ctx, token)
	if err != nil {
		return false, err
	}

	device := pickDevice(devices)
	if device == nil {
		return false, fmt.Errorf("%w: no playback device is open; start Spotify somewhere first", shared.ErrDeviceUnavailable)
	}

	p.sdk.noteDevice(device.DeviceID)
	p.emit(EventReady, map[string]any{"device_id": device.DeviceID})
	return true, nil
}

func pickDevice(devices []models.PlaybackDevice) *models.PlaybackDevice {
	for i := range devices {
		if devices[i].IsReady {
			return &devices[i]
		}
	}
	if len(devices) > 0 {
		return &devices[0]
	}
	return nil
}

func (p *remotePlayer) Disconnect() {
	p.sdk.notePaused()
}

func (p *remotePlayer) AddListener(kind EventType, fn func(map[string]any)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners[kind] = fn
}

func (p *remotePlayer) RemoveListener(kind EventType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.listeners, kind)
}

func (p *remotePlayer) emit(kind EventType, payload map[string]any) {
	p.mu.Lock()
	fn := p.listeners[kind]
	p.mu.Unlock()
	if fn != nil {
		fn(payload)
	}
}

// TogglePlay pauses when playing, otherwise resumes the last played track.
func (p *remotePlayer) TogglePlay(ctx context.Context) error {
	token, err := p.token()
	if err != nil {
		return err
	}

	gw := p.sdk.Gateway()
	if p.sdk.isPlaying() {
		return gw.Pause(ctx, token)
	}

	uri, deviceID, ok := p.sdk.lastPlayed()
	if !ok {
		return fmt.Errorf("%w: nothing to resume", shared.ErrPlaybackFailed)
	}
	return gw.Play(ctx, token, uri, deviceID)
}

func (p *remotePlayer) SetVolume(ctx context.Context, volume float64) error {
	token, err := p.token()
	if err != nil {
		return err
	}
	percent := int(math.Round(volume * 100))
	return p.sdk.gateway.SetVolume(ctx, token, percent, p.sdk.deviceID())
}

// Activate is a no-op; there is no browser element to activate.
func (p *remotePlayer) Activate(ctx context.Context) error {
	return nil
}

var (
	_ SDK    = (*RemoteSDK)(nil)
	_ Player = (*remotePlayer)(nil)
)
