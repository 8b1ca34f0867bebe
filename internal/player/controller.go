// package player owns the playback session: SDK lifecycle, device readiness,
// reconnection, and play/pause/volume control.
package player

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/deworm/internal/models"
	"github.com/desertthunder/deworm/internal/shared"
	"github.com/desertthunder/deworm/internal/spotify"
)

// State is the controller's lifecycle state.
type State int

const (
	Uninitialized State = iota
	SDKLoading
	SDKReady
	DeviceConnecting
	DeviceReady
	DeviceLost
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case SDKLoading:
		return "sdk_loading"
	case SDKReady:
		return "sdk_ready"
	case DeviceConnecting:
		return "device_connecting"
	case DeviceReady:
		return "device_ready"
	case DeviceLost:
		return "device_lost"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	maxReconnects    = 3
	reconnectBackoff = 2 * time.Second
	playSettleDelay  = time.Second
)

var trackURIPattern = regexp.MustCompile(`^spotify:track:[A-Za-z0-9]+$`)

// DeviceCache persists the last known playback device so it can be reconciled
// against the provider's device list across restarts.
type DeviceCache interface {
	Save(device models.PlaybackDevice) error
	Clear(deviceID string) error
	Last() (*models.PlaybackDevice, bool)
}

// Options configures a [Controller].
type Options struct {
	SDK     SDK
	Gateway spotify.Gateway

	// Token returns the latest access token; it is consulted on every SDK
	// token callback and outbound REST call rather than captured once.
	Token func() string

	InitialVolume float64
	Logger        *log.Logger
	Devices       DeviceCache // optional

	// OnReLogin fires when the SDK reports an auth error whose message
	// indicates an invalid or expired token.
	OnReLogin func()

	// OnTrackEnded fires when a play request fails, so the caller can try
	// another song instead of getting stuck.
	OnTrackEnded func()

	// OnStateChange receives the paused flag from player state events.
	OnStateChange func(playing bool)

	// Backoff and Settle override the reconnect spacing and first-play
	// settle delay; zero means the defaults (2s, 1s). Tests shrink these.
	Backoff time.Duration
	Settle  time.Duration
}

// Controller drives the playback session state machine. Only one controller
// owns the SDK's global ready callback at a time; creating a second without
// closing the first fails at Connect.
type Controller struct {
	mu sync.Mutex

	sdk     SDK
	gateway spotify.Gateway
	token   func() string
	logger  *log.Logger
	devices DeviceCache

	onReLogin     func()
	onTrackEnded  func()
	onStateChange func(playing bool)

	backoff time.Duration
	settle  time.Duration
	sleep   func(time.Duration)

	state      State
	player     Player
	deviceID   string
	readyAt    time.Time
	reconnects int
	failure    string

	playing bool
	current *models.Track
	volume  float64
	muted   bool
}

// NewController creates a playback controller in the Uninitialized state.
func NewController(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Backoff == 0 {
		opts.Backoff = reconnectBackoff
	}
	if opts.Settle == 0 {
		opts.Settle = playSettleDelay
	}

	volume := opts.InitialVolume
	if volume <= 0 || volume > 1 {
		volume = 0.5
	}

	return &Controller{
		sdk:           opts.SDK,
		gateway:       opts.Gateway,
		token:         opts.Token,
		logger:        opts.Logger,
		devices:       opts.Devices,
		onReLogin:     opts.OnReLogin,
		onTrackEnded:  opts.OnTrackEnded,
		onStateChange: opts.OnStateChange,
		backoff:       opts.Backoff,
		settle:        opts.Settle,
		sleep:         time.Sleep,
		volume:        volume,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DeviceID returns the provider-assigned device id, empty until ready.
func (c *Controller) DeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

// Failure returns the message attached to the Failed state.
func (c *Controller) Failure() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// IsPlaying reports whether the last observed player state was not paused.
func (c *Controller) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// CurrentTrack returns the track from the last player state event.
func (c *Controller) CurrentTrack() *models.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Connect loads the SDK, constructs the player and connects it. A previously
// cached device id is reconciled against the provider's device list before it
// is trusted.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.player != nil {
		// competing instantiation: tear down the previous owner first
		c.closeLocked()
	}
	c.state = SDKLoading
	c.mu.Unlock()

	if c.devices != nil {
		c.reconcileCached(ctx)
	}

	inject, err := gate.register()
	if err != nil {
		c.fail("playback SDK already in use by another controller")
		return fmt.Errorf("%w: ready callback already registered", shared.ErrSDKInit)
	}
	if !inject {
		c.logger.Debug("SDK script already injected, skipping")
	}

	if err := c.sdk.Load(ctx, func() { c.handleSDKReady(ctx) }); err != nil {
		gate.deregister()
		c.fail(err.Error())
		return fmt.Errorf("%w: %v", shared.ErrSDKInit, err)
	}

	// an SDK that fires ready inside Load has already run the whole
	// connect sequence; report its failure here instead of silently
	if c.State() == Failed {
		return fmt.Errorf("%w: %s", shared.ErrSDKInit, c.Failure())
	}

	return nil
}

// reconcileCached verifies a device id cached from a previous run still
// appears in the provider's device list, clearing it otherwise.
func (c *Controller) reconcileCached(ctx context.Context) {
	cached, ok := c.devices.Last()
	if !ok {
		return
	}

	devices, err := c.gateway.Devices(ctx, c.token())
	if err != nil {
		c.logger.Warn("could not verify cached device", "err", err)
		return
	}

	for _, d := range devices {
		if d.DeviceID == cached.DeviceID {
			return
		}
	}

	c.logger.Info("cached device no longer registered, clearing", "device_id", cached.DeviceID)
	if err := c.devices.Clear(cached.DeviceID); err != nil {
		c.logger.Warn("failed to clear cached device", "err", err)
	}
}

// handleSDKReady runs once when the SDK's global ready callback fires.
func (c *Controller) handleSDKReady(ctx context.Context) {
	c.mu.Lock()
	c.state = SDKReady
	volume := c.volume
	c.mu.Unlock()

	player, err := c.sdk.NewPlayer(PlayerOptions{
		Name: "DeWorm Web Player",
		GetOAuthToken: func() (string, error) {
			return c.token(), nil
		},
		Volume: volume,
	})
	if err != nil {
		c.abort(err.Error())
		return
	}

	for _, kind := range []EventType{
		EventReady, EventNotReady, EventStateChanged,
		EventInitializationError, EventAuthenticationError,
		EventAccountError, EventPlaybackError,
	} {
		kind := kind
		player.AddListener(kind, func(payload map[string]any) {
			c.dispatch(ctx, kind, payload)
		})
	}

	c.mu.Lock()
	c.player = player
	c.state = DeviceConnecting
	c.mu.Unlock()

	connected, err := player.Connect(ctx)
	if err != nil || !connected {
		msg := "SDK connect returned false"
		if err != nil {
			msg = err.Error()
		}
		c.abort(msg)
	}
}

// dispatch parses a raw event payload and routes the typed event. Malformed
// payloads are logged and dropped.
func (c *Controller) dispatch(ctx context.Context, kind EventType, payload map[string]any) {
	event, err := ParseEvent(kind, payload)
	if err != nil {
		c.logger.Warn("dropping malformed SDK event", "event", kind, "err", err)
		return
	}

	switch ev := event.(type) {
	case ReadyEvent:
		c.handleReady(ctx, ev)
	case NotReadyEvent:
		c.handleNotReady(ctx, ev)
	case StateChangedEvent:
		c.handleStateChanged(ev)
	case ErrorEvent:
		c.handleError(ev)
	}
}

func (c *Controller) handleReady(ctx context.Context, ev ReadyEvent) {
	c.mu.Lock()
	c.deviceID = ev.DeviceID
	c.state = DeviceReady
	c.readyAt = time.Now()
	c.reconnects = 0
	player := c.player
	c.mu.Unlock()

	c.logger.Info("playback device ready", "device_id", ev.DeviceID)

	if player != nil {
		if err := player.Activate(ctx); err != nil {
			c.logger.Warn("element activation failed", "err", err)
		}
	}

	if c.devices != nil {
		device := models.PlaybackDevice{DeviceID: ev.DeviceID, Name: "DeWorm Web Player", IsReady: true, LastSeen: time.Now()}
		if err := c.devices.Save(device); err != nil {
			c.logger.Warn("failed to cache device", "err", err)
		}
	}
}

// handleNotReady marks the device lost and attempts a bounded reconnect:
// verify the device still exists upstream, then re-connect the existing
// player. Attempts are spaced by the backoff, capped at maxReconnects.
func (c *Controller) handleNotReady(ctx context.Context, ev NotReadyEvent) {
	c.mu.Lock()
	c.state = DeviceLost
	if c.reconnects >= maxReconnects {
		c.state = Failed
		c.failure = "playback device could not be recovered; refresh the page to start over"
		c.mu.Unlock()
		c.logger.Error("reconnect attempts exhausted", "device_id", ev.DeviceID)
		return
	}
	c.reconnects++
	attempt := c.reconnects
	c.state = Reconnecting
	player := c.player
	deviceID := c.deviceID
	c.mu.Unlock()

	c.logger.Info("device offline, reconnecting", "attempt", attempt, "device_id", ev.DeviceID)
	c.sleep(c.backoff)

	devices, err := c.gateway.Devices(ctx, c.token())
	if err != nil {
		c.logger.Warn("device list check failed", "err", err)
	}

	found := false
	for _, d := range devices {
		if d.DeviceID == deviceID {
			found = true
			break
		}
	}

	if !found {
		// device vanished upstream: cached state is worthless, a full
		// re-initialization is required
		c.mu.Lock()
		c.closeLocked()
		c.mu.Unlock()
		gate.reset()
		if c.devices != nil && deviceID != "" {
			c.devices.Clear(deviceID)
		}
		c.logger.Info("device missing from provider list, full re-init required")
		return
	}

	c.mu.Lock()
	c.state = DeviceConnecting
	c.mu.Unlock()

	if player != nil {
		if connected, err := player.Connect(ctx); err != nil || !connected {
			msg := "reconnect returned false"
			if err != nil {
				msg = err.Error()
			}
			c.fail(msg)
		}
	}
}

func (c *Controller) handleStateChanged(ev StateChangedEvent) {
	c.mu.Lock()
	c.playing = !ev.Paused
	if ev.Track != nil {
		c.current = ev.Track
	}
	notify := c.onStateChange
	playing := c.playing
	c.mu.Unlock()

	if notify != nil {
		notify(playing)
	}
}

func (c *Controller) handleError(ev ErrorEvent) {
	c.logger.Error("SDK error", "event", ev.Kind, "message", ev.Message)
	c.fail(fmt.Sprintf("%s: %s", ev.Kind, ev.Message))

	// The SDK gives no structured error code, so token problems are
	// detected by message text.
	if ev.Kind == EventAuthenticationError && c.onReLogin != nil {
		lower := strings.ToLower(ev.Message)
		if strings.Contains(lower, "token") || strings.Contains(lower, "expired") || strings.Contains(lower, "invalid") {
			c.onReLogin()
		}
	}
}

func (c *Controller) fail(message string) {
	c.mu.Lock()
	c.state = Failed
	c.failure = message
	c.mu.Unlock()
}

// abort tears the session down and marks it failed. Unlike fail, it releases
// the ready-callback slot so a fresh controller can retry without a Close.
func (c *Controller) abort(message string) {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
	c.fail(message)
}

// Play starts playback of a track URI on the current device. The device is
// re-verified against the provider immediately before the REST call rather
// than trusting possibly stale state, and the first play after device-ready
// waits out a settle delay the SDK needs.
func (c *Controller) Play(ctx context.Context, uri string) error {
	c.mu.Lock()
	if c.state != DeviceReady {
		c.mu.Unlock()
		return fmt.Errorf("%w: controller is %s", shared.ErrDeviceUnavailable, c.state)
	}
	deviceID := c.deviceID
	readyAt := c.readyAt
	c.mu.Unlock()

	if !trackURIPattern.MatchString(uri) {
		return fmt.Errorf("%w: malformed track URI %q", shared.ErrInvalidArgument, uri)
	}

	if wait := c.settle - time.Since(readyAt); wait > 0 {
		c.sleep(wait)
	}

	devices, err := c.gateway.Devices(ctx, c.token())
	if err == nil {
		found := false
		for _, d := range devices {
			if d.DeviceID == deviceID {
				found = true
				break
			}
		}
		if !found {
			c.mu.Lock()
			c.state = DeviceLost
			c.mu.Unlock()
			return fmt.Errorf("%w: device %s no longer registered", shared.ErrDeviceUnavailable, deviceID)
		}
	}

	if err := c.gateway.Play(ctx, c.token(), uri, deviceID); err != nil {
		if c.onTrackEnded != nil {
			// let the UI move on to another song instead of stalling
			c.onTrackEnded()
		}
		return fmt.Errorf("%w: %v", shared.ErrPlaybackFailed, err)
	}

	c.mu.Lock()
	c.playing = true
	c.mu.Unlock()
	return nil
}

// TogglePlayPause flips playback through the SDK player.
func (c *Controller) TogglePlayPause(ctx context.Context) error {
	c.mu.Lock()
	player := c.player
	c.mu.Unlock()

	if player == nil {
		return fmt.Errorf("%w: no player", shared.ErrDeviceUnavailable)
	}

	if err := player.TogglePlay(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPlaybackFailed, err)
	}

	c.mu.Lock()
	c.playing = !c.playing
	c.mu.Unlock()
	return nil
}

// SetVolume sets the playback volume in [0, 1]. Landing on zero is an
// implicit mute; any positive volume while muted implicitly unmutes. The
// numeric volume is the single source of truth and persists across mutes.
func (c *Controller) SetVolume(ctx context.Context, volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("%w: volume %v out of range", shared.ErrInvalidArgument, volume)
	}

	c.mu.Lock()
	player := c.player
	if volume == 0 {
		c.muted = true
		// c.volume keeps the pre-mute value for restore
	} else {
		c.volume = volume
		c.muted = false
	}
	effective := c.effectiveVolumeLocked()
	c.mu.Unlock()

	if player == nil {
		return nil
	}
	return player.SetVolume(ctx, effective)
}

// ToggleMute flips the mute flag. Unmuting restores the exact pre-mute
// volume.
func (c *Controller) ToggleMute(ctx context.Context) error {
	c.mu.Lock()
	c.muted = !c.muted
	player := c.player
	effective := c.effectiveVolumeLocked()
	c.mu.Unlock()

	if player == nil {
		return nil
	}
	return player.SetVolume(ctx, effective)
}

func (c *Controller) effectiveVolumeLocked() float64 {
	if c.muted {
		return 0
	}
	return c.volume
}

// Volume returns the persisted numeric volume, unaffected by mute.
func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// Muted reports the mute flag.
func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Close disconnects the player and releases the SDK ready callback so a later
// controller instance can claim it.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
}

func (c *Controller) closeLocked() {
	if c.player != nil {
		for _, kind := range []EventType{
			EventReady, EventNotReady, EventStateChanged,
			EventInitializationError, EventAuthenticationError,
			EventAccountError, EventPlaybackError,
		} {
			c.player.RemoveListener(kind)
		}
		c.player.Disconnect()
		c.player = nil
	}
	c.sdk.Unload()
	gate.deregister()
	c.state = Uninitialized
	c.deviceID = ""
	c.reconnects = 0
}
