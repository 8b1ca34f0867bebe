package player

import (
	"fmt"

	"github.com/desertthunder/deworm/internal/models"
	"github.com/desertthunder/deworm/internal/shared"
)

// EventType names the events the Web Playback SDK emits.
type EventType string

const (
	EventReady               EventType = "ready"
	EventNotReady            EventType = "not_ready"
	EventStateChanged        EventType = "player_state_changed"
	EventInitializationError EventType = "initialization_error"
	EventAuthenticationError EventType = "authentication_error"
	EventAccountError        EventType = "account_error"
	EventPlaybackError       EventType = "playback_error"
)

// Event is the closed set of parsed SDK events. The SDK hands listeners
// loosely-shaped payloads; [ParseEvent] is the only place those are inspected,
// so nothing unknown-shaped travels past this boundary.
type Event interface {
	Type() EventType
}

// ReadyEvent carries the provider-assigned device id.
type ReadyEvent struct {
	DeviceID string
}

func (ReadyEvent) Type() EventType { return EventReady }

// NotReadyEvent signals the device went offline.
type NotReadyEvent struct {
	DeviceID string
}

func (NotReadyEvent) Type() EventType { return EventNotReady }

// StateChangedEvent carries the paused flag, position and current track.
type StateChangedEvent struct {
	Paused   bool
	Position int
	Track    *models.Track
}

func (StateChangedEvent) Type() EventType { return EventStateChanged }

// ErrorEvent carries the provider's message for any of the four error events.
type ErrorEvent struct {
	Kind    EventType
	Message string
}

func (e ErrorEvent) Type() EventType { return e.Kind }

// ParseEvent converts a raw SDK payload into a typed event. Malformed payloads
// return an error and must be dropped (and logged) by the caller.
func ParseEvent(kind EventType, payload map[string]any) (Event, error) {
	switch kind {
	case EventReady, EventNotReady:
		id, ok := payload["device_id"].(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: %s event without device_id", shared.ErrInvalidInput, kind)
		}
		if kind == EventReady {
			return ReadyEvent{DeviceID: id}, nil
		}
		return NotReadyEvent{DeviceID: id}, nil

	case EventStateChanged:
		paused, ok := payload["paused"].(bool)
		if !ok {
			return nil, fmt.Errorf("%w: state event without paused flag", shared.ErrInvalidInput)
		}

		ev := StateChangedEvent{Paused: paused}
		if pos, ok := payload["position"].(float64); ok {
			ev.Position = int(pos)
		}
		if window, ok := payload["track_window"].(map[string]any); ok {
			if raw, ok := window["current_track"].(map[string]any); ok {
				ev.Track = parseTrack(raw)
			}
		}
		return ev, nil

	case EventInitializationError, EventAuthenticationError, EventAccountError, EventPlaybackError:
		message, ok := payload["message"].(string)
		if !ok || message == "" {
			return nil, fmt.Errorf("%w: %s event without message", shared.ErrInvalidInput, kind)
		}
		return ErrorEvent{Kind: kind, Message: message}, nil

	default:
		return nil, fmt.Errorf("%w: unknown event %q", shared.ErrInvalidInput, kind)
	}
}

// parseTrack maps the SDK's track shape onto [models.Track], tolerating
// missing optional fields.
func parseTrack(raw map[string]any) *models.Track {
	track := &models.Track{}

	track.ID, _ = raw["id"].(string)
	track.Name, _ = raw["name"].(string)
	track.URI, _ = raw["uri"].(string)
	if d, ok := raw["duration_ms"].(float64); ok {
		track.DurationMS = int(d)
	}

	if artists, ok := raw["artists"].([]any); ok {
		for _, a := range artists {
			entry, ok := a.(map[string]any)
			if !ok {
				continue
			}
			artist := models.Artist{}
			artist.ID, _ = entry["id"].(string)
			artist.Name, _ = entry["name"].(string)
			track.Artists = append(track.Artists, artist)
		}
	}

	if album, ok := raw["album"].(map[string]any); ok {
		track.Album.Name, _ = album["name"].(string)
		if images, ok := album["images"].([]any); ok {
			for _, im := range images {
				entry, ok := im.(map[string]any)
				if !ok {
					continue
				}
				image := models.Image{}
				image.URL, _ = entry["url"].(string)
				if h, ok := entry["height"].(float64); ok {
					image.Height = int(h)
				}
				if w, ok := entry["width"].(float64); ok {
					image.Width = int(w)
				}
				track.Album.Images = append(track.Album.Images, image)
			}
		}
	}

	return track
}
