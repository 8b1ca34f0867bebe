// package formatter renders track data for CLI output (plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/desertthunder/deworm/internal/models"
)

// TrackLine renders one track as "Artist - Title (Album) [m:ss]".
func TrackLine(track models.Track) string {
	artists := make([]string, 0, len(track.Artists))
	for _, a := range track.Artists {
		artists = append(artists, a.Name)
	}

	line := fmt.Sprintf("%s - %s", strings.Join(artists, ", "), track.Name)
	if track.Album.Name != "" {
		line += fmt.Sprintf(" (%s)", track.Album.Name)
	}
	if track.DurationMS > 0 {
		line += " [" + formatDuration(track.DurationMS) + "]"
	}
	return line
}

// TracksToText converts tracks to a numbered plain text listing
func TracksToText(tracks []models.Track) []byte {
	var buf bytes.Buffer

	for i, track := range tracks {
		buf.WriteString(fmt.Sprintf("%d. %s\n", i+1, TrackLine(track)))
	}

	return buf.Bytes()
}

// TracksToJSON converts tracks to indented JSON
func TracksToJSON(tracks []models.Track) ([]byte, error) {
	data, err := json.MarshalIndent(map[string][]models.Track{"tracks": tracks}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode tracks: %w", err)
	}
	return data, nil
}

// formatDuration renders milliseconds as m:ss.
func formatDuration(ms int) string {
	seconds := ms / 1000
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
