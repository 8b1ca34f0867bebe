package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/deworm/internal/models"
	"github.com/desertthunder/deworm/internal/player"
)

// DeviceRepository implements [player.DeviceCache] over SQLite. It remembers
// the last device the SDK registered so the next run can check whether the
// provider still lists it before trusting it.
type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository creates a new [DeviceRepository] with the given database connection
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Save upserts the device row.
func (r *DeviceRepository) Save(device models.PlaybackDevice) error {
	query := `
		INSERT INTO devices (device_id, name, is_ready, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			name = excluded.name,
			is_ready = excluded.is_ready,
			last_seen = excluded.last_seen
	`

	_, err := r.db.Exec(query, device.DeviceID, device.Name, device.IsReady, device.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to store device: %w", err)
	}
	return nil
}

// Clear removes a device that is no longer registered upstream.
func (r *DeviceRepository) Clear(deviceID string) error {
	if _, err := r.db.Exec("DELETE FROM devices WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("failed to clear device: %w", err)
	}
	return nil
}

// Last returns the most recently seen device, false when none is cached.
func (r *DeviceRepository) Last() (*models.PlaybackDevice, bool) {
	query := `
		SELECT device_id, name, is_ready, last_seen
		FROM devices
		ORDER BY last_seen DESC
		LIMIT 1
	`

	var (
		deviceID string
		name     string
		isReady  bool
		lastSeen time.Time
	)

	err := r.db.QueryRow(query).Scan(&deviceID, &name, &isReady, &lastSeen)
	if err != nil {
		return nil, false
	}

	return &models.PlaybackDevice{
		DeviceID: deviceID,
		Name:     name,
		IsReady:  isReady,
		LastSeen: lastSeen,
	}, true
}

var _ player.DeviceCache = (*DeviceRepository)(nil)
