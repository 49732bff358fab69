package device

import (
	"time"

	"github.com/google/uuid"
)

// BundleRecord remembers a bundle installed on a device so a later
// invocation can remove it.
type BundleRecord struct {
	ID          string      `json:"id"`
	DeviceID    string      `json:"device_id"`
	PlatformID  string      `json:"platform_id"`
	Bundle      BuildBundle `json:"bundle"`
	InstalledAt time.Time   `json:"installed_at"`
}

// NewBundleRecord returns a record with a fresh id for bundle installed on
// deviceID.
func NewBundleRecord(deviceID, platformID string, bundle BuildBundle, installedAt time.Time) BundleRecord {
	return BundleRecord{
		ID:          uuid.NewString(),
		DeviceID:    deviceID,
		PlatformID:  platformID,
		Bundle:      bundle,
		InstalledAt: installedAt.UTC(),
	}
}

// BundleRepository stores bundle records.
type BundleRepository interface {
	Save(record BundleRecord) error
	Get(id string) (*BundleRecord, error)
	// ForDevice returns the records of deviceID, oldest first.
	ForDevice(deviceID string) ([]BundleRecord, error)
	List() ([]BundleRecord, error)
	Delete(id string) error
}
