package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cochaviz/dinghy/internal/device"
)

// LocalBundleRepository persists bundle records in JSON files under BaseDir.
type LocalBundleRepository struct {
	BaseDir string
}

var _ device.BundleRepository = (*LocalBundleRepository)(nil)

// Save writes the record to disk using its ID as the filename.
func (rep *LocalBundleRepository) Save(record device.BundleRecord) error {
	if rep.BaseDir == "" {
		return errors.New("base directory is not configured")
	}
	if record.ID == "" {
		return errors.New("record id is required")
	}

	if err := os.MkdirAll(rep.BaseDir, 0o755); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(rep.path(record.ID), payload, 0o644)
}

// Get returns the record with the provided ID, or nil when there is none.
func (rep *LocalBundleRepository) Get(id string) (*device.BundleRecord, error) {
	if id == "" {
		return nil, errors.New("record id is required")
	}
	return rep.load(rep.path(id))
}

// List returns every record ordered by installation time.
func (rep *LocalBundleRepository) List() ([]device.BundleRecord, error) {
	entries, err := os.ReadDir(rep.BaseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var records []device.BundleRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		record, err := rep.load(filepath.Join(rep.BaseDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if record != nil {
			records = append(records, *record)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].InstalledAt.Before(records[j].InstalledAt)
	})
	return records, nil
}

func (rep *LocalBundleRepository) ForDevice(deviceID string) ([]device.BundleRecord, error) {
	all, err := rep.List()
	if err != nil {
		return nil, err
	}
	var out []device.BundleRecord
	for _, record := range all {
		if record.DeviceID == deviceID {
			out = append(out, record)
		}
	}
	return out, nil
}

// Delete removes a record; deleting a missing record is not an error.
func (rep *LocalBundleRepository) Delete(id string) error {
	if id == "" {
		return errors.New("record id is required")
	}
	if err := os.Remove(rep.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

func (rep *LocalBundleRepository) path(id string) string {
	return filepath.Join(rep.BaseDir, id+".json")
}

func (rep *LocalBundleRepository) load(path string) (*device.BundleRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var record device.BundleRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", path, err)
	}
	return &record, nil
}
