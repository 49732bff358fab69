package local

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/cochaviz/dinghy/internal/device"
)

func newTestRecord(id, deviceID string, installedAt time.Time) device.BundleRecord {
	return device.BundleRecord{
		ID:         id,
		DeviceID:   deviceID,
		PlatformID: "pi",
		Bundle: device.BuildBundle{
			ID:     "app",
			Root:   "/tmp/dinghy",
			Dir:    "/tmp/dinghy/app",
			Exe:    "/tmp/dinghy/app/app",
			LibDir: "/tmp/dinghy/lib",
		},
		InstalledAt: installedAt.UTC(),
	}
}

func TestLocalBundleRepositorySaveAndGet(t *testing.T) {
	t.Parallel()

	repo := LocalBundleRepository{BaseDir: t.TempDir()}
	want := newTestRecord("rec-1", "pi", time.Unix(1_700_000_000, 0))

	if err := repo.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.Get(want.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || !reflect.DeepEqual(*got, want) {
		t.Fatalf("Get() = %+v, want %+v", got, want)
	}
}

func TestLocalBundleRepositoryForDeviceOrdersByInstallTime(t *testing.T) {
	t.Parallel()

	repo := LocalBundleRepository{BaseDir: t.TempDir()}
	records := []device.BundleRecord{
		newTestRecord("b", "pi", time.Unix(1_800_000_000, 0)),
		newTestRecord("a", "pi", time.Unix(1_700_000_000, 0)),
		newTestRecord("c", "phone", time.Unix(1_750_000_000, 0)),
	}
	for _, r := range records {
		if err := repo.Save(r); err != nil {
			t.Fatalf("Save(%q) error = %v", r.ID, err)
		}
	}

	got, err := repo.ForDevice("pi")
	if err != nil {
		t.Fatalf("ForDevice() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("ForDevice() = %+v, want records a then b", got)
	}
}

func TestLocalBundleRepositoryDelete(t *testing.T) {
	t.Parallel()

	repo := LocalBundleRepository{BaseDir: t.TempDir()}
	record := newTestRecord("rec-1", "pi", time.Unix(1_700_000_000, 0))
	if err := repo.Save(record); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := repo.Delete(record.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(record.ID); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	got, err := repo.Get(record.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Get() = %+v, want nil", got)
	}
}

func TestLocalBundleRepositoryMissingDir(t *testing.T) {
	t.Parallel()

	repo := LocalBundleRepository{BaseDir: filepath.Join(t.TempDir(), "missing")}
	got, err := repo.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("List() = %+v, want empty", got)
	}
}
