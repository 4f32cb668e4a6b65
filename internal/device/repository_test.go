package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/mcs-device-service/internal/infrastructure/config"
	"github.com/nerrad567/mcs-device-service/internal/infrastructure/database"
	_ "github.com/nerrad567/mcs-device-service/migrations"
)

// setupTestRepo opens a migrated database in a temp directory.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "devices.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func testDevice() *Device {
	return &Device{
		Host:           "10.0.0.5",
		Port:           5555,
		ControllerType: "E82",
		ControllerHost: "10.0.0.6",
		ControllerPort: 5000,
		Remark:         "tsc11",
		Enabled:        true,
		CreatedBy:      "admin",
	}
}

func TestSQLiteRepository_CreateAssignsID(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	d := testDevice()
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if d.ID == 0 {
		t.Fatal("Create() did not assign an ID")
	}
	if d.CreatedAt.IsZero() || d.UpdatedAt.IsZero() {
		t.Error("Create() did not set timestamps")
	}

	got, err := repo.GetByID(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Host != "10.0.0.5" || got.Port != 5555 || !got.Enabled || got.Remark != "tsc11" {
		t.Errorf("GetByID() = %+v", got)
	}
}

func TestSQLiteRepository_CreateExplicitIDConflict(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	d := testDevice()
	d.ID = 42
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	dup := testDevice()
	dup.ID = 42
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("Create() duplicate error = %v, want ErrDeviceExists", err)
	}
}

func TestSQLiteRepository_GetByIDNotFound(t *testing.T) {
	repo := setupTestRepo(t)

	if _, err := repo.GetByID(context.Background(), 999); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_ListOrderedAndPaged(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for _, id := range []int64{3, 1, 2} {
		d := testDevice()
		d.ID = id
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create(%d) error = %v", id, err)
		}
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 || all[0].ID != 1 || all[2].ID != 3 {
		t.Fatalf("List() ids = %v, want [1 2 3]", ids(all))
	}

	page, total, err := repo.ListPage(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ListPage() error = %v", err)
	}
	if total != 3 {
		t.Errorf("ListPage() total = %d, want 3", total)
	}
	if len(page) != 1 || page[0].ID != 2 {
		t.Errorf("ListPage(1,1) ids = %v, want [2]", ids(page))
	}
}

func TestSQLiteRepository_Update(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	d := testDevice()
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	d.Enabled = false
	d.Remark = ""
	if err := repo.Update(ctx, d); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Enabled || got.Remark != "" {
		t.Errorf("after Update() got Enabled=%v Remark=%q", got.Enabled, got.Remark)
	}

	missing := testDevice()
	missing.ID = 404
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Update() missing error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_Delete(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	d := testDevice()
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Delete(ctx, d.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, d.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second Delete() error = %v, want ErrDeviceNotFound", err)
	}
}

func ids(devices []Device) []int64 {
	out := make([]int64, len(devices))
	for i, d := range devices {
		out[i] = d.ID
	}
	return out
}
