// Package device holds the configuration of supervised proxy/controller
// endpoints.
//
// # Key Types
//
//   - Device: one proxy endpoint (host, port, controller metadata, enabled)
//   - Repository / SQLiteRepository: CRUD over the device_services table
//   - Snapshot: the in-memory, load-once copy the monitor iterates
//
// # Snapshot lifecycle
//
// The monitor loads the snapshot from the repository on its first cycle.
// Load seeds the status cache through StatusSeeder: every enabled device
// gets a fresh status, disabled devices get none. CRUD changes do not touch
// the snapshot; an operator triggers Reset and the monitor reloads on its
// next cycle.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	snap := device.NewSnapshot(statusCache)
//	devices, err := repo.List(ctx)
//	if err != nil {
//	    return err
//	}
//	snap.Load(devices)
package device
