// Package status holds the last known health of every supervised device.
//
// The Cache is seeded from the device snapshot and written only by the
// health monitor through Upsert. The HTTP API and other readers get value
// copies and never block on network I/O.
package status
