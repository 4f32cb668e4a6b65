// Package monitor runs the health reconciliation loop.
//
// Each cycle visits every device of the snapshot in ascending ID order, one
// at a time. An enabled device is probed; when the probe succeeds the
// device is asked to start, on every healthy cycle, whether or not it was
// already started. The result is written to the status cache and published
// as events.
//
// Classifications:
//
//	healthy           probe OK and start accepted
//	unreachable       TCP pre-check failed
//	timeout           health call exceeded its deadline
//	connection_error  health call failed after the pre-check passed
//	remote_error      health call answered non-200
//	remove            probe OK but the start call failed or answered 404
//	disabled          device disabled, nothing called, nothing cached
//
// The monitor is the only writer of the status cache.
package monitor
