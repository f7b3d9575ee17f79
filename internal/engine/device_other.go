//go:build !linux

package engine

// hostMemoryBytes returns a conservative default where the platform offers
// no portable total-memory query.
func hostMemoryBytes() uint64 {
	return defaultHostMemory
}
