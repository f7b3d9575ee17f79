//go:build linux

package engine

import "golang.org/x/sys/unix"

// hostMemoryBytes returns total system memory reported by the kernel.
func hostMemoryBytes() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return defaultHostMemory
	}
	return uint64(info.Totalram) * uint64(info.Unit)
}
