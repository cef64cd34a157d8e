//go:build unix

package mem

import (
	"golang.org/x/sys/unix"
)

func PageSize() uint64 {
	return uint64(unix.Getpagesize())
}

// AllocationGranularity equals the page size on unix systems.
func AllocationGranularity() uint64 {
	return PageSize()
}
