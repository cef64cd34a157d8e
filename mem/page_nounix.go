//go:build !unix

package mem

import (
	"os"
)

func PageSize() uint64 {
	return uint64(os.Getpagesize())
}

// AllocationGranularity is 64KB on windows regardless of the page size.
func AllocationGranularity() uint64 {
	return max(64*KB, PageSize())
}
