//go:build !linux

package mem

func LargePageSize() uint64 {
	return defaultLargePageSize
}

func adviseLargePages(b []byte) {}
