//go:build linux

package mem

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

func LargePageSize() uint64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return defaultLargePageSize
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// Hugepagesize:       2048 kB
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != "Hugepagesize:" {
			continue
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil || kb == 0 {
			return defaultLargePageSize
		}
		return kb * KB
	}
	return defaultLargePageSize
}

func adviseLargePages(b []byte) {
	_ = unix.Madvise(b, unix.MADV_HUGEPAGE)
}
