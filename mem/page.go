package mem

const defaultLargePageSize = 2 * MB

// HeapAlignment is the alignment of heap reservations: the larger of the
// allocation granularity and the page size in use.
func HeapAlignment(useLargePages bool) uint64 {
	pageSize := PageSize()
	if useLargePages {
		pageSize = LargePageSize()
	}
	return max(AllocationGranularity(), pageSize)
}
