package qtree

import "slices"

// dedup collapses keys into their distinct values and returns, for every
// input key, its position in the distinct list.
func dedup(keys []uint64, strategy Strategy) (unique []uint64, pos []int) {
	if strategy == StrategyHashed {
		return dedupHashed(keys)
	}
	return dedupSorted(keys)
}

// dedupSorted returns the distinct keys in ascending order, so positions
// only depend on the set of keys and not on their order.
func dedupSorted(keys []uint64) ([]uint64, []int) {
	unique := slices.Clone(keys)
	slices.Sort(unique)
	unique = slices.Compact(unique)

	pos := make([]int, len(keys))
	for i, k := range keys {
		pos[i], _ = slices.BinarySearch(unique, k)
	}
	return unique, pos
}

// dedupHashed returns the distinct keys in first-seen order.
func dedupHashed(keys []uint64) ([]uint64, []int) {
	seen := make(map[uint64]int, len(keys))
	unique := make([]uint64, 0, len(keys))
	pos := make([]int, len(keys))

	for i, k := range keys {
		p, ok := seen[k]
		if !ok {
			p = len(unique)
			seen[k] = p
			unique = append(unique, k)
		}
		pos[i] = p
	}
	return unique, pos
}
