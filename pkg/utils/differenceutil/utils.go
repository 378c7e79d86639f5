package differenceutil

// DifferenceAndIntersection splits the keys of src and des into those only in
// src, those in both and those only in des. O(len(src) + len(des)).
// Duplicate keys are reported once; the order of the results is unspecified.
func DifferenceAndIntersection[K comparable](src, des []K) (onlySrc, intersection, onlyDes []K) {
	m := make(map[K]uint8, len(src)+len(des))
	for _, k := range src {
		m[k] |= 1 << 0
	}
	for _, k := range des {
		m[k] |= 1 << 1
	}

	for k, v := range m {
		a := v&(1<<0) != 0
		b := v&(1<<1) != 0
		switch {
		case a && b:
			intersection = append(intersection, k)
		case a && !b:
			onlySrc = append(onlySrc, k)
		case !a && b:
			onlyDes = append(onlyDes, k)
		}
	}

	return
}

// Keys returns the keys of m in unspecified order.
func Keys[K comparable, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
