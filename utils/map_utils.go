package utils

import "sort"

func CloneMap[K comparable, V any](m map[K]V) map[K]V {
	cloneM := make(map[K]V)
	for k, v := range m {
		cloneM[k] = v
	}
	return cloneM
}

func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
