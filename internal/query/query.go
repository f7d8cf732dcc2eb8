// Package query holds the list helpers behind the entity pages: case-insensitive text
// search, field filters, stable sorting, and ordered grouping. All helpers are pure
// functions over slices; the handlers decide which fields participate per entity.
package query

import (
	"sort"
	"strings"
)

// Direction selects a sort order.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection maps a query-string value to a Direction, defaulting to ascending.
func ParseDirection(s string) Direction {
	if Direction(s) == Descending {
		return Descending
	}
	return Ascending
}

// Filter returns the items for which keep is true. A nil predicate keeps everything.
func Filter[T any](items []T, keep func(T) bool) []T {
	if keep == nil {
		return items
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// MatchFold reports whether any of the fields contains the search term,
// case-insensitively. An empty term matches everything.
func MatchFold(term string, fields ...string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

// SortBy sorts items in place with the given comparison, reversed for descending
// order. The sort is stable so that records already in insertion order keep their
// relative position under equal keys.
func SortBy[T any](items []T, cmp func(a, b T) int, dir Direction) {
	sort.SliceStable(items, func(i, j int) bool {
		c := cmp(items[i], items[j])
		if dir == Descending {
			return c > 0
		}
		return c < 0
	})
}

// Group is one bucket of a grouped list.
type Group[T any] struct {
	Key   string
	Items []T
}

// GroupBy partitions items into groups keyed by key, preserving both the order in
// which keys first appear and the order of items within each group.
func GroupBy[T any](items []T, key func(T) string) []Group[T] {
	var groups []Group[T]
	index := make(map[string]int)
	for _, it := range items {
		k := key(it)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group[T]{Key: k})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}
