// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// Page size bounds shared by every paginated listing.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a 1-based page window.
type Page struct {
	Number int
	Size   int
}

// NewPage bounds number to >= 1 and size to [1, MaxPageSize]. A size <= 0
// selects DefaultPageSize.
func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

// ParsePage reads raw query values; unparsable input falls back to defaults.
// An explicit non-positive size clamps to 1 rather than the default.
func ParsePage(number, size string) Page {
	n := AtoiDefault(number, 1)
	s := AtoiDefault(size, DefaultPageSize)
	if s < 1 {
		s = 1
	}
	return NewPage(n, s)
}

// Offset is the number of rows before the window.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// TotalPages returns how many windows of p.Size cover total rows.
func (p Page) TotalPages(total int64) int {
	if p.Size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
