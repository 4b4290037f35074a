// Package utils holds small helpers shared by the HTTP and service layers.
package utils

import "strconv"

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads page and page_size query values. Missing or malformed
// values fall back to page 1 and defSize; the size is capped at maxSize.
func ParsePage(page, size string, defSize, maxSize int) Page {
	p := Page{Number: atoiDefault(page, 1), Size: atoiDefault(size, defSize)}
	return p.Clamp(defSize, maxSize)
}

// Clamp bounds the page to Number >= 1 and 1 <= Size <= maxSize. A
// non-positive Size becomes defSize.
func (p Page) Clamp(defSize, maxSize int) Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = defSize
	}
	if maxSize > 0 && p.Size > maxSize {
		p.Size = maxSize
	}
	return p
}

// Offset is the number of rows preceding this page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// TotalPages is ceil(total/Size).
func (p Page) TotalPages(total int64) int {
	if p.Size <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
