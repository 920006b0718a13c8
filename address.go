package excelts

import (
	"fmt"
	"strings"
)

// Worksheet coordinate limits.
const (
	MaxRows    = 1048576
	MaxColumns = 16384
)

// ColName converts a 1-based column number to its letter name ("A", "Z",
// "AA").
func ColName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return name
}

// ColNumber converts a column letter name to its 1-based number.
func ColNumber(name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("empty column name")
	}
	if len(name) > 4 {
		return 0, fmt.Errorf("column %q out of bounds", name)
	}
	col := 0
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c < 'A' || c > 'Z' {
			return 0, fmt.Errorf("invalid column name: %q", name)
		}
		col = col*26 + int(c-'A') + 1
	}
	if col > MaxColumns {
		return 0, fmt.Errorf("column %q out of bounds", name)
	}
	return col, nil
}

// FormatRef builds a cell address like "B2" from 1-based coordinates.
func FormatRef(row, col int) string {
	return fmt.Sprintf("%s%d", ColName(col), row)
}

// ParseRef parses a cell address like "B2" or "$B$2" into 1-based
// coordinates.
func ParseRef(ref string) (row, col int, err error) {
	s := strings.ReplaceAll(ref, "$", "")
	if s == "" {
		return 0, 0, fmt.Errorf("empty cell address")
	}
	i := 0
	for i < len(s) && !isDigit(s[i]) {
		i++
	}
	if i == 0 || i == len(s) {
		return 0, 0, fmt.Errorf("invalid cell address: %q", ref)
	}
	col, err = ColNumber(s[:i])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cell address %q: %w", ref, err)
	}
	for j := i; j < len(s); j++ {
		if !isDigit(s[j]) {
			return 0, 0, fmt.Errorf("invalid cell address: %q", ref)
		}
		row = row*10 + int(s[j]-'0')
		if row > MaxRows {
			return 0, 0, fmt.Errorf("row in %q out of bounds", ref)
		}
	}
	if row == 0 {
		return 0, 0, fmt.Errorf("invalid cell address: %q", ref)
	}
	return row, col, nil
}

// Range is a rectangular block of cells, 1-based and inclusive.
type Range struct {
	StartRow int
	StartCol int
	EndRow   int
	EndCol   int
}

// ParseRange parses "B2:C8" or a single address "B2". Reversed corners are
// normalized.
func ParseRange(s string) (Range, error) {
	first, rest, hasColon := strings.Cut(s, ":")
	r1, c1, err := ParseRef(first)
	if err != nil {
		return Range{}, err
	}
	if !hasColon {
		return Range{StartRow: r1, StartCol: c1, EndRow: r1, EndCol: c1}, nil
	}
	r2, c2, err := ParseRef(rest)
	if err != nil {
		return Range{}, err
	}
	if r2 < r1 {
		r1, r2 = r2, r1
	}
	if c2 < c1 {
		c1, c2 = c2, c1
	}
	return Range{StartRow: r1, StartCol: c1, EndRow: r2, EndCol: c2}, nil
}

// String renders the range, collapsing single cells to one address.
func (r Range) String() string {
	if r.StartRow == r.EndRow && r.StartCol == r.EndCol {
		return FormatRef(r.StartRow, r.StartCol)
	}
	return FormatRef(r.StartRow, r.StartCol) + ":" + FormatRef(r.EndRow, r.EndCol)
}

// Contains reports whether the 1-based coordinate falls inside the range.
func (r Range) Contains(row, col int) bool {
	return row >= r.StartRow && row <= r.EndRow && col >= r.StartCol && col <= r.EndCol
}

// Cells returns the number of cells the range spans.
func (r Range) Cells() int64 {
	return int64(r.EndRow-r.StartRow+1) * int64(r.EndCol-r.StartCol+1)
}

// Refs lists every cell address in the range, row-major.
func (r Range) Refs() []string {
	refs := make([]string, 0, r.Cells())
	for row := r.StartRow; row <= r.EndRow; row++ {
		for col := r.StartCol; col <= r.EndCol; col++ {
			refs = append(refs, FormatRef(row, col))
		}
	}
	return refs
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
