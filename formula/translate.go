// Package formula rewrites cell references inside formula text. Its job is
// expanding shared-formula groups: the markup stores formula text only on a
// group's master cell, and every other member derives its own text by
// shifting the master's relative references.
package formula

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/efp"
)

const (
	maxRows    = 1048576
	maxColumns = 16384
)

// Translate rewrites src, a formula anchored at fromRef, so it applies at
// toRef: relative references shift by the cell offset while anchored parts
// stay put. Tokens that do not parse as plain cell addresses, such as named
// or sheet-qualified ranges, pass through untouched.
func Translate(src, fromRef, toRef string) (string, error) {
	fromRow, fromCol, err := parseRef(fromRef)
	if err != nil {
		return "", fmt.Errorf("translate anchor %q: %w", fromRef, err)
	}
	toRow, toCol, err := parseRef(toRef)
	if err != nil {
		return "", fmt.Errorf("translate target %q: %w", toRef, err)
	}
	dRow, dCol := toRow-fromRow, toCol-fromCol
	if dRow == 0 && dCol == 0 {
		return src, nil
	}
	ps := efp.ExcelParser()
	tokens := ps.Parse(src)
	for i, tok := range tokens {
		if tok.TType != efp.TokenTypeOperand || tok.TSubType != efp.TokenSubTypeRange {
			continue
		}
		if shifted, ok := shiftRange(tok.TValue, dRow, dCol); ok {
			tokens[i].TValue = shifted
		}
	}
	return ps.Render(), nil
}

func shiftRange(ref string, dRow, dCol int) (string, bool) {
	if strings.Contains(ref, "!") {
		return ref, false
	}
	parts := strings.Split(ref, ":")
	if len(parts) > 2 {
		return ref, false
	}
	out := make([]string, len(parts))
	for i, part := range parts {
		s, ok := shiftCell(part, dRow, dCol)
		if !ok {
			return ref, false
		}
		out[i] = s
	}
	return strings.Join(out, ":"), true
}

func shiftCell(ref string, dRow, dCol int) (string, bool) {
	p, ok := splitRef(ref)
	if !ok {
		return ref, false
	}
	if !p.colAbs {
		p.col += dCol
	}
	if !p.rowAbs {
		p.row += dRow
	}
	if p.col < 1 || p.col > maxColumns || p.row < 1 || p.row > maxRows {
		return ref, false
	}
	return p.format(), true
}

type refParts struct {
	colAbs bool
	col    int
	rowAbs bool
	row    int
}

func splitRef(ref string) (refParts, bool) {
	var p refParts
	s := ref
	if strings.HasPrefix(s, "$") {
		p.colAbs = true
		s = s[1:]
	}
	i := 0
	for i < len(s) && isRefLetter(s[i]) {
		i++
	}
	if i == 0 || i > 3 {
		return p, false
	}
	col, ok := colNumber(s[:i])
	if !ok {
		return p, false
	}
	p.col = col
	s = s[i:]
	if strings.HasPrefix(s, "$") {
		p.rowAbs = true
		s = s[1:]
	}
	if s == "" {
		return p, false
	}
	row, err := strconv.Atoi(s)
	if err != nil || row < 1 || row > maxRows {
		return p, false
	}
	p.row = row
	return p, true
}

func (p refParts) format() string {
	var b strings.Builder
	if p.colAbs {
		b.WriteByte('$')
	}
	b.WriteString(colName(p.col))
	if p.rowAbs {
		b.WriteByte('$')
	}
	b.WriteString(strconv.Itoa(p.row))
	return b.String()
}

func isRefLetter(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}

func colNumber(name string) (int, bool) {
	n := 0
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
			n = n*26 + int(c-'A') + 1
		case c >= 'a' && c <= 'z':
			n = n*26 + int(c-'a') + 1
		default:
			return 0, false
		}
	}
	if n < 1 || n > maxColumns {
		return 0, false
	}
	return n, true
}

func colName(n int) string {
	var b [3]byte
	i := len(b)
	for n > 0 {
		i--
		n--
		b[i] = byte('A' + n%26)
		n /= 26
	}
	return string(b[i:])
}

func parseRef(ref string) (row, col int, err error) {
	p, ok := splitRef(ref)
	if !ok {
		return 0, 0, fmt.Errorf("malformed cell reference %q", ref)
	}
	return p.row, p.col, nil
}
