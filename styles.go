package excelts

import (
	"fmt"
)

// Style is a resolved cell format: number format plus font. Fills, borders
// and alignment are not modeled; their markup passes through the parser
// unconsumed.
type Style struct {
	NumFmtID int
	NumFmt   string
	Font     *Font
}

// Font holds the character formatting this codec round-trips.
type Font struct {
	Bold   bool
	Italic bool
	Size   float64
	Name   string
	Color  string // ARGB, like "FFFF0000"
}

func (f *Font) key() string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%t|%t|%g|%s|%s", f.Bold, f.Italic, f.Size, f.Name, f.Color)
}

// Builtin number formats, as fixed by the file format.
var builtinNumFmt = map[int]string{
	0: "General", 1: "0", 2: "0.00", 3: "#,##0", 4: "#,##0.00",
	9: "0%", 10: "0.00%", 11: "0.00E+00", 12: "# ?/?", 13: "# ??/??",
	14: "mm-dd-yy", 15: "d-mmm-yy", 16: "d-mmm", 17: "mmm-yy",
	18: "h:mm AM/PM", 19: "h:mm:ss AM/PM", 20: "h:mm", 21: "h:mm:ss",
	22: "m/d/yy h:mm", 37: "#,##0 ;(#,##0)", 38: "#,##0 ;[Red](#,##0)",
	39: "#,##0.00;(#,##0.00)", 40: "#,##0.00;[Red](#,##0.00)",
	45: "mm:ss", 46: "[h]:mm:ss", 47: "mmss.0", 48: "##0.0E+0", 49: "@",
}

// Custom number formats are assigned ids from here up.
const firstCustomNumFmt = 164

// NumFmtDate is the builtin date-time format the writer attaches to
// time-valued cells.
const NumFmtDate = 22

// xf is one cell-format record, indexed by a cell's style attribute.
type xf struct {
	numFmtID int
	fontID   int
}

// Styles is the workbook format registry. Reading fills it from the style
// part; writing interns Style values into deduplicated records and renders
// them back out at finalize.
type Styles struct {
	numFmts map[int]string
	fonts   []*Font
	xfs     []xf

	resolved    []*Style
	xfIndex     map[string]int
	fontIndex   map[string]int
	numFmtIndex map[string]int
	nextNumFmt  int
}

// NewStyles returns a registry seeded with the default format record, so
// index 0 always resolves.
func NewStyles() *Styles {
	st := emptyStyles()
	st.fonts = append(st.fonts, &Font{Size: 11, Name: "Calibri"})
	st.fontIndex[st.fonts[0].key()] = 0
	st.xfs = append(st.xfs, xf{})
	st.xfIndex["0|0"] = 0
	return st
}

func emptyStyles() *Styles {
	return &Styles{
		numFmts:     make(map[int]string),
		xfIndex:     make(map[string]int),
		fontIndex:   make(map[string]int),
		numFmtIndex: make(map[string]int),
		nextNumFmt:  firstCustomNumFmt,
	}
}

// AddStyle interns s and returns its format-record index. Equal styles share
// one record. A nil or zero style maps to the default record.
func (st *Styles) AddStyle(s *Style) int {
	if s == nil {
		return 0
	}
	numFmtID := s.NumFmtID
	if s.NumFmt != "" && numFmtID == 0 {
		numFmtID = st.internNumFmt(s.NumFmt)
	}
	fontID := 0
	if s.Font != nil {
		fontID = st.internFont(s.Font)
	}
	key := fmt.Sprintf("%d|%d", numFmtID, fontID)
	if i, ok := st.xfIndex[key]; ok {
		return i
	}
	i := len(st.xfs)
	st.xfs = append(st.xfs, xf{numFmtID: numFmtID, fontID: fontID})
	st.xfIndex[key] = i
	st.resolved = nil
	return i
}

func (st *Styles) internNumFmt(code string) int {
	if id, ok := st.numFmtIndex[code]; ok {
		return id
	}
	for id, c := range builtinNumFmt {
		if c == code {
			st.numFmtIndex[code] = id
			return id
		}
	}
	id := st.nextNumFmt
	st.nextNumFmt++
	st.numFmts[id] = code
	st.numFmtIndex[code] = id
	return id
}

func (st *Styles) internFont(f *Font) int {
	key := f.key()
	if i, ok := st.fontIndex[key]; ok {
		return i
	}
	i := len(st.fonts)
	st.fonts = append(st.fonts, f)
	st.fontIndex[key] = i
	return i
}

// Style resolves a format-record index.
func (st *Styles) Style(index int) (*Style, bool) {
	if index < 0 || index >= len(st.xfs) {
		return nil, false
	}
	if st.resolved == nil {
		st.resolved = make([]*Style, len(st.xfs))
	}
	if s := st.resolved[index]; s != nil {
		return s, true
	}
	rec := st.xfs[index]
	s := &Style{NumFmtID: rec.numFmtID, NumFmt: st.numFmtCode(rec.numFmtID)}
	if rec.fontID >= 0 && rec.fontID < len(st.fonts) {
		s.Font = st.fonts[rec.fontID]
	}
	st.resolved[index] = s
	return s, true
}

// Resolve is the untyped variant of Style, for the transform-node seam.
func (st *Styles) Resolve(index int) (any, bool) {
	s, ok := st.Style(index)
	if !ok {
		return nil, false
	}
	return s, true
}

// Intern is the untyped variant of AddStyle, for the transform-node seam.
func (st *Styles) Intern(style any) int {
	s, _ := style.(*Style)
	return st.AddStyle(s)
}

// IsDate reports whether the format record at index displays its number as
// a date or time.
func (st *Styles) IsDate(index int) bool {
	if index < 0 || index >= len(st.xfs) {
		return false
	}
	id := st.xfs[index].numFmtID
	if isBuiltinDateFmt(id) {
		return true
	}
	if code, ok := st.numFmts[id]; ok {
		return isDateCode(code)
	}
	return false
}

// Len returns the number of format records.
func (st *Styles) Len() int {
	return len(st.xfs)
}

func (st *Styles) numFmtCode(id int) string {
	if code, ok := st.numFmts[id]; ok {
		return code
	}
	return builtinNumFmt[id]
}

func isBuiltinDateFmt(id int) bool {
	switch {
	case id >= 14 && id <= 22:
		return true
	case id >= 27 && id <= 36: // far-east date formats
		return true
	case id >= 45 && id <= 47:
		return true
	case id >= 50 && id <= 58: // far-east date formats
		return true
	}
	return false
}

// isDateCode scans a custom format code for date or time tokens, ignoring
// quoted literals, bracketed sections, and escaped characters.
func isDateCode(code string) bool {
	inQuote := false
	inBracket := false
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case inQuote:
			if c == '"' {
				inQuote = false
			}
		case inBracket:
			if c == ']' {
				inBracket = false
			}
		case c == '"':
			inQuote = true
		case c == '[':
			inBracket = true
		case c == '\\':
			i++
		default:
			switch c {
			case 'y', 'Y', 'm', 'M', 'd', 'D', 'h', 'H', 's', 'S':
				return true
			}
		}
	}
	return false
}

// parse-side mutators used by the style-part node tree

func (st *Styles) setNumFmt(id int, code string) {
	st.numFmts[id] = code
	st.numFmtIndex[code] = id
	if id >= st.nextNumFmt {
		st.nextNumFmt = id + 1
	}
	st.resolved = nil
}

func (st *Styles) addFont(f *Font) {
	st.fontIndex[f.key()] = len(st.fonts)
	st.fonts = append(st.fonts, f)
	st.resolved = nil
}

func (st *Styles) addXf(numFmtID, fontID int) {
	st.xfs = append(st.xfs, xf{numFmtID: numFmtID, fontID: fontID})
	st.resolved = nil
}
