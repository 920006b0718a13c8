// Package excelts is a streaming codec for spreadsheet workbooks in the ZIP
// and XML container format. The reader pulls worksheet rows one at a time
// out of an archive without holding a document tree; the writer streams rows
// into an archive with only the active worksheet resident. Both sides share
// one set of transform-node trees describing the markup, so a document
// written here reads back identically.
package excelts

// CellType identifies how a cell's Value field is to be interpreted.
type CellType int

const (
	// CellBlank is a cell with no value, kept only for its style or address.
	CellBlank CellType = iota
	// CellNumber holds a float64.
	CellNumber
	// CellString holds a string, either inline or resolved from the shared
	// table.
	CellString
	// CellSharedString holds an unresolved int index into the shared-string
	// table; it appears only when table caching is switched off.
	CellSharedString
	// CellBool holds a bool.
	CellBool
	// CellDate holds a time.Time decoded from a date-formatted number.
	CellDate
	// CellFormula holds formula text in Formula and a cached result in
	// Result.
	CellFormula
	// CellError holds an error literal such as "#DIV/0!".
	CellError
)

func (t CellType) String() string {
	switch t {
	case CellBlank:
		return "blank"
	case CellNumber:
		return "number"
	case CellString:
		return "string"
	case CellSharedString:
		return "sharedString"
	case CellBool:
		return "bool"
	case CellDate:
		return "date"
	case CellFormula:
		return "formula"
	case CellError:
		return "error"
	default:
		return "unknown"
	}
}

// Cell is one worksheet cell.
type Cell struct {
	Ref  string // address like "B2"
	Row  int    // 1-based, redundant with Ref
	Col  int    // 1-based, redundant with Ref
	Type CellType

	// Value holds the typed value: float64, string, bool, time.Time, or an
	// int shared-string index, according to Type.
	Value any

	// Formula and Result are set on formula cells. SharedIndex and
	// SharedRange describe shared-formula groups: the master cell carries
	// the group's range, every member carries the index.
	Formula     string
	Result      any
	SharedIndex int
	SharedRange string
	shared      bool

	StyleID int    // raw format-record index from the markup
	Style   *Style // resolved record, when the style table is cached

	// Hyperlink is a target URL to attach when writing.
	Hyperlink string

	// Err records a content-level defect found while reading this cell,
	// such as a shared-string index past the end of the table. The row it
	// belongs to is still delivered.
	Err error
}

// Row is one worksheet row in document order.
type Row struct {
	Number int // 1-based
	Cells  []Cell
	Height float64 // 0 means default height
	Hidden bool
}

// Column describes a contiguous run of column definitions.
type Column struct {
	Min     int // 1-based first column
	Max     int // 1-based last column
	Width   float64
	Hidden  bool
	StyleID int
}

// SheetState is a worksheet's visibility in the workbook directory.
type SheetState string

const (
	SheetVisible    SheetState = "visible"
	SheetHidden     SheetState = "hidden"
	SheetVeryHidden SheetState = "veryHidden"
)

// SheetInfo describes one worksheet named in the workbook directory.
type SheetInfo struct {
	Name    string
	SheetID int
	RelID   string
	State   SheetState
	Path    string // container entry path holding the sheet body

	// Columns holds the sheet's column definitions, known before the first
	// row arrives.
	Columns []Column
}

// Hyperlink anchors a target to a cell.
type Hyperlink struct {
	Ref     string // anchor cell address
	RelID   string // relationship id carried in the markup
	Target  string // resolved URL; empty when the sheet has no rels part
	Tooltip string
}
