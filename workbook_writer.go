package excelts

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iuioiua/excelts-sub002/container"
	"github.com/iuioiua/excelts-sub002/xform"
)

// WorkbookWriter streams a workbook into an archive. Worksheets are written
// one at a time: opening the next one seals the previous, and only the
// active sheet's compressed body is buffered. Close renders the directory
// parts, the optional shared-string and style tables, and the container's
// central directory.
type WorkbookWriter struct {
	cw   *container.Writer
	opts *writerOptions

	sheets  []*SheetInfo
	names   map[string]bool
	strings *SharedStrings
	styles  *Styles
	sheet   *WorksheetWriter
	closed  bool
}

// NewWorkbookWriter returns a writer assembling a workbook on w.
func NewWorkbookWriter(w io.Writer, opts ...WriterOption) *WorkbookWriter {
	o := defaultWriterOptions()
	for _, opt := range opts {
		opt(o)
	}
	ww := &WorkbookWriter{
		cw:    container.NewWriter(w),
		opts:  o,
		names: make(map[string]bool),
	}
	if o.useSharedStrings {
		ww.strings = NewSharedStrings()
	}
	if o.useStyles {
		ww.styles = NewStyles()
	}
	return ww
}

// AddWorksheet starts the next worksheet, finalizing the one before it.
// Sheet names must be unique within the workbook.
func (w *WorkbookWriter) AddWorksheet(name string) (*WorksheetWriter, error) {
	if w.closed {
		return nil, fmt.Errorf("workbook writer already closed")
	}
	if name == "" {
		return nil, fmt.Errorf("worksheet name must not be empty")
	}
	if w.names[name] {
		return nil, fmt.Errorf("worksheet %q already added", name)
	}
	if w.sheet != nil {
		if err := w.sheet.Close(); err != nil {
			return nil, err
		}
	}
	num := len(w.sheets) + 1
	info := &SheetInfo{
		Name:    name,
		SheetID: num,
		RelID:   fmt.Sprintf("rId%d", num),
		State:   SheetVisible,
		Path:    sheetPath(num),
	}
	entry, err := w.cw.Create(info.Path)
	if err != nil {
		return nil, err
	}
	ws := &WorksheetWriter{
		wb:    w,
		info:  info,
		entry: entry,
		xw:    xform.NewWriter(entry),
		row:   newRowNode(0),
	}
	ws.xw.Decl()
	ws.xw.Open("worksheet", "xmlns", nsSpreadsheet, "xmlns:r", nsDocRels)
	if err := ws.xw.Err(); err != nil {
		return nil, err
	}
	w.names[name] = true
	w.sheets = append(w.sheets, info)
	w.sheet = ws
	return ws, nil
}

// Close seals the workbook: it finalizes the active worksheet, renders the
// workbook directory, relationships, content types and the optional table
// parts, then writes the container's central directory.
func (w *WorkbookWriter) Close() error {
	if w.closed {
		return fmt.Errorf("workbook writer already closed")
	}
	if w.sheet != nil {
		if err := w.sheet.Close(); err != nil {
			return err
		}
	}
	w.closed = true
	if len(w.sheets) == 0 {
		return fmt.Errorf("workbook has no worksheets")
	}
	hasStrings := w.strings != nil && w.strings.Len() > 0
	hasStyles := w.styles != nil

	wbDir, _ := splitEntryPath(pathWorkbook)
	wbRels := newRelationships()
	for _, sh := range w.sheets {
		rel := wbRels.addNew(relTypeWorksheet, strings.TrimPrefix(sh.Path, wbDir), "")
		sh.RelID = rel.ID
	}
	if hasStyles {
		wbRels.addNew(relTypeStyles, strings.TrimPrefix(pathStyles, wbDir), "")
	}
	if hasStrings {
		wbRels.addNew(relTypeSharedStrings, strings.TrimPrefix(pathSharedStrings, wbDir), "")
	}

	info := &workbookInfo{Sheets: w.sheets, Date1904: w.opts.date1904}
	if err := w.writePart(pathWorkbook, newWorkbookNode(), info); err != nil {
		return err
	}
	if err := w.writeRels(pathWorkbookRels, wbRels); err != nil {
		return err
	}
	if hasStyles {
		if err := w.writePart(pathStyles, newStylesNode(w.styles), w.styles); err != nil {
			return err
		}
	}
	if hasStrings {
		if err := w.writePart(pathSharedStrings, newSstNode(w.strings), w.strings); err != nil {
			return err
		}
	}
	rootRels := newRelationships()
	rootRels.addNew(relTypeOfficeDocument, pathWorkbook, "")
	if err := w.writeRels(pathRootRels, rootRels); err != nil {
		return err
	}
	if err := w.writeContentTypes(hasStyles, hasStrings); err != nil {
		return err
	}
	return w.cw.Close()
}

// SharedStrings returns the table strings are interned into, or nil when
// the writer emits inline strings.
func (w *WorkbookWriter) SharedStrings() *SharedStrings {
	return w.strings
}

// Styles returns the format registry cells are interned into, or nil when
// no style part is written.
func (w *WorkbookWriter) Styles() *Styles {
	return w.styles
}

func (w *WorkbookWriter) writePart(path string, node xform.Node, model any) error {
	entry, err := w.cw.Create(path)
	if err != nil {
		return err
	}
	xw := xform.NewWriter(entry)
	if err := node.Render(xw, model); err != nil {
		return err
	}
	if err := xw.Flush(); err != nil {
		return err
	}
	return entry.Close()
}

func (w *WorkbookWriter) writeRels(path string, rels *relationships) error {
	return w.writePart(path, newRelsNode(), rels)
}

func (w *WorkbookWriter) writeContentTypes(hasStyles, hasStrings bool) error {
	entry, err := w.cw.Create(pathContentTypes)
	if err != nil {
		return err
	}
	xw := xform.NewWriter(entry)
	xw.Decl()
	xw.Open("Types", "xmlns", nsContentTypes)
	xw.Empty("Default", "Extension", "rels", "ContentType", ctRelationships)
	xw.Empty("Default", "Extension", "xml", "ContentType", ctXML)
	xw.Empty("Override", "PartName", "/"+pathWorkbook, "ContentType", ctWorkbook)
	for _, sh := range w.sheets {
		xw.Empty("Override", "PartName", "/"+sh.Path, "ContentType", ctWorksheet)
	}
	if hasStyles {
		xw.Empty("Override", "PartName", "/"+pathStyles, "ContentType", ctStyles)
	}
	if hasStrings {
		xw.Empty("Override", "PartName", "/"+pathSharedStrings, "ContentType", ctSharedStrings)
	}
	xw.Close("Types")
	if err := xw.Flush(); err != nil {
		return err
	}
	return entry.Close()
}

// WorksheetWriter streams one worksheet's markup into its container entry.
// Rows must arrive in ascending order; column definitions, if any, must be
// set before the first row.
type WorksheetWriter struct {
	wb    *WorkbookWriter
	info  *SheetInfo
	entry io.WriteCloser
	xw    *xform.Writer
	row   *rowNode

	rels    *relationships
	links   []*Hyperlink
	vals    *DataValidations
	nextRow int
	started bool
	closed  bool
}

// Name returns the sheet's name.
func (ws *WorksheetWriter) Name() string {
	return ws.info.Name
}

// SetState sets the sheet's visibility in the workbook directory. It may be
// called any time before the workbook closes.
func (ws *WorksheetWriter) SetState(state SheetState) {
	ws.info.State = state
}

// SetColumns records the sheet's column definitions. Column markup precedes
// row data, so this must happen before the first row is committed.
func (ws *WorksheetWriter) SetColumns(cols ...Column) error {
	if ws.closed {
		return fmt.Errorf("worksheet %q: already finalized", ws.info.Name)
	}
	if ws.started {
		return fmt.Errorf("worksheet %q: columns must be set before the first row", ws.info.Name)
	}
	ws.info.Columns = append([]Column(nil), cols...)
	return nil
}

// AddRow appends the next row built from values, one cell per value in
// column order. A nil value leaves its column empty. Accepted kinds are
// strings, booleans, numbers, time.Time, and prebuilt Cell values for
// formulas or styled content.
func (ws *WorksheetWriter) AddRow(values ...any) error {
	row := Row{Number: ws.nextRow + 1}
	for i, v := range values {
		if v == nil {
			continue
		}
		c := buildCell(v)
		c.Row = row.Number
		c.Col = i + 1
		if c.Col > MaxColumns {
			return fmt.Errorf("worksheet %q: column %d past the sheet limit", ws.info.Name, c.Col)
		}
		c.Ref = FormatRef(c.Row, c.Col)
		row.Cells = append(row.Cells, c)
	}
	return ws.CommitRow(row)
}

func buildCell(v any) Cell {
	switch x := v.(type) {
	case Cell:
		return x
	case *Cell:
		return *x
	case string:
		return Cell{Type: CellString, Value: x}
	case bool:
		return Cell{Type: CellBool, Value: x}
	case float64:
		return Cell{Type: CellNumber, Value: x}
	case float32:
		return Cell{Type: CellNumber, Value: float64(x)}
	case int:
		return Cell{Type: CellNumber, Value: float64(x)}
	case int8:
		return Cell{Type: CellNumber, Value: float64(x)}
	case int16:
		return Cell{Type: CellNumber, Value: float64(x)}
	case int32:
		return Cell{Type: CellNumber, Value: float64(x)}
	case int64:
		return Cell{Type: CellNumber, Value: float64(x)}
	case uint:
		return Cell{Type: CellNumber, Value: float64(x)}
	case uint8:
		return Cell{Type: CellNumber, Value: float64(x)}
	case uint16:
		return Cell{Type: CellNumber, Value: float64(x)}
	case uint32:
		return Cell{Type: CellNumber, Value: float64(x)}
	case uint64:
		return Cell{Type: CellNumber, Value: float64(x)}
	case time.Time:
		return Cell{Type: CellDate, Value: x}
	default:
		return Cell{Type: CellString, Value: fmt.Sprint(x)}
	}
}

// CommitRow writes one prepared row. A zero row number means the next free
// one; explicit numbers must ascend.
func (ws *WorksheetWriter) CommitRow(row Row) error {
	if ws.closed {
		return fmt.Errorf("worksheet %q: already finalized", ws.info.Name)
	}
	if ws.wb.sheet != ws {
		return fmt.Errorf("worksheet %q: no longer the active sheet", ws.info.Name)
	}
	if err := ws.start(); err != nil {
		return err
	}
	if row.Number == 0 {
		row.Number = ws.nextRow + 1
	}
	if row.Number <= ws.nextRow {
		return fmt.Errorf("worksheet %q: row %d out of order after row %d", ws.info.Name, row.Number, ws.nextRow)
	}
	if row.Number > MaxRows {
		return fmt.Errorf("worksheet %q: row %d past the sheet limit", ws.info.Name, row.Number)
	}
	ws.nextRow = row.Number

	// work on a copy so interning never mutates the caller's cells
	cells := make([]Cell, len(row.Cells))
	copy(cells, row.Cells)
	row.Cells = cells
	col := 0
	for i := range row.Cells {
		c := &row.Cells[i]
		if c.Ref == "" {
			if c.Col == 0 {
				c.Col = col + 1
			}
			c.Row = row.Number
			if c.Col > MaxColumns {
				return fmt.Errorf("worksheet %q: column %d past the sheet limit", ws.info.Name, c.Col)
			}
			c.Ref = FormatRef(c.Row, c.Col)
		}
		if c.Col > col {
			col = c.Col
		} else {
			col++
		}
	}
	ws.row.Prepare(&row, ws.ctx())
	if err := ws.row.Render(ws.xw, &row); err != nil {
		return err
	}
	return ws.xw.Err()
}

// AddHyperlink anchors an external target to a cell. The link markup and
// the sheet's relationship part are rendered when the sheet is finalized.
func (ws *WorksheetWriter) AddHyperlink(ref, target, tooltip string) error {
	if ws.closed {
		return fmt.Errorf("worksheet %q: already finalized", ws.info.Name)
	}
	if _, _, err := ParseRef(ref); err != nil {
		return fmt.Errorf("hyperlink: %w", err)
	}
	if ws.rels == nil {
		ws.rels = newRelationships()
	}
	rel := ws.rels.addNew(relTypeHyperlink, target, "External")
	ws.links = append(ws.links, &Hyperlink{Ref: ref, RelID: rel.ID, Target: target, Tooltip: tooltip})
	return nil
}

// AddValidation binds a validation rule to an address or range list.
func (ws *WorksheetWriter) AddValidation(address string, rule *DataValidation) error {
	if ws.closed {
		return fmt.Errorf("worksheet %q: already finalized", ws.info.Name)
	}
	if ws.vals == nil {
		ws.vals = NewDataValidations()
	}
	return ws.vals.Add(address, rule)
}

// Validations returns the sheet's validation index, creating it on first
// use.
func (ws *WorksheetWriter) Validations() *DataValidations {
	if ws.vals == nil {
		ws.vals = NewDataValidations()
	}
	return ws.vals
}

func (ws *WorksheetWriter) start() error {
	if ws.started {
		return nil
	}
	ws.started = true
	if err := renderColumns(ws.xw, ws.info.Columns); err != nil {
		return err
	}
	ws.xw.Open("sheetData")
	return ws.xw.Err()
}

// Close finalizes the sheet: trailer markup, the entry's checksum and
// sizes, and the sheet's relationship part when hyperlinks were added. A
// sheet with no rows still gets an empty row section.
func (ws *WorksheetWriter) Close() error {
	if ws.closed {
		return nil
	}
	ws.closed = true
	if ws.started {
		ws.xw.Close("sheetData")
	} else {
		if err := renderColumns(ws.xw, ws.info.Columns); err != nil {
			return err
		}
		ws.xw.Empty("sheetData")
	}
	if err := renderDataValidations(ws.xw, ws.vals); err != nil {
		return err
	}
	if err := renderHyperlinks(ws.xw, ws.links); err != nil {
		return err
	}
	ws.xw.Close("worksheet")
	if err := ws.xw.Flush(); err != nil {
		return err
	}
	if err := ws.entry.Close(); err != nil {
		return err
	}
	if ws.wb.sheet == ws {
		ws.wb.sheet = nil
	}
	if ws.rels != nil {
		return ws.wb.writeRels(sheetRelsPath(ws.info.Path), ws.rels)
	}
	return nil
}

func (ws *WorksheetWriter) ctx() *xform.Context {
	ctx := &xform.Context{Date1904: ws.wb.opts.date1904}
	if ws.wb.strings != nil {
		ctx.Strings = ws.wb.strings
	}
	if ws.wb.styles != nil {
		ctx.Styles = ws.wb.styles
	}
	return ctx
}
