package excelts

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/iuioiua/excelts-sub002/container"
	"github.com/iuioiua/excelts-sub002/formula"
	"github.com/iuioiua/excelts-sub002/xform"
	"github.com/iuioiua/excelts-sub002/xmlstream"
)

// WorkbookReader streams a workbook out of its container: one pull per
// event, one worksheet resident at a time. Construction parses the small
// directory parts (workbook, relationships, shared strings, styles);
// worksheet bodies are decompressed lazily as Next walks them.
//
// The event order per worksheet is fixed: one worksheet event, its rows in
// document order, then its hyperlinks when emission is enabled. After the
// last worksheet a single finished event is delivered and subsequent calls
// return io.EOF. Any error ends the stream for good; a read that failed
// never delivers the finished event.
type WorkbookReader struct {
	archive *container.Reader
	closer  io.Closer
	opts    *readerOptions

	info    *workbookInfo
	rels    *relationships
	strings *SharedStrings
	styles  *Styles

	state       readerState
	sheetIdx    int
	finished    bool
	err         error
	validations map[string]*DataValidations
	hyperlinks  []*Hyperlink

	// per-sheet streaming state
	sheet       *SheetInfo
	body        io.ReadCloser
	src         *xmlstream.Source
	sheetRels   *relationships
	row         *rowNode
	masters     map[int]sharedMaster
	linkQueue   []*Hyperlink
	rowsSeen    int
	lastRow     int
	inSheetData bool
	sheetClosed bool
}

type readerState int

const (
	stateNextSheet readerState = iota
	stateSheetBody
)

// sharedMaster remembers a shared-formula group's defining cell so member
// cells can derive their own text.
type sharedMaster struct {
	text string
	ref  string
}

// NewWorkbookReader opens a workbook held in r.
func NewWorkbookReader(r io.ReaderAt, size int64, opts ...ReaderOption) (*WorkbookReader, error) {
	o := defaultReaderOptions()
	for _, opt := range opts {
		opt(o)
	}
	archive, err := container.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	wr := &WorkbookReader{
		archive:     archive,
		opts:        o,
		row:         newRowNode(o.maxCols),
		validations: make(map[string]*DataValidations),
	}
	if err := wr.loadWorkbook(); err != nil {
		return nil, err
	}
	return wr, nil
}

// OpenFile opens the workbook file at path. Closing the reader closes the
// file.
func OpenFile(path string, opts ...ReaderOption) (*WorkbookReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	wr, err := NewWorkbookReader(f, st.Size(), opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	wr.closer = f
	return wr, nil
}

func (r *WorkbookReader) loadWorkbook() error {
	model, err := r.parsePart(pathWorkbook, newWorkbookNode())
	if err != nil {
		return err
	}
	r.info, _ = model.(*workbookInfo)

	relsModel, err := r.parsePart(pathWorkbookRels, newRelsNode())
	if err != nil {
		return err
	}
	r.rels, _ = relsModel.(*relationships)

	wbDir, _ := splitEntryPath(pathWorkbook)
	for _, sheet := range r.info.Sheets {
		target, ok := r.rels.Target(sheet.RelID)
		if !ok {
			return fmt.Errorf("workbook: sheet %q: no relationship %q", sheet.Name, sheet.RelID)
		}
		sheet.Path = resolveTarget(wbDir, target)
	}

	if r.opts.sharedStrings == TableCache {
		table := NewSharedStrings()
		if _, ok := r.archive.Lookup(pathSharedStrings); ok {
			if _, err := r.parsePart(pathSharedStrings, newSstNode(table)); err != nil {
				return err
			}
		}
		r.strings = table
	}
	if r.opts.styles == TableCache {
		if _, ok := r.archive.Lookup(pathStyles); ok {
			table := emptyStyles()
			if _, err := r.parsePart(pathStyles, newStylesNode(table)); err != nil {
				return err
			}
			r.styles = table
		}
	}
	return nil
}

// parsePart reads one metadata entry whole and runs a node tree over it.
// Reading to the end verifies the entry's checksum before any of the parse
// is trusted.
func (r *WorkbookReader) parsePart(path string, node xform.Node) (any, error) {
	data, err := r.archive.ReadAll(path)
	if err != nil {
		return nil, err
	}
	model, err := xform.Parse(xmlstream.NewSource(bytes.NewReader(data)), node)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return model, nil
}

// Sheets returns the workbook directory in workbook order.
func (r *WorkbookReader) Sheets() []*SheetInfo {
	return r.info.Sheets
}

// Date1904 reports whether the workbook uses the 1904 date system.
func (r *WorkbookReader) Date1904() bool {
	return r.info.Date1904
}

// SharedStrings returns the cached shared-string table, or nil when table
// caching is off.
func (r *WorkbookReader) SharedStrings() *SharedStrings {
	return r.strings
}

// Styles returns the cached style table, or nil when the workbook has no
// style part or table caching is off.
func (r *WorkbookReader) Styles() *Styles {
	return r.styles
}

// Hyperlinks returns the links collected so far under HyperlinksCache.
func (r *WorkbookReader) Hyperlinks() []*Hyperlink {
	return r.hyperlinks
}

// Validations returns the validation rules parsed from the named sheet, or
// nil when it had none or they were skipped.
func (r *WorkbookReader) Validations(sheet string) *DataValidations {
	return r.validations[sheet]
}

// Close releases the current worksheet body and the underlying file when
// the reader owns one.
func (r *WorkbookReader) Close() error {
	var first error
	if r.body != nil {
		first = r.body.Close()
		r.body = nil
	}
	if r.closer != nil {
		if err := r.closer.Close(); err != nil && first == nil {
			first = err
		}
		r.closer = nil
	}
	return first
}

// Next returns the next event. The error from a failed call is terminal:
// every later call repeats it.
func (r *WorkbookReader) Next() (*Event, error) {
	if r.err != nil {
		return nil, r.err
	}
	ev, err := r.next()
	if err != nil && err != io.EOF {
		r.err = err
	}
	return ev, err
}

func (r *WorkbookReader) next() (*Event, error) {
	for {
		switch r.state {
		case stateNextSheet:
			if r.sheetIdx >= len(r.info.Sheets) {
				if r.finished {
					return nil, io.EOF
				}
				r.finished = true
				return &Event{Kind: EventFinished}, nil
			}
			sheet := r.info.Sheets[r.sheetIdx]
			if err := r.openSheet(sheet); err != nil {
				return nil, err
			}
			r.state = stateSheetBody
			return &Event{Kind: EventWorksheet, Sheet: sheet}, nil

		case stateSheetBody:
			if len(r.linkQueue) > 0 {
				l := r.linkQueue[0]
				r.linkQueue = r.linkQueue[1:]
				return &Event{Kind: EventHyperlink, Sheet: r.sheet, Hyperlink: l}, nil
			}
			if r.sheetClosed {
				if err := r.finishSheet(); err != nil {
					return nil, err
				}
				continue
			}
			ev, err := r.pumpStep()
			if ev != nil || err != nil {
				return ev, err
			}
		}
	}
}

// openSheet opens the sheet's container entry, loads its rels part, and
// consumes markup up to the start of the row data, so column definitions
// are already attached when the worksheet event is delivered.
func (r *WorkbookReader) openSheet(sheet *SheetInfo) error {
	body, err := r.archive.Open(sheet.Path)
	if err != nil {
		return fmt.Errorf("worksheet %q: %w", sheet.Name, err)
	}
	r.body = body
	r.src = xmlstream.NewSource(body)
	r.sheet = sheet
	r.sheetRels = nil
	r.masters = make(map[int]sharedMaster)
	r.linkQueue = nil
	r.rowsSeen = 0
	r.lastRow = 0
	r.inSheetData = false
	r.sheetClosed = false
	sheet.Columns = nil

	relsPath := sheetRelsPath(sheet.Path)
	if _, ok := r.archive.Lookup(relsPath); ok {
		rels, err := r.parseRels(relsPath)
		if err != nil {
			return err
		}
		r.sheetRels = rels
	}

	ev, err := r.src.Next()
	if err != nil {
		return err
	}
	if ev.Kind != xmlstream.StartElement || ev.Name != "worksheet" {
		return fmt.Errorf("worksheet %q: expected <worksheet>, found <%s> at %d:%d",
			sheet.Name, ev.Name, ev.Line, ev.Column)
	}
	for !r.inSheetData && !r.sheetClosed {
		if _, err := r.pumpStep(); err != nil {
			return err
		}
	}
	return nil
}

func (r *WorkbookReader) parseRels(path string) (*relationships, error) {
	data, err := r.archive.ReadAll(path)
	if err != nil {
		return nil, err
	}
	model, err := xform.Parse(xmlstream.NewSource(bytes.NewReader(data)), newRelsNode())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rels, _ := model.(*relationships)
	return rels, nil
}

// pumpStep advances the worksheet by one markup section. It returns a
// non-nil event for each row; every other section either fills reader state
// or is skipped.
func (r *WorkbookReader) pumpStep() (*Event, error) {
	ev, err := r.src.Next()
	if err != nil {
		return nil, err
	}
	switch ev.Kind {
	case xmlstream.StartElement:
		if r.inSheetData {
			if ev.Name == "row" {
				return r.readRow(ev)
			}
			return nil, r.src.Skip()
		}
		if r.opts.ignoreNodes[ev.Name] {
			return nil, r.src.Skip()
		}
		switch ev.Name {
		case "sheetData":
			r.inSheetData = true
		case "cols":
			return nil, r.readCols(ev)
		case "hyperlinks":
			return nil, r.readHyperlinks(ev)
		case "dataValidations":
			return nil, r.readValidations(ev)
		default:
			return nil, r.src.Skip()
		}
	case xmlstream.EndElement:
		if r.inSheetData {
			r.inSheetData = false
		} else {
			r.sheetClosed = true
		}
	}
	return nil, nil
}

func (r *WorkbookReader) finishSheet() error {
	err := r.body.Close()
	r.body = nil
	r.src = nil
	r.sheetIdx++
	r.state = stateNextSheet
	return err
}

// parseNode drives node over the source, starting from an already-consumed
// open event, until the node's element closes.
func (r *WorkbookReader) parseNode(node xform.Node, open xmlstream.Event) (any, error) {
	node.Reset()
	done, err := node.Consume(open)
	for !done && err == nil {
		var ev xmlstream.Event
		ev, err = r.src.Next()
		if err != nil {
			break
		}
		done, err = node.Consume(ev)
	}
	if err != nil {
		return nil, err
	}
	return node.Model(), nil
}

// readRow parses one row. The row guard fails the stream as soon as one
// row too many opens.
func (r *WorkbookReader) readRow(open xmlstream.Event) (*Event, error) {
	if r.opts.maxRows > 0 && r.rowsSeen >= r.opts.maxRows {
		return nil, &LimitError{Kind: "row", Limit: r.opts.maxRows}
	}
	model, err := r.parseNode(r.row, open)
	if err != nil {
		return nil, err
	}
	row, _ := model.(*Row)
	r.rowsSeen++
	r.finalizeRow(row)
	return &Event{Kind: EventRow, Sheet: r.sheet, Row: row}, nil
}

// finalizeRow fills in implied positions, resolves cross references, and
// expands shared formulas.
func (r *WorkbookReader) finalizeRow(row *Row) {
	if row.Number == 0 {
		row.Number = r.lastRow + 1
	}
	r.lastRow = row.Number
	col := 0
	for i := range row.Cells {
		c := &row.Cells[i]
		if c.Ref == "" {
			c.Row = row.Number
			c.Col = col + 1
			c.Ref = FormatRef(c.Row, c.Col)
		}
		if c.Col > 0 {
			col = c.Col
		} else {
			col++
		}
	}
	r.row.Reconcile(row, r.ctx())
	for i := range row.Cells {
		c := &row.Cells[i]
		if c.Type != CellFormula || !c.shared {
			continue
		}
		if c.SharedRange != "" && c.Formula != "" {
			r.masters[c.SharedIndex] = sharedMaster{text: c.Formula, ref: c.Ref}
			continue
		}
		if c.Formula != "" {
			continue
		}
		m, ok := r.masters[c.SharedIndex]
		if !ok {
			c.Err = &UnresolvedRefError{Ref: c.Ref, Kind: "shared formula", ID: strconv.Itoa(c.SharedIndex)}
			continue
		}
		text, err := formula.Translate(m.text, m.ref, c.Ref)
		if err != nil {
			c.Err = fmt.Errorf("cell %s: %w", c.Ref, err)
			continue
		}
		c.Formula = text
	}
}

func (r *WorkbookReader) ctx() *xform.Context {
	ctx := &xform.Context{Date1904: r.info.Date1904}
	if r.strings != nil {
		ctx.Strings = r.strings
	}
	if r.styles != nil {
		ctx.Styles = r.styles
	}
	if r.sheetRels != nil {
		ctx.Rels = r.sheetRels
	}
	return ctx
}

func (r *WorkbookReader) readCols(open xmlstream.Event) error {
	model, err := r.parseNode(newColsNode(), open)
	if err != nil {
		return err
	}
	items, _ := model.([]any)
	for _, m := range items {
		if c, ok := m.(Column); ok {
			r.sheet.Columns = append(r.sheet.Columns, c)
		}
	}
	return nil
}

func (r *WorkbookReader) readHyperlinks(open xmlstream.Event) error {
	if r.opts.hyperlinks == HyperlinksNone {
		return r.src.Skip()
	}
	model, err := r.parseNode(newHyperlinksNode(), open)
	if err != nil {
		return err
	}
	items, _ := model.([]any)
	ctx := r.ctx()
	hn := &hyperlinkNode{}
	for _, m := range items {
		l, ok := m.(*Hyperlink)
		if !ok {
			continue
		}
		hn.Reconcile(l, ctx)
		switch r.opts.hyperlinks {
		case HyperlinksEmit:
			r.linkQueue = append(r.linkQueue, l)
		case HyperlinksCache:
			r.hyperlinks = append(r.hyperlinks, l)
		}
	}
	return nil
}

func (r *WorkbookReader) readValidations(open xmlstream.Event) error {
	model, err := r.parseNode(newDataValidationsNode(), open)
	if err != nil {
		return err
	}
	items, _ := model.([]any)
	if len(items) == 0 {
		return nil
	}
	dv := r.validations[r.sheet.Name]
	if dv == nil {
		dv = NewDataValidations()
		r.validations[r.sheet.Name] = dv
	}
	for _, m := range items {
		pv, ok := m.(parsedValidation)
		if !ok || pv.Rule == nil {
			continue
		}
		// a malformed address list is a content defect, not a stream error
		_ = dv.Add(pv.Sqref, pv.Rule)
	}
	return nil
}
