package excelts

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iuioiua/excelts-sub002/container"
)

func openWorkbook(t *testing.T, data []byte, opts ...ReaderOption) *WorkbookReader {
	t.Helper()
	r, err := NewWorkbookReader(bytes.NewReader(data), int64(len(data)), opts...)
	require.NoError(t, err)
	return r
}

func collectEvents(t *testing.T, r *WorkbookReader) []*Event {
	t.Helper()
	var evs []*Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return evs
		}
		require.NoError(t, err)
		evs = append(evs, ev)
	}
}

// buildRawWorkbook assembles an archive from literal part markup, for shapes
// the writer never produces.
func buildRawWorkbook(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	cw := container.NewWriter(&buf)
	for path, body := range parts {
		require.NoError(t, cw.AddEntry(path, []byte(body)))
	}
	require.NoError(t, cw.Close())
	return buf.Bytes()
}

func minimalSheetParts(sheetBody string) map[string]string {
	return map[string]string{
		pathWorkbook: `<workbook><sheets><sheet name="S" sheetId="1" r:id="rId1"/></sheets></workbook>`,
		pathWorkbookRels: `<Relationships><Relationship Id="rId1" Type="` + relTypeWorksheet +
			`" Target="worksheets/sheet1.xml"/></Relationships>`,
		"xl/worksheets/sheet1.xml": sheetBody,
	}
}

func TestReaderEventSequence(t *testing.T) {
	data := writeWorkbook(t, nil, func(w *WorkbookWriter) {
		ws, err := w.AddWorksheet("First")
		require.NoError(t, err)
		require.NoError(t, ws.AddRow(1.0))
		require.NoError(t, ws.AddRow(2.0))

		ws, err = w.AddWorksheet("Second")
		require.NoError(t, err)
		require.NoError(t, ws.AddRow(3.0))
	})

	r := openWorkbook(t, data)
	defer r.Close()

	var kinds []EventKind
	var sheets []string
	for _, ev := range collectEvents(t, r) {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventWorksheet {
			sheets = append(sheets, ev.Sheet.Name)
		}
	}
	assert.Equal(t, []EventKind{
		EventWorksheet, EventRow, EventRow,
		EventWorksheet, EventRow,
		EventFinished,
	}, kinds)
	assert.Equal(t, []string{"First", "Second"}, sheets)

	// The stream stays drained.
	_, err := r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderRowContent(t *testing.T) {
	data := writeWorkbook(t, nil, func(w *WorkbookWriter) {
		ws, err := w.AddWorksheet("S")
		require.NoError(t, err)
		require.NoError(t, ws.AddRow("text", 4.25, true, nil, 7))
	})

	r := openWorkbook(t, data)
	defer r.Close()
	evs := collectEvents(t, r)
	require.Len(t, evs, 3)

	row := evs[1].Row
	require.NotNil(t, row)
	assert.Equal(t, 1, row.Number)
	require.Len(t, row.Cells, 4)

	assert.Equal(t, "A1", row.Cells[0].Ref)
	assert.Equal(t, CellString, row.Cells[0].Type)
	assert.Equal(t, "text", row.Cells[0].Value)

	assert.Equal(t, CellNumber, row.Cells[1].Type)
	assert.Equal(t, 4.25, row.Cells[1].Value)

	assert.Equal(t, CellBool, row.Cells[2].Type)
	assert.Equal(t, true, row.Cells[2].Value)

	// The nil value left column D out entirely; E follows with its own ref.
	assert.Equal(t, "E1", row.Cells[3].Ref)
	assert.Equal(t, 7.0, row.Cells[3].Value)
}

func TestReaderMaxRows(t *testing.T) {
	data := writeWorkbook(t, nil, func(w *WorkbookWriter) {
		ws, err := w.AddWorksheet("Long")
		require.NoError(t, err)
		for i := 0; i < 12; i++ {
			require.NoError(t, ws.AddRow(float64(i)))
		}
	})

	r := openWorkbook(t, data, WithMaxRows(10))
	defer r.Close()

	rows := 0
	var kinds []EventKind
	var limitErr error
	for {
		ev, err := r.Next()
		if err != nil {
			limitErr = err
			break
		}
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventRow {
			rows++
		}
	}
	require.Error(t, limitErr)
	assert.Equal(t, "Max row count (10) exceeded", limitErr.Error())
	assert.Equal(t, 10, rows, "rows within the cap are still delivered")
	assert.NotContains(t, kinds, EventFinished, "a failed read never finishes")

	var limit *LimitError
	require.ErrorAs(t, limitErr, &limit)
	assert.Equal(t, "row", limit.Kind)
	assert.Equal(t, 10, limit.Limit)

	// The error is terminal and repeats.
	_, err := r.Next()
	assert.Same(t, limitErr, err)
}

func TestReaderMaxCols(t *testing.T) {
	data := writeWorkbook(t, nil, func(w *WorkbookWriter) {
		ws, err := w.AddWorksheet("Wide")
		require.NoError(t, err)
		require.NoError(t, ws.AddRow(1.0, 2.0, 3.0, 4.0))
	})

	r := openWorkbook(t, data, WithMaxCols(3))
	defer r.Close()

	_, err := r.Next() // worksheet
	require.NoError(t, err)
	_, err = r.Next()
	require.Error(t, err)
	assert.Equal(t, "Max column count (3) exceeded", err.Error())

	_, again := r.Next()
	assert.Same(t, err, again)
}

func TestReaderRowCountWithinLimitFinishes(t *testing.T) {
	data := writeWorkbook(t, nil, func(w *WorkbookWriter) {
		ws, err := w.AddWorksheet("S")
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			require.NoError(t, ws.AddRow(float64(i)))
		}
	})

	r := openWorkbook(t, data, WithMaxRows(10), WithMaxCols(5))
	defer r.Close()
	evs := collectEvents(t, r)
	assert.Equal(t, EventFinished, evs[len(evs)-1].Kind)
}

func TestReaderIgnoreNodes(t *testing.T) {
	data := writeWorkbook(t, nil, func(w *WorkbookWriter) {
		ws, err := w.AddWorksheet("S")
		require.NoError(t, err)
		require.NoError(t, ws.SetColumns(Column{Min: 1, Max: 1, Width: 20}))
		require.NoError(t, ws.AddRow("x"))
		require.NoError(t, ws.AddValidation("A1", &DataValidation{Type: "list", Formula1: `"a"`}))
	})

	r := openWorkbook(t, data, WithIgnoreNodes("dataValidations", "cols"))
	defer r.Close()
	evs := collectEvents(t, r)

	assert.Nil(t, r.Validations("S"))
	assert.Empty(t, evs[0].Sheet.Columns)

	// Without the option both sections come through.
	r2 := openWorkbook(t, data)
	defer r2.Close()
	evs2 := collectEvents(t, r2)
	require.NotNil(t, r2.Validations("S"))
	assert.NotNil(t, r2.Validations("S").Find("A1"))
	require.Len(t, evs2[0].Sheet.Columns, 1)
	assert.Equal(t, 20.0, evs2[0].Sheet.Columns[0].Width)
}

func TestReaderHyperlinksEmit(t *testing.T) {
	data := writeWorkbook(t, nil, func(w *WorkbookWriter) {
		ws, err := w.AddWorksheet("Links")
		require.NoError(t, err)
		require.NoError(t, ws.AddRow("site"))
		require.NoError(t, ws.AddHyperlink("A1", "https://example.com/a", "first"))
		require.NoError(t, ws.AddHyperlink("B1", "https://example.com/b", ""))

		ws, err = w.AddWorksheet("Plain")
		require.NoError(t, err)
		require.NoError(t, ws.AddRow(1.0))
	})

	r := openWorkbook(t, data, WithHyperlinks(HyperlinksEmit))
	defer r.Close()

	var kinds []EventKind
	var links []*Hyperlink
	for _, ev := range collectEvents(t, r) {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventHyperlink {
			links = append(links, ev.Hyperlink)
		}
	}
	assert.Equal(t, []EventKind{
		EventWorksheet, EventRow, EventHyperlink, EventHyperlink,
		EventWorksheet, EventRow,
		EventFinished,
	}, kinds, "hyperlinks follow their sheet's rows")

	require.Len(t, links, 2)
	assert.Equal(t, "A1", links[0].Ref)
	assert.Equal(t, "https://example.com/a", links[0].Target)
	assert.Equal(t, "first", links[0].Tooltip)
	assert.Equal(t, "https://example.com/b", links[1].Target)

	assert.Empty(t, r.Hyperlinks(), "emitted links are not cached")
}

func TestReaderHyperlinksCache(t *testing.T) {
	data := writeWorkbook(t, nil, func(w *WorkbookWriter) {
		ws, err := w.AddWorksheet("S")
		require.NoError(t, err)
		require.NoError(t, ws.AddRow("site"))
		require.NoError(t, ws.AddHyperlink("A1", "https://example.com/", ""))
	})

	r := openWorkbook(t, data, WithHyperlinks(HyperlinksCache))
	defer r.Close()
	for _, ev := range collectEvents(t, r) {
		assert.NotEqual(t, EventHyperlink, ev.Kind)
	}
	require.Len(t, r.Hyperlinks(), 1)
	assert.Equal(t, "https://example.com/", r.Hyperlinks()[0].Target)
}

func TestReaderHyperlinksSkippedByDefault(t *testing.T) {
	data := writeWorkbook(t, nil, func(w *WorkbookWriter) {
		ws, err := w.AddWorksheet("S")
		require.NoError(t, err)
		require.NoError(t, ws.AddRow("site"))
		require.NoError(t, ws.AddHyperlink("A1", "https://example.com/", ""))
	})

	r := openWorkbook(t, data)
	defer r.Close()
	for _, ev := range collectEvents(t, r) {
		assert.NotEqual(t, EventHyperlink, ev.Kind)
	}
	assert.Empty(t, r.Hyperlinks())
}

func TestReaderHyperlinkWithoutRelsPart(t *testing.T) {
	data := buildRawWorkbook(t, minimalSheetParts(
		`<worksheet><sheetData><row r="1"><c r="A1" t="inlineStr"><is><t>x</t></is></c></row></sheetData>`+
			`<hyperlinks><hyperlink ref="A1" r:id="rId1"/></hyperlinks></worksheet>`))

	r := openWorkbook(t, data, WithHyperlinks(HyperlinksEmit))
	defer r.Close()

	var link *Hyperlink
	for _, ev := range collectEvents(t, r) {
		if ev.Kind == EventHyperlink {
			link = ev.Hyperlink
		}
	}
	require.NotNil(t, link)
	assert.Equal(t, "rId1", link.RelID)
	assert.Empty(t, link.Target, "no rels part leaves the target unresolved")
}

func TestReaderSharedStringsIgnored(t *testing.T) {
	data := writeWorkbook(t, []WriterOption{WithSharedStringsTable(true)},
		func(w *WorkbookWriter) {
			ws, err := w.AddWorksheet("S")
			require.NoError(t, err)
			require.NoError(t, ws.AddRow("alpha", "beta"))
		})

	r := openWorkbook(t, data, WithSharedStrings(TableIgnore))
	defer r.Close()
	assert.Nil(t, r.SharedStrings())

	evs := collectEvents(t, r)
	row := evs[1].Row
	require.Len(t, row.Cells, 2)
	assert.Equal(t, CellSharedString, row.Cells[0].Type)
	assert.Equal(t, 0, row.Cells[0].Value)
	assert.Equal(t, 1, row.Cells[1].Value)
	assert.NoError(t, row.Cells[0].Err)
}

func TestReaderDanglingSharedStringIndex(t *testing.T) {
	parts := minimalSheetParts(
		`<worksheet><sheetData><row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>9</v></c></row></sheetData></worksheet>`)
	parts[pathSharedStrings] = `<sst count="1" uniqueCount="1"><si><t>present</t></si></sst>`
	data := buildRawWorkbook(t, parts)

	r := openWorkbook(t, data)
	defer r.Close()
	evs := collectEvents(t, r)

	row := evs[1].Row
	require.Len(t, row.Cells, 2)
	assert.Equal(t, "present", row.Cells[0].Value)
	assert.NoError(t, row.Cells[0].Err)

	var unresolved *UnresolvedRefError
	require.ErrorAs(t, row.Cells[1].Err, &unresolved)
	assert.Equal(t, "B1", unresolved.Ref)
	assert.Equal(t, "shared string", unresolved.Kind)
	assert.Equal(t, "9", unresolved.ID)
}

func TestReaderMissingSharedStringsPart(t *testing.T) {
	// t="s" cells in a workbook with no string table part: indexes cannot
	// resolve, the rows still flow.
	data := buildRawWorkbook(t, minimalSheetParts(
		`<worksheet><sheetData><row r="1"><c r="A1" t="s"><v>0</v></c></row></sheetData></worksheet>`))

	r := openWorkbook(t, data)
	defer r.Close()
	evs := collectEvents(t, r)

	var unresolved *UnresolvedRefError
	require.ErrorAs(t, evs[1].Row.Cells[0].Err, &unresolved)
}

func TestReaderSharedFormulaExpansion(t *testing.T) {
	data := buildRawWorkbook(t, minimalSheetParts(
		`<worksheet><sheetData>` +
			`<row r="1"><c r="B1"><f t="shared" ref="B1:B3" si="0">SUM(A1:A1)*$C$1</f><v>2</v></c></row>` +
			`<row r="2"><c r="B2"><f t="shared" si="0"/><v>4</v></c></row>` +
			`<row r="3"><c r="B3"><f t="shared" si="0"/><v>6</v></c></row>` +
			`<row r="4"><c r="B4"><f t="shared" si="7"/><v>8</v></c></row>` +
			`</sheetData></worksheet>`))

	r := openWorkbook(t, data)
	defer r.Close()
	evs := collectEvents(t, r)

	var cells []*Cell
	for _, ev := range evs {
		if ev.Kind == EventRow {
			cells = append(cells, &ev.Row.Cells[0])
		}
	}
	require.Len(t, cells, 4)

	assert.Equal(t, "SUM(A1:A1)*$C$1", cells[0].Formula)
	assert.Equal(t, "SUM(A2:A2)*$C$1", cells[1].Formula, "relative refs shift, anchored ones hold")
	assert.Equal(t, "SUM(A3:A3)*$C$1", cells[2].Formula)
	assert.Equal(t, 4.0, cells[1].Result)

	// A member with no master carries a cell-level defect.
	var unresolved *UnresolvedRefError
	require.ErrorAs(t, cells[3].Err, &unresolved)
	assert.Equal(t, "shared formula", unresolved.Kind)
	assert.Equal(t, "7", unresolved.ID)
}

func TestReaderImplicitPositions(t *testing.T) {
	data := buildRawWorkbook(t, minimalSheetParts(
		`<worksheet><sheetData>`+
			`<row><c><v>1</v></c><c><v>2</v></c></row>`+
			`<row><c r="C2"><v>3</v></c><c><v>4</v></c></row>`+
			`</sheetData></worksheet>`))

	r := openWorkbook(t, data)
	defer r.Close()
	evs := collectEvents(t, r)

	first := evs[1].Row
	assert.Equal(t, 1, first.Number)
	assert.Equal(t, "A1", first.Cells[0].Ref)
	assert.Equal(t, "B1", first.Cells[1].Ref)

	second := evs[2].Row
	assert.Equal(t, 2, second.Number, "unnumbered rows advance from the last one")
	assert.Equal(t, "C2", second.Cells[0].Ref)
	assert.Equal(t, "D2", second.Cells[1].Ref, "implied cells continue past explicit ones")
}

func TestReaderSheetStateAndColumns(t *testing.T) {
	data := writeWorkbook(t, nil, func(w *WorkbookWriter) {
		ws, err := w.AddWorksheet("Visible")
		require.NoError(t, err)
		require.NoError(t, ws.SetColumns(Column{Min: 1, Max: 2, Width: 14.5}))
		require.NoError(t, ws.AddRow(1.0))

		ws, err = w.AddWorksheet("Tucked")
		require.NoError(t, err)
		ws.SetState(SheetHidden)
	})

	r := openWorkbook(t, data)
	defer r.Close()

	sheets := r.Sheets()
	require.Len(t, sheets, 2)
	assert.Equal(t, SheetVisible, sheets[0].State)
	assert.Equal(t, SheetHidden, sheets[1].State)

	ev, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, EventWorksheet, ev.Kind)
	require.Len(t, ev.Sheet.Columns, 1, "columns are known when the sheet event arrives")
	assert.Equal(t, 14.5, ev.Sheet.Columns[0].Width)
}

func TestReaderDate1904(t *testing.T) {
	day := date(2024, 5, 20, 9, 30, 0)
	data := writeWorkbook(t, []WriterOption{WithStyleTable(true), WithDate1904(true)},
		func(w *WorkbookWriter) {
			ws, err := w.AddWorksheet("S")
			require.NoError(t, err)
			require.NoError(t, ws.AddRow(day))
		})

	r := openWorkbook(t, data)
	defer r.Close()
	assert.True(t, r.Date1904())

	evs := collectEvents(t, r)
	cell := evs[1].Row.Cells[0]
	assert.Equal(t, CellDate, cell.Type)
	assert.Equal(t, day, cell.Value)
}

func TestReaderMissingWorkbookPart(t *testing.T) {
	data := buildRawWorkbook(t, map[string]string{
		"xl/other.xml": "<other/>",
	})
	_, err := NewWorkbookReader(bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)
	assert.ErrorIs(t, err, container.ErrEntryNotFound)
}

func TestReaderSheetWithoutRelationship(t *testing.T) {
	data := buildRawWorkbook(t, map[string]string{
		pathWorkbook:     `<workbook><sheets><sheet name="S" sheetId="1" r:id="rId9"/></sheets></workbook>`,
		pathWorkbookRels: `<Relationships></Relationships>`,
	})
	_, err := NewWorkbookReader(bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "S": no relationship "rId9"`)
}

func TestReaderMalformedSheetXML(t *testing.T) {
	data := buildRawWorkbook(t, minimalSheetParts(
		`<worksheet><sheetData><row r="1"><c r="A1"><v>1</v></row></sheetData></worksheet>`))

	r := openWorkbook(t, data)
	defer r.Close()

	var err error
	for err == nil {
		_, err = r.Next()
	}
	require.NotEqual(t, io.EOF, err)
	assert.Contains(t, err.Error(), "syntax error")

	_, again := r.Next()
	assert.Same(t, err, again)
}

func TestReaderValidationsParsed(t *testing.T) {
	data := writeWorkbook(t, nil, func(w *WorkbookWriter) {
		ws, err := w.AddWorksheet("Form")
		require.NoError(t, err)
		require.NoError(t, ws.AddRow("x"))
		require.NoError(t, ws.AddValidation("B2:B4", &DataValidation{
			Type: "whole", Operator: "between", Formula1: "1", Formula2: "9",
		}))
	})

	r := openWorkbook(t, data)
	defer r.Close()
	collectEvents(t, r)

	dv := r.Validations("Form")
	require.NotNil(t, dv)
	rule := dv.Find("B3")
	require.NotNil(t, rule)
	assert.Equal(t, "whole", rule.Type)
	assert.Equal(t, "1", rule.Formula1)
	assert.Equal(t, "9", rule.Formula2)
	assert.Nil(t, dv.Find("B5"))
	assert.Nil(t, r.Validations("Other"))
}

func TestOpenFile(t *testing.T) {
	data := writeWorkbook(t, nil, func(w *WorkbookWriter) {
		ws, err := w.AddWorksheet("S")
		require.NoError(t, err)
		require.NoError(t, ws.AddRow("from disk"))
	})
	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := OpenFile(path)
	require.NoError(t, err)
	evs := collectEvents(t, r)
	assert.Equal(t, "from disk", evs[1].Row.Cells[0].Value)
	require.NoError(t, r.Close())

	_, err = OpenFile(filepath.Join(t.TempDir(), "absent.xlsx"))
	require.Error(t, err)
}

func TestReaderEmptySheetData(t *testing.T) {
	data := writeWorkbook(t, nil, func(w *WorkbookWriter) {
		_, err := w.AddWorksheet("Empty")
		require.NoError(t, err)
	})

	r := openWorkbook(t, data)
	defer r.Close()
	evs := collectEvents(t, r)
	require.Len(t, evs, 2)
	assert.Equal(t, EventWorksheet, evs[0].Kind)
	assert.Equal(t, EventFinished, evs[1].Kind)
}

func TestReaderStylesOnCells(t *testing.T) {
	data := writeWorkbook(t, []WriterOption{WithStyleTable(true)},
		func(w *WorkbookWriter) {
			ws, err := w.AddWorksheet("S")
			require.NoError(t, err)
			require.NoError(t, ws.CommitRow(Row{Cells: []Cell{{
				Type:  CellString,
				Value: "loud",
				Style: &Style{Font: &Font{Bold: true, Size: 16, Name: "Arial"}},
			}}}))
		})

	r := openWorkbook(t, data)
	defer r.Close()
	evs := collectEvents(t, r)

	cell := evs[1].Row.Cells[0]
	require.NotNil(t, cell.Style)
	require.NotNil(t, cell.Style.Font)
	assert.True(t, cell.Style.Font.Bold)
	assert.Equal(t, "Arial", cell.Style.Font.Name)
	assert.Equal(t, 16.0, cell.Style.Font.Size)
}

func TestReaderStylesIgnored(t *testing.T) {
	data := writeWorkbook(t, []WriterOption{WithStyleTable(true)},
		func(w *WorkbookWriter) {
			ws, err := w.AddWorksheet("S")
			require.NoError(t, err)
			require.NoError(t, ws.AddRow(date(2024, 1, 15, 0, 0, 0)))
		})

	r := openWorkbook(t, data, WithStyles(TableIgnore))
	defer r.Close()
	assert.Nil(t, r.Styles())

	evs := collectEvents(t, r)
	cell := evs[1].Row.Cells[0]
	assert.Equal(t, CellNumber, cell.Type, "without the style table a date stays a serial")
	assert.Equal(t, 45306.0, cell.Value)
	assert.NotZero(t, cell.StyleID)
	assert.Nil(t, cell.Style)
}
