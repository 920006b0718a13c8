package excelts

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iuioiua/excelts-sub002/xform"
	"github.com/iuioiua/excelts-sub002/xmlstream"
)

func parseMarkup(t *testing.T, node xform.Node, markup string) any {
	t.Helper()
	model, err := xform.Parse(xmlstream.NewSource(strings.NewReader(markup)), node)
	require.NoError(t, err)
	return model
}

func renderMarkup(t *testing.T, node xform.Node, model any) string {
	t.Helper()
	var buf bytes.Buffer
	w := xform.NewWriter(&buf)
	require.NoError(t, node.Render(w, model))
	require.NoError(t, w.Flush())
	return buf.String()
}

func parseCell(t *testing.T, markup string) *Cell {
	t.Helper()
	model := parseMarkup(t, newCellNode(), markup)
	c, ok := model.(*Cell)
	require.True(t, ok)
	return c
}

func TestCellNodeNumber(t *testing.T) {
	c := parseCell(t, `<c r="B2"><v>42.5</v></c>`)
	assert.Equal(t, "B2", c.Ref)
	assert.Equal(t, 2, c.Row)
	assert.Equal(t, 2, c.Col)
	assert.Equal(t, CellNumber, c.Type)
	assert.Equal(t, 42.5, c.Value)
	assert.NoError(t, c.Err)
}

func TestCellNodeSharedString(t *testing.T) {
	c := parseCell(t, `<c r="A1" t="s"><v>7</v></c>`)
	assert.Equal(t, CellSharedString, c.Type)
	assert.Equal(t, 7, c.Value)
}

func TestCellNodeInlineString(t *testing.T) {
	c := parseCell(t, `<c r="A1" t="inlineStr"><is><t>plain</t></is></c>`)
	assert.Equal(t, CellString, c.Type)
	assert.Equal(t, "plain", c.Value)

	// Rich runs concatenate.
	c = parseCell(t, `<c r="A2" t="inlineStr"><is><r><rPr><b/></rPr><t>Hello </t></r><r><t>World</t></r></is></c>`)
	assert.Equal(t, "Hello World", c.Value)
}

func TestCellNodeFormulaString(t *testing.T) {
	c := parseCell(t, `<c r="A1" t="str"><f>CONCAT("a","b")</f><v>ab</v></c>`)
	assert.Equal(t, CellFormula, c.Type)
	assert.Equal(t, `CONCAT("a","b")`, c.Formula)
	assert.Equal(t, "ab", c.Result)
}

func TestCellNodeBoolAndError(t *testing.T) {
	c := parseCell(t, `<c r="A1" t="b"><v>1</v></c>`)
	assert.Equal(t, CellBool, c.Type)
	assert.Equal(t, true, c.Value)

	c = parseCell(t, `<c r="A2" t="e"><v>#DIV/0!</v></c>`)
	assert.Equal(t, CellError, c.Type)
	assert.Equal(t, "#DIV/0!", c.Value)
}

func TestCellNodeISODate(t *testing.T) {
	c := parseCell(t, `<c r="A1" t="d"><v>2024-03-01</v></c>`)
	assert.Equal(t, CellDate, c.Type)
	assert.Equal(t, date(2024, 3, 1, 0, 0, 0), c.Value)
}

func TestCellNodeBlankAndStyle(t *testing.T) {
	c := parseCell(t, `<c r="C3" s="4"/>`)
	assert.Equal(t, CellBlank, c.Type)
	assert.Equal(t, 4, c.StyleID)
}

func TestCellNodeFormulaWithCachedNumber(t *testing.T) {
	c := parseCell(t, `<c r="D4"><f>A1*2</f><v>84</v></c>`)
	assert.Equal(t, CellFormula, c.Type)
	assert.Equal(t, "A1*2", c.Formula)
	assert.Equal(t, 84.0, c.Result)
}

func TestCellNodeSharedFormula(t *testing.T) {
	master := parseCell(t, `<c r="B1"><f t="shared" ref="B1:B3" si="0">A1*2</f><v>2</v></c>`)
	assert.Equal(t, "A1*2", master.Formula)
	assert.Equal(t, "B1:B3", master.SharedRange)
	assert.Equal(t, 0, master.SharedIndex)

	slave := parseCell(t, `<c r="B2"><f t="shared" si="0"/><v>4</v></c>`)
	assert.Equal(t, CellFormula, slave.Type)
	assert.Empty(t, slave.Formula)
	assert.Empty(t, slave.SharedRange)
	assert.Equal(t, 0, slave.SharedIndex)
	assert.Equal(t, 4.0, slave.Result)
}

func TestCellNodeMalformedContent(t *testing.T) {
	c := parseCell(t, `<c r="A1"><v>forty-two</v></c>`)
	require.Error(t, c.Err)
	assert.Contains(t, c.Err.Error(), "malformed number")
	assert.Contains(t, c.Err.Error(), "A1")

	c = parseCell(t, `<c r="A2" t="s"><v>seven</v></c>`)
	require.Error(t, c.Err)
	assert.Contains(t, c.Err.Error(), "malformed shared string index")

	c = parseCell(t, `<c r="A3" t="d"><v>yesterday</v></c>`)
	require.Error(t, c.Err)
	assert.Contains(t, c.Err.Error(), "malformed date")
}

func TestCellNodeUnknownChildSkipped(t *testing.T) {
	c := parseCell(t, `<c r="A1"><extLst><ext uri="x"><probe/></ext></extLst><v>5</v></c>`)
	assert.Equal(t, CellNumber, c.Type)
	assert.Equal(t, 5.0, c.Value)
}

func TestCellRenderRoundTrip(t *testing.T) {
	cells := []*Cell{
		{Ref: "A1", Type: CellNumber, Value: 3.25},
		{Ref: "B1", Type: CellString, Value: "  padded  "},
		{Ref: "C1", Type: CellBool, Value: true},
		{Ref: "D1", Type: CellError, Value: "#REF!"},
		{Ref: "E1", Type: CellFormula, Formula: "SUM(A1:A9)", Result: 12.0},
		{Ref: "F1", Type: CellBlank, StyleID: 2},
	}
	node := newCellNode()
	for _, c := range cells {
		out := renderMarkup(t, node, c)
		got := parseCell(t, out)
		assert.Equal(t, c.Type, got.Type, c.Ref)
		assert.Equal(t, c.Value, got.Value, c.Ref)
		assert.Equal(t, c.Formula, got.Formula, c.Ref)
		assert.Equal(t, c.Result, got.Result, c.Ref)
		assert.Equal(t, c.StyleID, got.StyleID, c.Ref)
	}
}

func TestCellRenderBlankUnstyledIsNothing(t *testing.T) {
	out := renderMarkup(t, newCellNode(), &Cell{Ref: "A1", Type: CellBlank})
	assert.Empty(t, out)
}

func TestCellRenderFormulaErrorResult(t *testing.T) {
	out := renderMarkup(t, newCellNode(), &Cell{
		Ref: "A1", Type: CellFormula, Formula: "1/0", Result: "#DIV/0!",
	})
	assert.Contains(t, out, `t="e"`)

	got := parseCell(t, out)
	assert.Equal(t, "#DIV/0!", got.Result)

	// A plain string result renders as a string formula, not an error.
	out = renderMarkup(t, newCellNode(), &Cell{
		Ref: "A2", Type: CellFormula, Formula: `CONCAT("x")`, Result: "x",
	})
	assert.Contains(t, out, `t="str"`)
}

func TestCellPrepareInternsStrings(t *testing.T) {
	ss := NewSharedStrings()
	c := &Cell{Ref: "A1", Type: CellString, Value: "hello"}
	newCellNode().Prepare(c, &xform.Context{Strings: ss})

	assert.Equal(t, CellSharedString, c.Type)
	assert.Equal(t, 0, c.Value)
	assert.Equal(t, 1, ss.Len())
}

func TestCellPrepareDates(t *testing.T) {
	st := NewStyles()
	c := &Cell{Ref: "A1", Type: CellDate, Value: date(2024, 1, 15, 0, 0, 0)}
	newCellNode().Prepare(c, &xform.Context{Styles: st})

	assert.Equal(t, 45306.0, c.Value, "time becomes a 1900-system serial")
	require.NotZero(t, c.StyleID)
	assert.True(t, st.IsDate(c.StyleID))
}

func TestCellReconcileResolvesSharedString(t *testing.T) {
	ss := NewSharedStrings()
	ss.add("resolved")
	c := &Cell{Ref: "A1", Type: CellSharedString, Value: 0}
	newCellNode().Reconcile(c, &xform.Context{Strings: ss})

	assert.Equal(t, CellString, c.Type)
	assert.Equal(t, "resolved", c.Value)
	assert.NoError(t, c.Err)
}

func TestCellReconcileDanglingIndex(t *testing.T) {
	ss := NewSharedStrings()
	ss.add("only")
	c := &Cell{Ref: "B2", Type: CellSharedString, Value: 5}
	newCellNode().Reconcile(c, &xform.Context{Strings: ss})

	var unresolved *UnresolvedRefError
	require.ErrorAs(t, c.Err, &unresolved)
	assert.Equal(t, "B2", unresolved.Ref)
	assert.Equal(t, "shared string", unresolved.Kind)
	assert.Equal(t, "cell B2: unresolved shared string 5", c.Err.Error())
}

func TestCellReconcileDateStyle(t *testing.T) {
	st := NewStyles()
	idx := st.AddStyle(&Style{NumFmtID: 14})
	c := &Cell{Ref: "A1", Type: CellNumber, Value: 25569.0, StyleID: idx}
	newCellNode().Reconcile(c, &xform.Context{Styles: st})

	assert.Equal(t, CellDate, c.Type)
	assert.Equal(t, date(1970, 1, 1, 0, 0, 0), c.Value)
	require.NotNil(t, c.Style)
	assert.Equal(t, 14, c.Style.NumFmtID)
}

func TestRowNodeAttrs(t *testing.T) {
	model := parseMarkup(t, newRowNode(0),
		`<row r="3" ht="24.5" hidden="1"><c r="A3"><v>1</v></c><c r="B3"><v>2</v></c></row>`)
	row, ok := model.(*Row)
	require.True(t, ok)
	assert.Equal(t, 3, row.Number)
	assert.Equal(t, 24.5, row.Height)
	assert.True(t, row.Hidden)
	require.Len(t, row.Cells, 2)
	assert.Equal(t, 1.0, row.Cells[0].Value)
	assert.Equal(t, 2.0, row.Cells[1].Value)
}

func TestRowNodeColumnGuard(t *testing.T) {
	node := newRowNode(2)
	src := xmlstream.NewSource(strings.NewReader(
		`<row r="1"><c r="A1"><v>1</v></c><c r="B1"><v>2</v></c><c r="C1"><v>3</v></c></row>`))
	_, err := xform.Parse(src, node)
	require.Error(t, err)

	var limit *LimitError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, "column", limit.Kind)
	assert.Equal(t, "Max column count (2) exceeded", err.Error())
}

func TestRowNodeRenderRoundTrip(t *testing.T) {
	row := &Row{Number: 9, Height: 30, Cells: []Cell{
		{Ref: "A9", Row: 9, Col: 1, Type: CellNumber, Value: 1.5},
		{Ref: "C9", Row: 9, Col: 3, Type: CellString, Value: "x"},
	}}
	node := newRowNode(0)
	out := renderMarkup(t, node, row)
	assert.Contains(t, out, `customHeight="1"`)

	node.Reset()
	model := parseMarkup(t, node, out)
	got := model.(*Row)
	assert.Equal(t, row.Number, got.Number)
	assert.Equal(t, row.Height, got.Height)
	require.Len(t, got.Cells, 2)
	assert.Equal(t, "x", got.Cells[1].Value)
}

func TestRowNodeEmptyRendersSelfClosing(t *testing.T) {
	out := renderMarkup(t, newRowNode(0), &Row{Number: 4})
	assert.Equal(t, `<row r="4"/>`, out)
}

func TestColsNode(t *testing.T) {
	model := parseMarkup(t, newColsNode(),
		`<cols><col min="1" max="1" width="18.5" customWidth="1"/><col min="2" max="4" hidden="1" style="3"/></cols>`)
	items, ok := model.([]any)
	require.True(t, ok)
	require.Len(t, items, 2)

	c0 := items[0].(Column)
	assert.Equal(t, Column{Min: 1, Max: 1, Width: 18.5}, c0)
	c1 := items[1].(Column)
	assert.Equal(t, Column{Min: 2, Max: 4, Hidden: true, StyleID: 3}, c1)

	var buf bytes.Buffer
	w := xform.NewWriter(&buf)
	require.NoError(t, renderColumns(w, []Column{c0, c1}))
	require.NoError(t, w.Flush())
	assert.Contains(t, buf.String(), `width="18.5" customWidth="1"`)
	assert.Contains(t, buf.String(), `hidden="1" style="3"`)
}

func TestHyperlinksNode(t *testing.T) {
	model := parseMarkup(t, newHyperlinksNode(),
		`<hyperlinks><hyperlink ref="A1" r:id="rId1" tooltip="docs"/><hyperlink ref="B2" location="Sheet2!A1"/></hyperlinks>`)
	items := model.([]any)
	require.Len(t, items, 2)

	l := items[0].(*Hyperlink)
	assert.Equal(t, "A1", l.Ref)
	assert.Equal(t, "rId1", l.RelID)
	assert.Equal(t, "docs", l.Tooltip)

	rels := newRelationships()
	rels.add(&relationship{ID: "rId1", Type: relTypeHyperlink, Target: "https://example.com/", Mode: "External"})
	(&hyperlinkNode{}).Reconcile(l, &xform.Context{Rels: rels})
	assert.Equal(t, "https://example.com/", l.Target)

	// No rels table: the target stays empty, the anchor still flows.
	internal := items[1].(*Hyperlink)
	(&hyperlinkNode{}).Reconcile(internal, &xform.Context{})
	assert.Empty(t, internal.Target)
}

func TestDataValidationsNode(t *testing.T) {
	model := parseMarkup(t, newDataValidationsNode(),
		`<dataValidations count="1"><dataValidation type="list" allowBlank="1" showErrorMessage="1" errorTitle="Bad" error="pick one" sqref="B2:B5 D1"><formula1>"a,b,c"</formula1></dataValidation></dataValidations>`)
	items := model.([]any)
	require.Len(t, items, 1)

	pv := items[0].(parsedValidation)
	assert.Equal(t, "B2:B5 D1", pv.Sqref)
	assert.Equal(t, "list", pv.Rule.Type)
	assert.True(t, pv.Rule.AllowBlank)
	assert.True(t, pv.Rule.ShowErrorMessage)
	assert.Equal(t, "Bad", pv.Rule.ErrorTitle)
	assert.Equal(t, `"a,b,c"`, pv.Rule.Formula1)
	assert.Empty(t, pv.Rule.Formula2)
}

func TestRenderDataValidations(t *testing.T) {
	dv := NewDataValidations()
	require.NoError(t, dv.Add("B2", &DataValidation{
		Type: "whole", Operator: "between", Formula1: "1", Formula2: "10",
	}))

	var buf bytes.Buffer
	w := xform.NewWriter(&buf)
	require.NoError(t, renderDataValidations(w, dv))
	require.NoError(t, w.Flush())

	out := buf.String()
	assert.Contains(t, out, `<dataValidations count="1">`)
	assert.Contains(t, out, `type="whole" operator="between"`)
	assert.Contains(t, out, `sqref="B2"`)
	assert.Contains(t, out, `<formula1>1</formula1><formula2>10</formula2>`)
}

func TestTextNodeSkipsPhonetics(t *testing.T) {
	model := parseMarkup(t, &textNode{TagName: "si"},
		`<si><t>東京</t><rPh sb="0" eb="2"><t>トウキョウ</t></rPh><phoneticPr fontId="1"/></si>`)
	assert.Equal(t, "東京", model)
}

func TestSstNodeParse(t *testing.T) {
	table := NewSharedStrings()
	parseMarkup(t, newSstNode(table),
		`<sst count="3" uniqueCount="2"><si><t>a</t></si><si><t xml:space="preserve"> b </t></si></sst>`)
	require.Equal(t, 2, table.Len())
	v, _ := table.Value(1)
	assert.Equal(t, " b ", v)
}

func TestSstNodeRender(t *testing.T) {
	table := NewSharedStrings()
	table.Intern("first")
	table.Intern("second")
	table.Intern("first")

	out := renderMarkup(t, newSstNode(table), table)
	assert.Contains(t, out, `count="3"`)
	assert.Contains(t, out, `uniqueCount="2"`)
	assert.Contains(t, out, "<si><t>first</t></si><si><t>second</t></si>")

	reparsed := NewSharedStrings()
	parseMarkup(t, newSstNode(reparsed), out)
	assert.Equal(t, 2, reparsed.Len())
}

func TestStylesNodeParse(t *testing.T) {
	markup := `<styleSheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">` +
		`<numFmts count="1"><numFmt numFmtId="164" formatCode="yyyy-mm-dd"/></numFmts>` +
		`<fonts count="2"><font><sz val="11"/><name val="Calibri"/></font>` +
		`<font><b/><sz val="14"/><color rgb="FFFF0000"/><name val="Arial"/></font></fonts>` +
		`<fills count="1"><fill><patternFill patternType="none"/></fill></fills>` +
		`<cellXfs count="3"><xf numFmtId="0" fontId="0"/><xf numFmtId="164" fontId="1" applyNumberFormat="1"/>` +
		`<xf numFmtId="14" fontId="0"/></cellXfs></styleSheet>`

	table := emptyStyles()
	parseMarkup(t, newStylesNode(table), markup)

	assert.Equal(t, 3, table.Len())
	s, ok := table.Style(1)
	require.True(t, ok)
	assert.Equal(t, "yyyy-mm-dd", s.NumFmt)
	require.NotNil(t, s.Font)
	assert.True(t, s.Font.Bold)
	assert.Equal(t, 14.0, s.Font.Size)
	assert.Equal(t, "FFFF0000", s.Font.Color)
	assert.Equal(t, "Arial", s.Font.Name)

	assert.True(t, table.IsDate(1))
	assert.True(t, table.IsDate(2))
	assert.False(t, table.IsDate(0))
}

func TestStylesNodeRenderRoundTrip(t *testing.T) {
	table := NewStyles()
	bold := table.AddStyle(&Style{Font: &Font{Bold: true, Size: 12, Name: "Arial"}})
	dated := table.AddStyle(&Style{NumFmt: "dd/mm/yyyy"})

	out := renderMarkup(t, newStylesNode(table), table)
	assert.Contains(t, out, `<numFmt numFmtId="164" formatCode="dd/mm/yyyy"/>`)
	assert.Contains(t, out, "<fills")
	assert.Contains(t, out, "<borders")
	assert.Contains(t, out, "cellStyleXfs")

	reparsed := emptyStyles()
	parseMarkup(t, newStylesNode(reparsed), out)
	require.Equal(t, table.Len(), reparsed.Len())

	s, ok := reparsed.Style(bold)
	require.True(t, ok)
	require.NotNil(t, s.Font)
	assert.True(t, s.Font.Bold)
	assert.Equal(t, "Arial", s.Font.Name)

	assert.True(t, reparsed.IsDate(dated))
}

func TestWorkbookNodeParse(t *testing.T) {
	markup := `<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"` +
		` xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">` +
		`<workbookPr date1904="1"/>` +
		`<sheets><sheet name="Data" sheetId="1" r:id="rId1"/>` +
		`<sheet name="Archive" sheetId="5" state="hidden" r:id="rId2"/></sheets>` +
		`<calcPr calcId="191029"/></workbook>`

	model := parseMarkup(t, newWorkbookNode(), markup)
	info, ok := model.(*workbookInfo)
	require.True(t, ok)
	assert.True(t, info.Date1904)
	require.Len(t, info.Sheets, 2)

	assert.Equal(t, "Data", info.Sheets[0].Name)
	assert.Equal(t, 1, info.Sheets[0].SheetID)
	assert.Equal(t, "rId1", info.Sheets[0].RelID)
	assert.Equal(t, SheetVisible, info.Sheets[0].State)

	assert.Equal(t, "Archive", info.Sheets[1].Name)
	assert.Equal(t, SheetHidden, info.Sheets[1].State)
}

func TestWorkbookNodeRenderRoundTrip(t *testing.T) {
	info := &workbookInfo{
		Date1904: true,
		Sheets: []*SheetInfo{
			{Name: "One", SheetID: 1, RelID: "rId1", State: SheetVisible},
			{Name: "Two", SheetID: 2, RelID: "rId2", State: SheetVeryHidden},
		},
	}
	out := renderMarkup(t, newWorkbookNode(), info)
	assert.Contains(t, out, `date1904="1"`)
	assert.Contains(t, out, `state="veryHidden"`)
	assert.NotContains(t, out, `state="visible"`)

	got := parseMarkup(t, newWorkbookNode(), out).(*workbookInfo)
	assert.True(t, got.Date1904)
	require.Len(t, got.Sheets, 2)
	assert.Equal(t, "Two", got.Sheets[1].Name)
	assert.Equal(t, SheetVeryHidden, got.Sheets[1].State)
}

func TestRelsNodeParse(t *testing.T) {
	markup := `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId1" Type="` + relTypeWorksheet + `" Target="worksheets/sheet1.xml"/>` +
		`<Relationship Id="rId2" Type="` + relTypeHyperlink + `" Target="https://example.com/" TargetMode="External"/>` +
		`</Relationships>`

	model := parseMarkup(t, newRelsNode(), markup)
	rels, ok := model.(*relationships)
	require.True(t, ok)

	target, found := rels.Target("rId1")
	assert.True(t, found)
	assert.Equal(t, "worksheets/sheet1.xml", target)

	_, found = rels.Target("rId9")
	assert.False(t, found)

	r := rels.byType(relTypeHyperlink)
	require.NotNil(t, r)
	assert.Equal(t, "External", r.Mode)
	assert.Nil(t, rels.byType(relTypeStyles))
}

func TestRelsNodeRenderRoundTrip(t *testing.T) {
	rels := newRelationships()
	r1 := rels.addNew(relTypeWorksheet, "worksheets/sheet1.xml", "")
	r2 := rels.addNew(relTypeHyperlink, "https://example.com/", "External")
	assert.Equal(t, "rId1", r1.ID)
	assert.Equal(t, "rId2", r2.ID)

	out := renderMarkup(t, newRelsNode(), rels)
	assert.Contains(t, out, `TargetMode="External"`)

	got := parseMarkup(t, newRelsNode(), out).(*relationships)
	target, found := got.Target("rId2")
	assert.True(t, found)
	assert.Equal(t, "https://example.com/", target)
}

func TestResolveTarget(t *testing.T) {
	assert.Equal(t, "xl/worksheets/sheet1.xml", resolveTarget("xl/", "worksheets/sheet1.xml"))
	assert.Equal(t, "xl/styles.xml", resolveTarget("xl/", "styles.xml"))
	assert.Equal(t, "docProps/core.xml", resolveTarget("xl/", "/docProps/core.xml"))
	assert.Equal(t, "xl/workbook.xml", resolveTarget("", "xl/workbook.xml"))
}

func TestNilRelationshipsLookup(t *testing.T) {
	var rels *relationships
	_, found := rels.Target("rId1")
	assert.False(t, found)
}

func TestParseTruncatedDocument(t *testing.T) {
	src := xmlstream.NewSource(strings.NewReader(`<row r="1"><c r="A1"><v>1</v></c>`))
	_, err := xform.Parse(src, newRowNode(0))
	require.Error(t, err)
}

func TestXMLSyntaxErrorCarriesPosition(t *testing.T) {
	src := xmlstream.NewSource(strings.NewReader("<row r=\"1\">\n  <c r=\"A1\"><v>1</v></wrong>"))
	_, err := xform.Parse(src, newRowNode(0))
	require.Error(t, err)

	var syn *xmlstream.SyntaxError
	require.ErrorAs(t, err, &syn)
	assert.Equal(t, 2, syn.Line)
	assert.Positive(t, syn.Column)
}
