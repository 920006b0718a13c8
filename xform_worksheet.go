package excelts

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iuioiua/excelts-sub002/xform"
	"github.com/iuioiua/excelts-sub002/xmlstream"
)

// cellNode handles one <c> element. A parse captures the address, format
// index and type code from the attributes, collects <v>, <f> and inline
// string children, and finalizes a typed Cell on close. Reconcile resolves
// shared-string indexes and date formats once the workbook tables are
// known; Prepare runs the other direction, interning strings and styles
// before a render.
type cellNode struct {
	xform.Base

	cell       *Cell
	typeCode   string
	value      strings.Builder
	formula    strings.Builder
	is         *textNode
	inlineText string
	inIs       bool
	inValue    bool
	inFormula  bool
	hasValue   bool
	hasFormula bool
	started    bool
	depth      int
	skipDepth  int
}

func newCellNode() *cellNode {
	return &cellNode{is: &textNode{TagName: "is"}}
}

func (n *cellNode) Tag() string { return "c" }
func (n *cellNode) Model() any  { return n.cell }

func (n *cellNode) Reset() {
	n.cell = nil
	n.typeCode = ""
	n.value.Reset()
	n.formula.Reset()
	n.is.Reset()
	n.inlineText = ""
	n.inIs = false
	n.inValue = false
	n.inFormula = false
	n.hasValue = false
	n.hasFormula = false
	n.started = false
	n.depth = 0
	n.skipDepth = 0
}

func (n *cellNode) Consume(ev xmlstream.Event) (bool, error) {
	if n.skipDepth > 0 {
		switch ev.Kind {
		case xmlstream.StartElement:
			n.skipDepth++
		case xmlstream.EndElement:
			n.skipDepth--
		}
		return false, nil
	}
	if n.inIs {
		done, err := n.is.Consume(ev)
		if err != nil {
			return false, err
		}
		if done {
			n.inlineText, _ = n.is.Model().(string)
			n.is.Reset()
			n.inIs = false
		}
		return false, nil
	}
	switch ev.Kind {
	case xmlstream.StartElement:
		if !n.started {
			if ev.Name != "c" {
				return false, fmt.Errorf("expected <c>, found <%s> at %d:%d", ev.Name, ev.Line, ev.Column)
			}
			n.cell = cellFromAttrs(ev)
			n.typeCode = ev.Attr("t")
			n.started = true
			return false, nil
		}
		switch ev.Name {
		case "v":
			n.inValue = true
			n.hasValue = true
			n.depth++
		case "f":
			n.inFormula = true
			n.hasFormula = true
			if ev.Attr("t") == "shared" {
				n.cell.shared = true
				if si := ev.Attr("si"); si != "" {
					n.cell.SharedIndex, _ = strconv.Atoi(si)
				}
				n.cell.SharedRange = ev.Attr("ref")
			}
			n.depth++
		case "is":
			n.inIs = true
			return n.Consume(ev)
		default:
			n.skipDepth = 1
		}
	case xmlstream.CharData:
		if n.inValue {
			n.value.WriteString(ev.Text)
		}
		if n.inFormula {
			n.formula.WriteString(ev.Text)
		}
	case xmlstream.EndElement:
		if n.depth == 0 {
			n.finish()
			return true, nil
		}
		n.depth--
		switch ev.Name {
		case "v":
			n.inValue = false
		case "f":
			n.inFormula = false
		}
	}
	return false, nil
}

func cellFromAttrs(ev xmlstream.Event) *Cell {
	c := &Cell{Ref: ev.Attr("r")}
	if c.Ref != "" {
		if row, col, err := ParseRef(c.Ref); err == nil {
			c.Row, c.Col = row, col
		}
	}
	if s := ev.Attr("s"); s != "" {
		c.StyleID, _ = strconv.Atoi(s)
	}
	return c
}

// finish assigns the typed value once the element closes. Content defects
// such as an unparsable number land on Cell.Err instead of failing the
// stream.
func (n *cellNode) finish() {
	c := n.cell
	raw := n.value.String()
	if n.hasFormula {
		c.Type = CellFormula
		c.Formula = n.formula.String()
		if n.hasValue {
			c.Result = n.typedResult(raw)
		}
		return
	}
	switch n.typeCode {
	case "", "n":
		if !n.hasValue || raw == "" {
			c.Type = CellBlank
			return
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.Err = fmt.Errorf("cell %s: malformed number %q", c.Ref, raw)
			return
		}
		c.Type = CellNumber
		c.Value = v
	case "s":
		i, err := strconv.Atoi(raw)
		if err != nil {
			c.Err = fmt.Errorf("cell %s: malformed shared string index %q", c.Ref, raw)
			return
		}
		c.Type = CellSharedString
		c.Value = i
	case "inlineStr":
		c.Type = CellString
		c.Value = n.inlineText
	case "str":
		c.Type = CellString
		c.Value = raw
	case "b":
		c.Type = CellBool
		c.Value = raw == "1" || raw == "true"
	case "e":
		c.Type = CellError
		c.Value = raw
	case "d":
		t, err := parseISODate(raw)
		if err != nil {
			c.Err = fmt.Errorf("cell %s: malformed date %q", c.Ref, raw)
			return
		}
		c.Type = CellDate
		c.Value = t
	default:
		c.Type = CellString
		c.Value = raw
	}
}

func (n *cellNode) typedResult(raw string) any {
	switch n.typeCode {
	case "str":
		return raw
	case "b":
		return raw == "1" || raw == "true"
	case "e":
		return raw
	default:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
		return raw
	}
}

func parseISODate(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func (n *cellNode) Prepare(model any, ctx *xform.Context) {
	c, _ := model.(*Cell)
	if c == nil {
		return
	}
	if t, ok := c.Value.(time.Time); ok {
		c.Value = TimeToSerial(t, ctx.Date1904)
	}
	if c.Type == CellDate && c.Style == nil && c.StyleID == 0 && ctx.Styles != nil {
		c.Style = &Style{NumFmtID: NumFmtDate}
	}
	if c.Type == CellString && ctx.Strings != nil {
		if s, ok := c.Value.(string); ok {
			c.Type = CellSharedString
			c.Value = ctx.Strings.Intern(s)
		}
	}
	if ctx.Styles != nil && c.Style != nil {
		c.StyleID = ctx.Styles.Intern(c.Style)
	}
}

func (n *cellNode) Reconcile(model any, ctx *xform.Context) {
	c, _ := model.(*Cell)
	if c == nil {
		return
	}
	if c.Type == CellSharedString && ctx.Strings != nil {
		if idx, ok := c.Value.(int); ok {
			if s, found := ctx.Strings.Value(idx); found {
				c.Type = CellString
				c.Value = s
			} else {
				c.Err = &UnresolvedRefError{Ref: c.Ref, Kind: "shared string", ID: strconv.Itoa(idx)}
			}
		}
	}
	if ctx.Styles == nil {
		return
	}
	if c.StyleID != 0 {
		if s, ok := ctx.Styles.Resolve(c.StyleID); ok {
			c.Style, _ = s.(*Style)
		}
		if c.Type == CellNumber && ctx.Styles.IsDate(c.StyleID) {
			if v, ok := c.Value.(float64); ok {
				c.Type = CellDate
				c.Value = SerialToTime(v, ctx.Date1904)
			}
		}
	}
}

func (n *cellNode) Render(w *xform.Writer, model any) error {
	c, _ := model.(*Cell)
	if c == nil {
		return nil
	}
	attrs := []string{"r", c.Ref}
	if c.StyleID != 0 {
		attrs = append(attrs, "s", strconv.Itoa(c.StyleID))
	}
	switch c.Type {
	case CellBlank:
		if c.StyleID != 0 {
			w.Empty("c", attrs...)
		}
	case CellNumber, CellDate:
		w.Open("c", attrs...)
		w.Elem("v", formatCellNumber(c.Value))
		w.Close("c")
	case CellSharedString:
		idx, _ := c.Value.(int)
		attrs = append(attrs, "t", "s")
		w.Open("c", attrs...)
		w.Elem("v", strconv.Itoa(idx))
		w.Close("c")
	case CellString:
		s, _ := c.Value.(string)
		attrs = append(attrs, "t", "inlineStr")
		w.Open("c", attrs...)
		w.Open("is")
		writeTextElem(w, s)
		w.Close("is")
		w.Close("c")
	case CellBool:
		b, _ := c.Value.(bool)
		attrs = append(attrs, "t", "b")
		w.Open("c", attrs...)
		w.Elem("v", boolMarkup(b))
		w.Close("c")
	case CellError:
		s, _ := c.Value.(string)
		attrs = append(attrs, "t", "e")
		w.Open("c", attrs...)
		w.Elem("v", s)
		w.Close("c")
	case CellFormula:
		n.renderFormula(w, c, attrs)
	}
	return w.Err()
}

func (n *cellNode) renderFormula(w *xform.Writer, c *Cell, attrs []string) {
	switch r := c.Result.(type) {
	case string:
		if isErrorLiteral(r) {
			attrs = append(attrs, "t", "e")
		} else {
			attrs = append(attrs, "t", "str")
		}
	case bool:
		attrs = append(attrs, "t", "b")
	}
	w.Open("c", attrs...)
	switch {
	case c.SharedRange != "":
		w.Open("f", "t", "shared", "ref", c.SharedRange, "si", strconv.Itoa(c.SharedIndex))
		w.Text(c.Formula)
		w.Close("f")
	case c.shared:
		w.Empty("f", "t", "shared", "si", strconv.Itoa(c.SharedIndex))
	default:
		w.Elem("f", c.Formula)
	}
	switch r := c.Result.(type) {
	case float64:
		w.Elem("v", strconv.FormatFloat(r, 'f', -1, 64))
	case bool:
		w.Elem("v", boolMarkup(r))
	case string:
		w.Elem("v", r)
	}
	w.Close("c")
}

func formatCellNumber(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		// a date cell rendered without Prepare; serial in the 1900 system
		return strconv.FormatFloat(TimeToSerial(x, false), 'f', -1, 64)
	default:
		return ""
	}
}

func boolMarkup(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

var errorLiterals = map[string]bool{
	"#NULL!": true, "#DIV/0!": true, "#VALUE!": true, "#REF!": true,
	"#NAME?": true, "#NUM!": true, "#N/A": true, "#GETTING_DATA": true,
}

func isErrorLiteral(s string) bool {
	return errorLiterals[s]
}

// rowNode handles one <row> element. It captures the row attributes itself
// and delegates the cell sequence to a list node, which also carries the
// column guard: one cell past the configured cap fails the parse
// immediately.
type rowNode struct {
	xform.Base
	list    *xform.ListNode
	cell    *cellNode
	row     *Row
	started bool
}

func newRowNode(maxCols int) *rowNode {
	cn := newCellNode()
	n := &rowNode{cell: cn, list: &xform.ListNode{TagName: "row", Child: cn}}
	if maxCols > 0 {
		n.list.Max = maxCols
		n.list.MaxErr = &LimitError{Kind: "column", Limit: maxCols}
	}
	return n
}

func (n *rowNode) Tag() string { return "row" }
func (n *rowNode) Model() any  { return n.row }

func (n *rowNode) Reset() {
	n.list.Reset()
	n.row = nil
	n.started = false
}

func (n *rowNode) Consume(ev xmlstream.Event) (bool, error) {
	if !n.started && ev.Kind == xmlstream.StartElement {
		n.row = rowFromAttrs(ev)
		n.started = true
	}
	done, err := n.list.Consume(ev)
	if err != nil || !done {
		return false, err
	}
	items, _ := n.list.Model().([]any)
	for _, m := range items {
		if c, ok := m.(*Cell); ok {
			n.row.Cells = append(n.row.Cells, *c)
		}
	}
	return true, nil
}

func rowFromAttrs(ev xmlstream.Event) *Row {
	r := &Row{}
	if v := ev.Attr("r"); v != "" {
		r.Number, _ = strconv.Atoi(v)
	}
	if v := ev.Attr("ht"); v != "" {
		r.Height, _ = strconv.ParseFloat(v, 64)
	}
	r.Hidden = boolAttr(ev, "hidden")
	return r
}

func (n *rowNode) Prepare(model any, ctx *xform.Context) {
	r, _ := model.(*Row)
	if r == nil {
		return
	}
	for i := range r.Cells {
		n.cell.Prepare(&r.Cells[i], ctx)
	}
}

func (n *rowNode) Reconcile(model any, ctx *xform.Context) {
	r, _ := model.(*Row)
	if r == nil {
		return
	}
	for i := range r.Cells {
		n.cell.Reconcile(&r.Cells[i], ctx)
	}
}

func (n *rowNode) Render(w *xform.Writer, model any) error {
	r, _ := model.(*Row)
	if r == nil {
		return nil
	}
	attrs := []string{"r", strconv.Itoa(r.Number)}
	if r.Height > 0 {
		attrs = append(attrs, "ht", formatFloatAttr(r.Height), "customHeight", "1")
	}
	if r.Hidden {
		attrs = append(attrs, "hidden", "1")
	}
	if len(r.Cells) == 0 {
		w.Empty("row", attrs...)
		return w.Err()
	}
	w.Open("row", attrs...)
	for i := range r.Cells {
		if err := n.cell.Render(w, &r.Cells[i]); err != nil {
			return err
		}
	}
	w.Close("row")
	return w.Err()
}

func formatFloatAttr(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// colNode handles one <col> definition inside <cols>.
type colNode struct {
	xform.Base
	col       Column
	started   bool
	skipDepth int
}

func newColsNode() *xform.ListNode {
	return &xform.ListNode{TagName: "cols", Child: &colNode{}}
}

func (n *colNode) Tag() string { return "col" }
func (n *colNode) Model() any  { return n.col }

func (n *colNode) Reset() {
	n.col = Column{}
	n.started = false
	n.skipDepth = 0
}

func (n *colNode) Consume(ev xmlstream.Event) (bool, error) {
	if n.skipDepth > 0 {
		switch ev.Kind {
		case xmlstream.StartElement:
			n.skipDepth++
		case xmlstream.EndElement:
			n.skipDepth--
		}
		return false, nil
	}
	switch ev.Kind {
	case xmlstream.StartElement:
		if !n.started {
			n.col = columnFromAttrs(ev)
			n.started = true
			return false, nil
		}
		n.skipDepth = 1
	case xmlstream.EndElement:
		return true, nil
	}
	return false, nil
}

func columnFromAttrs(ev xmlstream.Event) Column {
	c := Column{}
	c.Min, _ = strconv.Atoi(ev.Attr("min"))
	c.Max, _ = strconv.Atoi(ev.Attr("max"))
	if v := ev.Attr("width"); v != "" {
		c.Width, _ = strconv.ParseFloat(v, 64)
	}
	c.Hidden = boolAttr(ev, "hidden")
	if v := ev.Attr("style"); v != "" {
		c.StyleID, _ = strconv.Atoi(v)
	}
	return c
}

func (n *colNode) Render(w *xform.Writer, model any) error {
	c, _ := model.(Column)
	attrs := []string{"min", strconv.Itoa(c.Min), "max", strconv.Itoa(c.Max)}
	if c.Width > 0 {
		attrs = append(attrs, "width", formatFloatAttr(c.Width), "customWidth", "1")
	}
	if c.Hidden {
		attrs = append(attrs, "hidden", "1")
	}
	if c.StyleID != 0 {
		attrs = append(attrs, "style", strconv.Itoa(c.StyleID))
	}
	w.Empty("col", attrs...)
	return w.Err()
}

func renderColumns(w *xform.Writer, cols []Column) error {
	if len(cols) == 0 {
		return nil
	}
	cn := &colNode{}
	w.Open("cols")
	for _, c := range cols {
		if err := cn.Render(w, c); err != nil {
			return err
		}
	}
	w.Close("cols")
	return w.Err()
}

// hyperlinkNode handles one <hyperlink> anchor. The target URL lives in the
// sheet's rels part; Reconcile fills it in when that table is present and
// leaves it empty otherwise.
type hyperlinkNode struct {
	xform.Base
	link      *Hyperlink
	started   bool
	skipDepth int
}

func newHyperlinksNode() *xform.ListNode {
	return &xform.ListNode{TagName: "hyperlinks", Child: &hyperlinkNode{}}
}

func (n *hyperlinkNode) Tag() string { return "hyperlink" }
func (n *hyperlinkNode) Model() any  { return n.link }

func (n *hyperlinkNode) Reset() {
	n.link = nil
	n.started = false
	n.skipDepth = 0
}

func (n *hyperlinkNode) Consume(ev xmlstream.Event) (bool, error) {
	if n.skipDepth > 0 {
		switch ev.Kind {
		case xmlstream.StartElement:
			n.skipDepth++
		case xmlstream.EndElement:
			n.skipDepth--
		}
		return false, nil
	}
	switch ev.Kind {
	case xmlstream.StartElement:
		if !n.started {
			n.link = &Hyperlink{
				Ref:     ev.Attr("ref"),
				RelID:   ev.Attr("id"),
				Tooltip: ev.Attr("tooltip"),
			}
			n.started = true
			return false, nil
		}
		n.skipDepth = 1
	case xmlstream.EndElement:
		return true, nil
	}
	return false, nil
}

func (n *hyperlinkNode) Reconcile(model any, ctx *xform.Context) {
	l, _ := model.(*Hyperlink)
	if l == nil || l.RelID == "" || ctx.Rels == nil {
		return
	}
	if target, ok := ctx.Rels.Target(l.RelID); ok {
		l.Target = target
	}
}

func (n *hyperlinkNode) Render(w *xform.Writer, model any) error {
	l, _ := model.(*Hyperlink)
	if l == nil {
		return nil
	}
	attrs := []string{"ref", l.Ref}
	if l.RelID != "" {
		attrs = append(attrs, "r:id", l.RelID)
	}
	if l.Tooltip != "" {
		attrs = append(attrs, "tooltip", l.Tooltip)
	}
	w.Empty("hyperlink", attrs...)
	return w.Err()
}

func renderHyperlinks(w *xform.Writer, links []*Hyperlink) error {
	if len(links) == 0 {
		return nil
	}
	hn := &hyperlinkNode{}
	w.Open("hyperlinks")
	for _, l := range links {
		if err := hn.Render(w, l); err != nil {
			return err
		}
	}
	w.Close("hyperlinks")
	return w.Err()
}

// parsedValidation pairs one rule with the address list it was declared
// for.
type parsedValidation struct {
	Sqref string
	Rule  *DataValidation
}

// dataValidationNode handles one <dataValidation> element.
type dataValidationNode struct {
	xform.Base
	val       parsedValidation
	formula1  strings.Builder
	formula2  strings.Builder
	inFormula int
	started   bool
	depth     int
	skipDepth int
}

func newDataValidationsNode() *xform.ListNode {
	return &xform.ListNode{TagName: "dataValidations", Child: &dataValidationNode{}}
}

func (n *dataValidationNode) Tag() string { return "dataValidation" }
func (n *dataValidationNode) Model() any  { return n.val }

func (n *dataValidationNode) Reset() {
	n.val = parsedValidation{}
	n.formula1.Reset()
	n.formula2.Reset()
	n.inFormula = 0
	n.started = false
	n.depth = 0
	n.skipDepth = 0
}

func (n *dataValidationNode) Consume(ev xmlstream.Event) (bool, error) {
	if n.skipDepth > 0 {
		switch ev.Kind {
		case xmlstream.StartElement:
			n.skipDepth++
		case xmlstream.EndElement:
			n.skipDepth--
		}
		return false, nil
	}
	switch ev.Kind {
	case xmlstream.StartElement:
		if !n.started {
			n.val = parsedValidation{
				Sqref: ev.Attr("sqref"),
				Rule: &DataValidation{
					Type:             ev.Attr("type"),
					Operator:         ev.Attr("operator"),
					AllowBlank:       boolAttr(ev, "allowBlank"),
					ShowInputMessage: boolAttr(ev, "showInputMessage"),
					ShowErrorMessage: boolAttr(ev, "showErrorMessage"),
					PromptTitle:      ev.Attr("promptTitle"),
					Prompt:           ev.Attr("prompt"),
					ErrorStyle:       ev.Attr("errorStyle"),
					ErrorTitle:       ev.Attr("errorTitle"),
					Error:            ev.Attr("error"),
				},
			}
			n.started = true
			return false, nil
		}
		switch ev.Name {
		case "formula1":
			n.inFormula = 1
			n.depth++
		case "formula2":
			n.inFormula = 2
			n.depth++
		default:
			n.skipDepth = 1
		}
	case xmlstream.CharData:
		switch n.inFormula {
		case 1:
			n.formula1.WriteString(ev.Text)
		case 2:
			n.formula2.WriteString(ev.Text)
		}
	case xmlstream.EndElement:
		if n.depth == 0 {
			n.val.Rule.Formula1 = n.formula1.String()
			n.val.Rule.Formula2 = n.formula2.String()
			return true, nil
		}
		n.depth--
		n.inFormula = 0
	}
	return false, nil
}

func (n *dataValidationNode) Render(w *xform.Writer, model any) error {
	v, _ := model.(parsedValidation)
	rule := v.Rule
	if rule == nil {
		return nil
	}
	var attrs []string
	if rule.Type != "" {
		attrs = append(attrs, "type", rule.Type)
	}
	if rule.Operator != "" {
		attrs = append(attrs, "operator", rule.Operator)
	}
	if rule.AllowBlank {
		attrs = append(attrs, "allowBlank", "1")
	}
	if rule.ShowInputMessage {
		attrs = append(attrs, "showInputMessage", "1")
	}
	if rule.ShowErrorMessage {
		attrs = append(attrs, "showErrorMessage", "1")
	}
	if rule.ErrorStyle != "" {
		attrs = append(attrs, "errorStyle", rule.ErrorStyle)
	}
	if rule.ErrorTitle != "" {
		attrs = append(attrs, "errorTitle", rule.ErrorTitle)
	}
	if rule.Error != "" {
		attrs = append(attrs, "error", rule.Error)
	}
	if rule.PromptTitle != "" {
		attrs = append(attrs, "promptTitle", rule.PromptTitle)
	}
	if rule.Prompt != "" {
		attrs = append(attrs, "prompt", rule.Prompt)
	}
	attrs = append(attrs, "sqref", v.Sqref)
	if rule.Formula1 == "" && rule.Formula2 == "" {
		w.Empty("dataValidation", attrs...)
		return w.Err()
	}
	w.Open("dataValidation", attrs...)
	if rule.Formula1 != "" {
		w.Elem("formula1", rule.Formula1)
	}
	if rule.Formula2 != "" {
		w.Elem("formula2", rule.Formula2)
	}
	w.Close("dataValidation")
	return w.Err()
}

func renderDataValidations(w *xform.Writer, dv *DataValidations) error {
	if dv == nil {
		return nil
	}
	gs := dv.groups()
	if len(gs) == 0 {
		return nil
	}
	node := &dataValidationNode{}
	w.Open("dataValidations", "count", strconv.Itoa(len(gs)))
	for _, g := range gs {
		pv := parsedValidation{Sqref: strings.Join(g.refs, " "), Rule: g.rule}
		if err := node.Render(w, pv); err != nil {
			return err
		}
	}
	w.Close("dataValidations")
	return w.Err()
}
