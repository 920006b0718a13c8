package excelts

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/iuioiua/excelts-sub002/xform"
	"github.com/iuioiua/excelts-sub002/xmlstream"
)

// stylesNode parses the format part into a Styles registry: custom number
// formats, fonts, and the cell-format records cells reference by index.
// Fills, borders and the remaining sections pass through unconsumed; the
// renderer emits fixed defaults for them.
type stylesNode struct {
	xform.Base
	table *Styles

	started   bool
	stack     []string
	font      *Font
	skipDepth int
}

func newStylesNode(table *Styles) *stylesNode {
	return &stylesNode{table: table}
}

func (n *stylesNode) Tag() string { return "styleSheet" }
func (n *stylesNode) Model() any  { return n.table }

func (n *stylesNode) Reset() {
	n.started = false
	n.stack = n.stack[:0]
	n.font = nil
	n.skipDepth = 0
}

func (n *stylesNode) top() string {
	if len(n.stack) == 0 {
		return ""
	}
	return n.stack[len(n.stack)-1]
}

func (n *stylesNode) Consume(ev xmlstream.Event) (bool, error) {
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
			if ev.Name != "styleSheet" {
				return false, fmt.Errorf("expected <styleSheet>, found <%s> at %d:%d", ev.Name, ev.Line, ev.Column)
			}
			n.started = true
			return false, nil
		}
		n.open(ev)
	case xmlstream.EndElement:
		if len(n.stack) == 0 {
			return true, nil
		}
		n.close()
	}
	return false, nil
}

func (n *stylesNode) open(ev xmlstream.Event) {
	switch n.top() {
	case "":
		switch ev.Name {
		case "numFmts", "fonts", "cellXfs":
			n.stack = append(n.stack, ev.Name)
		default:
			n.skipDepth = 1
		}
	case "numFmts":
		if ev.Name == "numFmt" {
			if id, err := strconv.Atoi(ev.Attr("numFmtId")); err == nil {
				n.table.setNumFmt(id, ev.Attr("formatCode"))
			}
		}
		n.skipDepth = 1
	case "fonts":
		if ev.Name == "font" {
			n.font = &Font{}
			n.stack = append(n.stack, "font")
			return
		}
		n.skipDepth = 1
	case "font":
		switch ev.Name {
		case "b":
			n.font.Bold = ev.Attr("val") != "0"
		case "i":
			n.font.Italic = ev.Attr("val") != "0"
		case "sz":
			n.font.Size, _ = strconv.ParseFloat(ev.Attr("val"), 64)
		case "color":
			n.font.Color = ev.Attr("rgb")
		case "name":
			n.font.Name = ev.Attr("val")
		}
		n.skipDepth = 1
	case "cellXfs":
		if ev.Name == "xf" {
			numFmtID, _ := strconv.Atoi(ev.Attr("numFmtId"))
			fontID, _ := strconv.Atoi(ev.Attr("fontId"))
			n.table.addXf(numFmtID, fontID)
		}
		n.skipDepth = 1
	}
}

func (n *stylesNode) close() {
	if n.top() == "font" {
		n.table.addFont(n.font)
		n.font = nil
	}
	n.stack = n.stack[:len(n.stack)-1]
}

func (n *stylesNode) Render(w *xform.Writer, model any) error {
	st, _ := model.(*Styles)
	if st == nil {
		st = n.table
	}
	w.Decl()
	w.Open("styleSheet", "xmlns", nsSpreadsheet)
	renderNumFmts(w, st)
	renderFonts(w, st)
	w.Open("fills", "count", "2")
	w.Open("fill")
	w.Empty("patternFill", "patternType", "none")
	w.Close("fill")
	w.Open("fill")
	w.Empty("patternFill", "patternType", "gray125")
	w.Close("fill")
	w.Close("fills")
	w.Open("borders", "count", "1")
	w.Open("border")
	w.Empty("left")
	w.Empty("right")
	w.Empty("top")
	w.Empty("bottom")
	w.Empty("diagonal")
	w.Close("border")
	w.Close("borders")
	w.Open("cellStyleXfs", "count", "1")
	w.Empty("xf", "numFmtId", "0", "fontId", "0", "fillId", "0", "borderId", "0")
	w.Close("cellStyleXfs")
	renderXfs(w, st)
	w.Open("cellStyles", "count", "1")
	w.Empty("cellStyle", "name", "Normal", "xfId", "0", "builtinId", "0")
	w.Close("cellStyles")
	w.Close("styleSheet")
	return w.Err()
}

func renderNumFmts(w *xform.Writer, st *Styles) {
	if len(st.numFmts) == 0 {
		return
	}
	ids := make([]int, 0, len(st.numFmts))
	for id := range st.numFmts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	w.Open("numFmts", "count", strconv.Itoa(len(ids)))
	for _, id := range ids {
		w.Empty("numFmt", "numFmtId", strconv.Itoa(id), "formatCode", st.numFmts[id])
	}
	w.Close("numFmts")
}

func renderFonts(w *xform.Writer, st *Styles) {
	w.Open("fonts", "count", strconv.Itoa(len(st.fonts)))
	for _, f := range st.fonts {
		w.Open("font")
		if f.Bold {
			w.Empty("b")
		}
		if f.Italic {
			w.Empty("i")
		}
		if f.Size > 0 {
			w.Empty("sz", "val", strconv.FormatFloat(f.Size, 'g', -1, 64))
		}
		if f.Color != "" {
			w.Empty("color", "rgb", f.Color)
		}
		if f.Name != "" {
			w.Empty("name", "val", f.Name)
		}
		w.Close("font")
	}
	w.Close("fonts")
}

func renderXfs(w *xform.Writer, st *Styles) {
	w.Open("cellXfs", "count", strconv.Itoa(len(st.xfs)))
	for _, rec := range st.xfs {
		attrs := []string{
			"numFmtId", strconv.Itoa(rec.numFmtID),
			"fontId", strconv.Itoa(rec.fontID),
			"fillId", "0", "borderId", "0", "xfId", "0",
		}
		if rec.numFmtID != 0 {
			attrs = append(attrs, "applyNumberFormat", "1")
		}
		if rec.fontID != 0 {
			attrs = append(attrs, "applyFont", "1")
		}
		w.Empty("xf", attrs...)
	}
	w.Close("cellXfs")
}
