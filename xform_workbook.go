package excelts

import (
	"fmt"
	"strconv"

	"github.com/iuioiua/excelts-sub002/xform"
	"github.com/iuioiua/excelts-sub002/xmlstream"
)

// workbookInfo is the parsed workbook part: the sheet directory plus the
// properties streaming needs.
type workbookInfo struct {
	Sheets   []*SheetInfo
	Date1904 bool
}

// workbookNode parses and renders the workbook part. Only the sheet
// directory and workbookPr survive a parse; views, defined names and
// calculation settings are skipped.
type workbookNode struct {
	xform.Base
	info *workbookInfo

	started   bool
	inSheets  bool
	skipDepth int
}

func newWorkbookNode() *workbookNode {
	return &workbookNode{info: &workbookInfo{}}
}

func (n *workbookNode) Tag() string { return "workbook" }
func (n *workbookNode) Model() any  { return n.info }

func (n *workbookNode) Reset() {
	n.info = &workbookInfo{}
	n.started = false
	n.inSheets = false
	n.skipDepth = 0
}

func (n *workbookNode) Consume(ev xmlstream.Event) (bool, error) {
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
			if ev.Name != "workbook" {
				return false, fmt.Errorf("expected <workbook>, found <%s> at %d:%d", ev.Name, ev.Line, ev.Column)
			}
			n.started = true
			return false, nil
		}
		if n.inSheets {
			if ev.Name == "sheet" {
				n.info.Sheets = append(n.info.Sheets, sheetFromAttrs(ev))
			}
			n.skipDepth = 1
			return false, nil
		}
		switch ev.Name {
		case "sheets":
			n.inSheets = true
		case "workbookPr":
			n.info.Date1904 = boolAttr(ev, "date1904")
			n.skipDepth = 1
		default:
			n.skipDepth = 1
		}
	case xmlstream.EndElement:
		if n.inSheets {
			n.inSheets = false
			return false, nil
		}
		return true, nil
	}
	return false, nil
}

func sheetFromAttrs(ev xmlstream.Event) *SheetInfo {
	id, _ := strconv.Atoi(ev.Attr("sheetId"))
	state := SheetState(ev.Attr("state"))
	if state == "" {
		state = SheetVisible
	}
	return &SheetInfo{
		Name:    ev.Attr("name"),
		SheetID: id,
		RelID:   ev.Attr("id"),
		State:   state,
	}
}

func boolAttr(ev xmlstream.Event, name string) bool {
	switch ev.Attr(name) {
	case "1", "true":
		return true
	}
	return false
}

func (n *workbookNode) Render(w *xform.Writer, model any) error {
	info, _ := model.(*workbookInfo)
	if info == nil {
		info = n.info
	}
	w.Decl()
	w.Open("workbook", "xmlns", nsSpreadsheet, "xmlns:r", nsDocRels)
	if info.Date1904 {
		w.Empty("workbookPr", "date1904", "1")
	}
	w.Open("sheets")
	for _, sh := range info.Sheets {
		attrs := []string{
			"name", sh.Name,
			"sheetId", strconv.Itoa(sh.SheetID),
			"r:id", sh.RelID,
		}
		if sh.State != "" && sh.State != SheetVisible {
			attrs = append(attrs, "state", string(sh.State))
		}
		w.Empty("sheet", attrs...)
	}
	w.Close("sheets")
	w.Close("workbook")
	return w.Err()
}
