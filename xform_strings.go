package excelts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iuioiua/excelts-sub002/xform"
	"github.com/iuioiua/excelts-sub002/xmlstream"
)

// textNode collects the plain text of a string item: the direct <t> child
// and the <t> of each rich-text run, concatenated. Phonetic markup is
// skipped. It serves both shared-string items (<si>) and inline cell
// strings (<is>).
type textNode struct {
	xform.Base
	TagName string

	text      strings.Builder
	inText    bool
	depth     int
	skipDepth int
	started   bool
}

func (n *textNode) Tag() string { return n.TagName }
func (n *textNode) Model() any  { return n.text.String() }

func (n *textNode) Reset() {
	n.text.Reset()
	n.inText = false
	n.depth = 0
	n.skipDepth = 0
	n.started = false
}

func (n *textNode) Consume(ev xmlstream.Event) (bool, error) {
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
			if ev.Name != n.TagName {
				return false, fmt.Errorf("expected <%s>, found <%s> at %d:%d", n.TagName, ev.Name, ev.Line, ev.Column)
			}
			n.started = true
			return false, nil
		}
		switch ev.Name {
		case "rPh", "phoneticPr":
			n.skipDepth = 1
			return false, nil
		case "t":
			n.inText = true
		}
		n.depth++
	case xmlstream.CharData:
		if n.inText {
			n.text.WriteString(ev.Text)
		}
	case xmlstream.EndElement:
		if n.depth == 0 {
			return true, nil
		}
		n.depth--
		if ev.Name == "t" {
			n.inText = false
		}
	}
	return false, nil
}

func (n *textNode) Render(w *xform.Writer, model any) error {
	s, _ := model.(string)
	w.Open(n.TagName)
	writeTextElem(w, s)
	w.Close(n.TagName)
	return w.Err()
}

// writeTextElem emits <t>, preserving significant whitespace explicitly so
// a reparse keeps leading and trailing spaces.
func writeTextElem(w *xform.Writer, s string) {
	if needsSpacePreserve(s) {
		w.Elem("t", s, "xml:space", "preserve")
		return
	}
	w.Elem("t", s)
}

func needsSpacePreserve(s string) bool {
	if s == "" {
		return false
	}
	return isSpaceByte(s[0]) || isSpaceByte(s[len(s)-1])
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// sstNode parses the shared-string part. Items flow straight into the table
// as they complete, so the node never holds the item list itself.
type sstNode struct {
	xform.Base
	table *SharedStrings

	item      *textNode
	inItem    bool
	started   bool
	done      bool
	count     int
	skipDepth int
}

func newSstNode(table *SharedStrings) *sstNode {
	return &sstNode{table: table, item: &textNode{TagName: "si"}}
}

func (n *sstNode) Tag() string { return "sst" }
func (n *sstNode) Model() any  { return n.table }

func (n *sstNode) Reset() {
	n.item.Reset()
	n.inItem = false
	n.started = false
	n.done = false
	n.count = 0
	n.skipDepth = 0
}

func (n *sstNode) Consume(ev xmlstream.Event) (bool, error) {
	if n.skipDepth > 0 {
		switch ev.Kind {
		case xmlstream.StartElement:
			n.skipDepth++
		case xmlstream.EndElement:
			n.skipDepth--
		}
		return false, nil
	}
	if n.inItem {
		done, err := n.item.Consume(ev)
		if err != nil {
			return false, err
		}
		if done {
			s, _ := n.item.Model().(string)
			n.table.add(s)
			n.count++
			n.item.Reset()
			n.inItem = false
		}
		return false, nil
	}
	switch ev.Kind {
	case xmlstream.StartElement:
		if !n.started {
			if ev.Name != "sst" {
				return false, fmt.Errorf("expected <sst>, found <%s> at %d:%d", ev.Name, ev.Line, ev.Column)
			}
			n.started = true
			return false, nil
		}
		if ev.Name == "si" {
			n.inItem = true
			return n.Consume(ev)
		}
		n.skipDepth = 1
		return false, nil
	case xmlstream.EndElement:
		n.done = true
		return true, nil
	}
	return false, nil
}

func (n *sstNode) Render(w *xform.Writer, model any) error {
	table, _ := model.(*SharedStrings)
	if table == nil {
		table = n.table
	}
	w.Decl()
	w.Open("sst",
		"xmlns", nsSpreadsheet,
		"count", strconv.Itoa(table.Refs()),
		"uniqueCount", strconv.Itoa(table.Len()))
	for _, s := range table.list {
		w.Open("si")
		writeTextElem(w, s)
		w.Close("si")
	}
	w.Close("sst")
	return w.Err()
}
