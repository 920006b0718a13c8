// Package xform defines the transform-node contract shared by every piece of
// document markup this codec reads or writes. A node owns one XML element
// shape: it renders a model to markup, and it consumes a stream of
// open/text/close events back into a model. Container nodes (lists and
// composites) delegate nested elements to child nodes, so a whole document
// part is one node tree driven by a flat event sequence.
package xform

import (
	"fmt"
	"io"

	"github.com/iuioiua/excelts-sub002/xmlstream"
)

// Node is one reusable markup handler. Between uses it must be Reset.
//
// Consume is fed every event belonging to the node's element, starting with
// its own open event; it reports done when the matching close event has been
// processed, after which Model returns what was parsed. Render is the
// inverse and must not mutate the model. Prepare runs before rendering to
// assign derived fields (interned indexes, sequence ids); Reconcile runs
// after a parse to resolve references against late-available tables.
type Node interface {
	Tag() string
	Prepare(model any, ctx *Context)
	Render(w *Writer, model any) error
	Consume(ev xmlstream.Event) (done bool, err error)
	Model() any
	Reset()
	Reconcile(model any, ctx *Context)
}

// Base provides no-op Prepare and Reconcile for nodes that need neither.
type Base struct{}

func (Base) Prepare(any, *Context)   {}
func (Base) Reconcile(any, *Context) {}

// StringTable resolves and interns shared strings.
type StringTable interface {
	Value(index int) (string, bool)
	Intern(s string) int
}

// StyleTable resolves and interns cell format indexes.
type StyleTable interface {
	Resolve(index int) (any, bool)
	IsDate(index int) bool
	Intern(style any) int
}

// RelTable resolves relationship ids to their targets.
type RelTable interface {
	Target(id string) (string, bool)
}

// Context carries the cross-reference tables a node may need while
// preparing or reconciling a model. Any field may be nil when the owning
// document part is absent or skipped.
type Context struct {
	Strings  StringTable
	Styles   StyleTable
	Rels     RelTable
	Date1904 bool
}

// Parse pumps events from src into root until the root element closes, and
// returns the parsed model. The first event must open the root's tag.
func Parse(src *xmlstream.Source, root Node) (any, error) {
	root.Reset()
	for {
		ev, err := src.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("document ended before <%s> closed", root.Tag())
		}
		if err != nil {
			return nil, err
		}
		done, err := root.Consume(ev)
		if err != nil {
			return nil, err
		}
		if done {
			return root.Model(), nil
		}
	}
}
