package xform

import (
	"fmt"

	"github.com/iuioiua/excelts-sub002/xmlstream"
)

// UnknownMode selects what a CompositeNode does with a child element no
// registered node claims.
type UnknownMode int

const (
	// UnknownIgnore skips the unknown subtree without consuming any node.
	UnknownIgnore UnknownMode = iota
	// UnknownError fails the parse at the unknown element.
	UnknownError
)

// CompositeNode handles an element whose children are heterogeneous, routed
// by tag name through a static map. Children render in declaration order;
// parsed child models merge into a map[string]any keyed by tag. Dispatch
// never inspects more than the tag of the incoming open event.
type CompositeNode struct {
	TagName   string
	Children  []Node
	RootAttrs []string // name, value pairs rendered on the open tag
	Always    bool     // render even when the model map is empty
	OnUnknown UnknownMode

	byTag     map[string]Node
	model     map[string]any
	active    Node
	state     compositeState
	skipDepth int
}

type compositeState int

const (
	compositeIdle compositeState = iota
	compositeOpen
	compositeDone
)

func (c *CompositeNode) Tag() string { return c.TagName }

// Model returns the parsed child models keyed by tag.
func (c *CompositeNode) Model() any { return c.model }

func (c *CompositeNode) Reset() {
	c.model = nil
	c.active = nil
	c.state = compositeIdle
	c.skipDepth = 0
	for _, child := range c.Children {
		child.Reset()
	}
}

func (c *CompositeNode) Prepare(model any, ctx *Context) {
	m, _ := model.(map[string]any)
	for _, child := range c.Children {
		if sub, ok := m[child.Tag()]; ok {
			child.Prepare(sub, ctx)
		}
	}
}

func (c *CompositeNode) Reconcile(model any, ctx *Context) {
	m, _ := model.(map[string]any)
	for _, child := range c.Children {
		if sub, ok := m[child.Tag()]; ok {
			child.Reconcile(sub, ctx)
		}
	}
}

func (c *CompositeNode) Render(w *Writer, model any) error {
	m, _ := model.(map[string]any)
	if len(m) == 0 {
		if !c.Always {
			return nil
		}
		w.Empty(c.TagName, c.RootAttrs...)
		return w.Err()
	}
	w.Open(c.TagName, c.RootAttrs...)
	for _, child := range c.Children {
		sub, ok := m[child.Tag()]
		if !ok {
			continue
		}
		if err := child.Render(w, sub); err != nil {
			return err
		}
	}
	w.Close(c.TagName)
	return w.Err()
}

func (c *CompositeNode) Consume(ev xmlstream.Event) (bool, error) {
	if c.skipDepth > 0 {
		switch ev.Kind {
		case xmlstream.StartElement:
			c.skipDepth++
		case xmlstream.EndElement:
			c.skipDepth--
		}
		return false, nil
	}
	if c.active != nil {
		return c.feedActive(ev)
	}
	switch c.state {
	case compositeIdle:
		if ev.Kind == xmlstream.StartElement {
			if ev.Name != c.TagName {
				return false, fmt.Errorf("expected <%s>, found <%s> at %d:%d", c.TagName, ev.Name, ev.Line, ev.Column)
			}
			c.model = make(map[string]any)
			c.state = compositeOpen
		}
		return false, nil
	case compositeOpen:
		switch ev.Kind {
		case xmlstream.StartElement:
			child, ok := c.childFor(ev.Name)
			if !ok {
				if c.OnUnknown == UnknownError {
					return false, fmt.Errorf("unknown element <%s> in <%s> at %d:%d", ev.Name, c.TagName, ev.Line, ev.Column)
				}
				c.skipDepth = 1
				return false, nil
			}
			c.active = child
			return c.feedActive(ev)
		case xmlstream.EndElement:
			c.state = compositeDone
			return true, nil
		}
		return false, nil
	default:
		return false, fmt.Errorf("event after <%s> closed", c.TagName)
	}
}

func (c *CompositeNode) feedActive(ev xmlstream.Event) (bool, error) {
	done, err := c.active.Consume(ev)
	if err != nil {
		return false, err
	}
	if done {
		c.model[c.active.Tag()] = c.active.Model()
		c.active.Reset()
		c.active = nil
	}
	return false, nil
}

func (c *CompositeNode) childFor(tag string) (Node, bool) {
	if c.byTag == nil {
		c.byTag = make(map[string]Node, len(c.Children))
		for _, child := range c.Children {
			c.byTag[child.Tag()] = child
		}
	}
	child, ok := c.byTag[tag]
	return child, ok
}
