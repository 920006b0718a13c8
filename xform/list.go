package xform

import (
	"fmt"
	"strconv"

	"github.com/iuioiua/excelts-sub002/xmlstream"
)

// ListNode handles a wrapper element holding a homogeneous sequence of child
// elements, reusing a single child node for every item. An optional Max caps
// how many items a parse will accept; the cap fails as soon as one item too
// many opens, not after the document finishes.
type ListNode struct {
	TagName string
	Child   Node
	Always  bool   // render the wrapper even with no items
	Count   bool   // emit a count attribute on the wrapper
	Max     int    // parse cap; 0 means unbounded
	MaxErr  error  // error reported when Max is exceeded

	models    []any
	state     listState
	skipDepth int
}

type listState int

const (
	listIdle listState = iota
	listOpen
	listChild
	listDone
)

func (l *ListNode) Tag() string { return l.TagName }

// Model returns the parsed items as a []any.
func (l *ListNode) Model() any { return l.models }

func (l *ListNode) Reset() {
	l.models = nil
	l.state = listIdle
	l.skipDepth = 0
	l.Child.Reset()
}

func (l *ListNode) Prepare(model any, ctx *Context) {
	items, _ := model.([]any)
	for _, m := range items {
		l.Child.Prepare(m, ctx)
	}
}

func (l *ListNode) Reconcile(model any, ctx *Context) {
	items, _ := model.([]any)
	for _, m := range items {
		l.Child.Reconcile(m, ctx)
	}
}

func (l *ListNode) Render(w *Writer, model any) error {
	items, _ := model.([]any)
	if len(items) == 0 && !l.Always {
		return nil
	}
	var attrs []string
	if l.Count {
		attrs = append(attrs, "count", strconv.Itoa(len(items)))
	}
	if len(items) == 0 {
		w.Empty(l.TagName, attrs...)
		return w.Err()
	}
	w.Open(l.TagName, attrs...)
	for _, m := range items {
		if err := l.Child.Render(w, m); err != nil {
			return err
		}
	}
	w.Close(l.TagName)
	return w.Err()
}

func (l *ListNode) Consume(ev xmlstream.Event) (bool, error) {
	if l.skipDepth > 0 {
		switch ev.Kind {
		case xmlstream.StartElement:
			l.skipDepth++
		case xmlstream.EndElement:
			l.skipDepth--
		}
		return false, nil
	}
	switch l.state {
	case listIdle:
		if ev.Kind == xmlstream.StartElement {
			if ev.Name != l.TagName {
				return false, fmt.Errorf("expected <%s>, found <%s> at %d:%d", l.TagName, ev.Name, ev.Line, ev.Column)
			}
			l.state = listOpen
		}
		return false, nil
	case listOpen:
		switch ev.Kind {
		case xmlstream.StartElement:
			if ev.Name != l.Child.Tag() {
				l.skipDepth = 1
				return false, nil
			}
			if l.Max > 0 && len(l.models) >= l.Max {
				if l.MaxErr != nil {
					return false, l.MaxErr
				}
				return false, fmt.Errorf("max <%s> count (%d) exceeded", l.Child.Tag(), l.Max)
			}
			l.state = listChild
			return l.feedChild(ev)
		case xmlstream.EndElement:
			l.state = listDone
			return true, nil
		}
		return false, nil
	case listChild:
		return l.feedChild(ev)
	default:
		return false, fmt.Errorf("event after <%s> closed", l.TagName)
	}
}

func (l *ListNode) feedChild(ev xmlstream.Event) (bool, error) {
	done, err := l.Child.Consume(ev)
	if err != nil {
		return false, err
	}
	if done {
		l.models = append(l.models, l.Child.Model())
		l.Child.Reset()
		l.state = listOpen
	}
	return false, nil
}
