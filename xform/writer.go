package xform

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

var (
	textEscaper = strings.NewReplacer(
		"&", "&amp;", "<", "&lt;", ">", "&gt;", "\r", "&#xD;")
	attrEscaper = strings.NewReplacer(
		"&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;",
		"\t", "&#x9;", "\n", "&#xA;", "\r", "&#xD;")
)

// Writer emits markup for Node.Render. Attributes are passed as name, value
// pairs. Errors stick: after the first failure every call is a no-op and
// Flush reports the error.
type Writer struct {
	b   *bufio.Writer
	err error
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{b: bufio.NewWriter(w)}
}

// Decl writes the XML declaration.
func (w *Writer) Decl() {
	w.raw(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	w.raw("\n")
}

// Open writes a start tag. attrs are name, value pairs.
func (w *Writer) Open(tag string, attrs ...string) {
	w.tagOpen(tag, attrs)
	w.raw(">")
}

// Empty writes a self-closing element.
func (w *Writer) Empty(tag string, attrs ...string) {
	w.tagOpen(tag, attrs)
	w.raw("/>")
}

// Close writes an end tag.
func (w *Writer) Close(tag string) {
	w.raw("</")
	w.raw(tag)
	w.raw(">")
}

// Text writes escaped character data.
func (w *Writer) Text(s string) {
	if w.err != nil {
		return
	}
	_, err := textEscaper.WriteString(w.b, s)
	w.setErr(err)
}

// Elem writes a complete element holding only text: <tag>text</tag>.
func (w *Writer) Elem(tag, text string, attrs ...string) {
	w.Open(tag, attrs...)
	w.Text(text)
	w.Close(tag)
}

// Err returns the first error encountered.
func (w *Writer) Err() error {
	return w.err
}

// Flush writes buffered output through to the destination.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.setErr(w.b.Flush())
	return w.err
}

func (w *Writer) tagOpen(tag string, attrs []string) {
	if w.err == nil && len(attrs)%2 != 0 {
		w.err = fmt.Errorf("element <%s>: odd attribute list length %d", tag, len(attrs))
	}
	if w.err != nil {
		return
	}
	w.raw("<")
	w.raw(tag)
	for i := 0; i+1 < len(attrs); i += 2 {
		w.raw(" ")
		w.raw(attrs[i])
		w.raw(`="`)
		if w.err == nil {
			_, err := attrEscaper.WriteString(w.b, attrs[i+1])
			w.setErr(err)
		}
		w.raw(`"`)
	}
}

func (w *Writer) raw(s string) {
	if w.err != nil {
		return
	}
	_, err := w.b.WriteString(s)
	w.setErr(err)
}

func (w *Writer) setErr(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}
