// Package xmlstream turns an XML byte stream into a flat sequence of
// open/text/close events pulled one at a time. It carries input positions on
// every event and reports structural violations as errors that name the
// offending line and column, which is all the worksheet parsers need from
// the markup layer.
package xmlstream

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// Kind identifies the kind of streaming event.
type Kind int

const (
	StartElement Kind = iota + 1
	EndElement
	CharData
)

// Attr is one attribute on a start element. Space holds the resolved
// namespace URL for prefixed attributes and is empty otherwise.
type Attr struct {
	Name  string
	Space string
	Value string
}

// Event is a single parse event. Name is the element's local name on start
// and end events; Text is populated on character-data events, which may
// arrive in more than one chunk per element.
type Event struct {
	Kind   Kind
	Name   string
	Attrs  []Attr
	Text   string
	Line   int
	Column int
}

// Attr returns the value of the named attribute, or "" when absent.
// Namespace prefixes are ignored, which matches how worksheet markup is
// addressed throughout this codec.
func (e Event) Attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// HasAttr reports whether the named attribute is present.
func (e Event) HasAttr(name string) bool {
	for _, a := range e.Attrs {
		if a.Name == name {
			return true
		}
	}
	return false
}

// SyntaxError reports structurally invalid markup.
type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("xml syntax error at %d:%d: %s", e.Line, e.Column, e.Msg)
}

// Source pulls events from one XML document. A Source is good for a single
// pass; abandoning it early is just ceasing to call Next.
type Source struct {
	d     *xml.Decoder
	depth int
	err   error
}

// NewSource returns a Source reading the document in r.
func NewSource(r io.Reader) *Source {
	return &Source{d: xml.NewDecoder(r)}
}

// Position returns the line and column just past the most recent event.
func (s *Source) Position() (line, col int) {
	l, c := s.d.InputPos()
	return l, c
}

// Next returns the next event. io.EOF signals the clean end of the
// document; any other error is terminal and repeats on later calls.
func (s *Source) Next() (Event, error) {
	if s.err != nil {
		return Event{}, s.err
	}
	for {
		tok, err := s.d.Token()
		if err != nil {
			return Event{}, s.fail(err)
		}
		line, col := s.d.InputPos()
		switch t := tok.(type) {
		case xml.StartElement:
			s.depth++
			ev := Event{Kind: StartElement, Name: t.Name.Local, Line: line, Column: col}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || (a.Name.Local == "xmlns" && a.Name.Space == "") {
					continue
				}
				ev.Attrs = append(ev.Attrs, Attr{Name: a.Name.Local, Space: a.Name.Space, Value: a.Value})
			}
			return ev, nil
		case xml.EndElement:
			s.depth--
			return Event{Kind: EndElement, Name: t.Name.Local, Line: line, Column: col}, nil
		case xml.CharData:
			if s.depth == 0 {
				if isSpace(t) {
					continue
				}
				return Event{}, s.fail(&SyntaxError{Line: line, Column: col, Msg: "text outside any element"})
			}
			return Event{Kind: CharData, Text: string(t), Line: line, Column: col}, nil
		default:
			// Comments, directives and processing instructions carry nothing
			// the document model needs.
		}
	}
}

// Skip consumes the remainder of the element whose start event was just
// returned, including its end tag.
func (s *Source) Skip() error {
	if s.err != nil {
		return s.err
	}
	if err := s.d.Skip(); err != nil {
		return s.fail(err)
	}
	s.depth--
	return nil
}

func (s *Source) fail(err error) error {
	if err == io.EOF {
		if s.depth != 0 {
			line, col := s.d.InputPos()
			err = &SyntaxError{Line: line, Column: col, Msg: "unexpected end of input inside element"}
		}
		s.err = err
		return err
	}
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		line, col := s.d.InputPos()
		err = &SyntaxError{Line: line, Column: col, Msg: se.Msg}
	}
	s.err = err
	return err
}

func isSpace(b []byte) bool {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}
	return true
}
