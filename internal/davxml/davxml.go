// Package davxml provides the small XML document model used by the WebDAV
// protocol layer.
//
// WebDAV bodies are shallow, namespace-sloppy documents. Instead of mapping
// them onto rigid encoding/xml structs, this package models a document as an
// explicit tree of elements and text nodes. The serializer escapes every text
// and attribute value, so arbitrary file names can never break the produced
// XML. The parser is tolerant: it ignores namespaces and keeps only element
// local names and non-blank character data.
package davxml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Header is the document prologue prepended by Document.
const Header = `<?xml version="1.0" encoding="utf-8"?>` + "\n"

// Attr is a single XML attribute. Attribute order is preserved.
type Attr struct {
	Name  string
	Value string
}

// Node is a child of an element: either *Elem or Text.
type Node interface {
	encode(w io.Writer) error
}

// Text is character data inside an element. It is escaped on output.
type Text string

// Elem is an XML element with ordered attributes and ordered children.
type Elem struct {
	Name     string
	Attrs    []Attr
	Children []Node
}

// New creates an element with optional attributes.
func New(name string, attrs ...Attr) *Elem {
	return &Elem{Name: name, Attrs: attrs}
}

// Add appends a child element and returns the child, so trees can be built
// top-down without intermediate variables.
func (e *Elem) Add(child *Elem) *Elem {
	e.Children = append(e.Children, child)
	return child
}

// AddText appends a text node and returns the receiver.
func (e *Elem) AddText(s string) *Elem {
	e.Children = append(e.Children, Text(s))
	return e
}

// FindChildren returns every descendant element with the given local name.
func (e *Elem) FindChildren(name string) []*Elem {
	var found []*Elem
	for _, child := range e.Children {
		el, ok := child.(*Elem)
		if !ok {
			continue
		}
		if el.Name == name {
			found = append(found, el)
		}
		found = append(found, el.FindChildren(name)...)
	}
	return found
}

// ChildNames returns the local names of the direct element children.
func (e *Elem) ChildNames() []string {
	var names []string
	for _, child := range e.Children {
		if el, ok := child.(*Elem); ok {
			names = append(names, el.Name)
		}
	}
	return names
}

func (t Text) encode(w io.Writer) error {
	return xml.EscapeText(w, []byte(t))
}

func (e *Elem) encode(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "<%s", e.Name); err != nil {
		return err
	}
	for _, attr := range e.Attrs {
		if _, err := fmt.Fprintf(w, " %s=\"", attr.Name); err != nil {
			return err
		}
		if err := xml.EscapeText(w, []byte(attr.Value)); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\""); err != nil {
			return err
		}
	}
	if len(e.Children) == 0 {
		_, err := io.WriteString(w, "/>")
		return err
	}
	if _, err := io.WriteString(w, ">"); err != nil {
		return err
	}
	for _, child := range e.Children {
		if err := child.encode(w); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "</%s>", e.Name)
	return err
}

// String serializes the element without a document prologue.
func (e *Elem) String() string {
	var buf bytes.Buffer
	// bytes.Buffer writes cannot fail
	_ = e.encode(&buf)
	return buf.String()
}

// Document serializes the element as a complete UTF-8 XML document.
func (e *Elem) Document() []byte {
	var buf bytes.Buffer
	buf.WriteString(Header)
	_ = e.encode(&buf)
	return buf.Bytes()
}

// Parse reads an XML document and returns its root element.
//
// Namespace prefixes and declarations are dropped; only local names survive.
// Character data is whitespace-trimmed and blank runs are discarded, matching
// how WebDAV clients format request bodies.
func Parse(data []byte) (*Elem, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var root *Elem
	var stack []*Elem
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			elem := &Elem{Name: t.Name.Local}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				elem.Attrs = append(elem.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("malformed XML: multiple root elements")
				}
				root = elem
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, elem)
			}
			stack = append(stack, elem)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("malformed XML: unbalanced end element")
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, Text(text))
		}
	}

	if root == nil {
		return nil, fmt.Errorf("malformed XML: no root element")
	}
	return root, nil
}
