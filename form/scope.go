// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package form

import (
	"context"
	"net/url"
	"strings"

	"github.com/jcodagnone/geoassist/utils/htmlutils"
	"golang.org/x/net/html"
)

// Scope is one form instance: reads and writes are limited to the
// descendants of its root element.
type Scope struct {
	doc  *Document
	root *html.Node
}

// Root returns the scope element.
func (s *Scope) Root() *html.Node {
	return s.root
}

// Document returns the document owning the scope.
func (s *Scope) Document() *Document {
	return s.doc
}

// Find returns the elements of the scope matching sel.
func (s *Scope) Find(sel Selector) []*html.Node {
	return s.doc.FindWithin(s.root, sel)
}

// Values returns the value of every control matching sel, in document order.
func (s *Scope) Values(sel Selector) []string {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()

	nodes := selectAll(s.root, sel)
	values := make([]string, len(nodes))

	for i, n := range nodes {
		values[i] = controlValue(n)
	}

	return values
}

// Value returns the value of the first control matching sel. ok is false
// when nothing matches.
func (s *Scope) Value(sel Selector) (value string, ok bool) {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()

	nodes := selectAll(s.root, sel)
	if len(nodes) == 0 {
		return "", false
	}

	return controlValue(nodes[0]), true
}

// SetValue writes value into every control matching sel and returns how many
// were updated.
func (s *Scope) SetValue(sel Selector, value string) int {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()

	nodes := selectAll(s.root, sel)
	for _, n := range nodes {
		setControlValue(n, value)
	}

	return len(nodes)
}

// Show makes the elements matching sel visible.
func (s *Scope) Show(sel Selector) {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()

	for _, n := range selectAll(s.root, sel) {
		htmlutils.RemoveAttr(n, "hidden")
	}
}

// Hide hides the elements matching sel.
func (s *Scope) Hide(sel Selector) {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()

	for _, n := range selectAll(s.root, sel) {
		htmlutils.SetAttr(n, "hidden", "")
	}
}

// Visible reports whether the first element matching sel is shown.
func (s *Scope) Visible(sel Selector) bool {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()

	nodes := selectAll(s.root, sel)
	if len(nodes) == 0 {
		return false
	}

	_, hidden := htmlutils.Attr(nodes[0], "hidden")

	return !hidden
}

// Text returns the text content of the first element matching sel.
func (s *Scope) Text(sel Selector) string {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()

	nodes := selectAll(s.root, sel)
	if len(nodes) == 0 {
		return ""
	}

	var sb strings.Builder
	if err := htmlutils.Node2string(nodes[0], &sb); err != nil {
		return ""
	}

	return sb.String()
}

func isSuccessfulControl(n *html.Node) (string, bool) {
	name, ok := htmlutils.Attr(n, "name")
	if !ok || name == "" {
		return "", false
	}

	if _, disabled := htmlutils.Attr(n, "disabled"); disabled {
		return "", false
	}

	switch strings.ToLower(n.Data) {
	case "textarea", "select":
		return name, true
	case "input":
		typ, _ := htmlutils.Attr(n, "type")
		switch strings.ToLower(typ) {
		case "submit", "button", "reset", "image", "file":
			return "", false
		case "checkbox", "radio":
			_, checked := htmlutils.Attr(n, "checked")

			return name, checked
		}

		return name, true
	}

	return "", false
}

// Encode returns the name/value pairs a browser would submit for the scope.
func (s *Scope) Encode() url.Values {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()

	values := url.Values{}

	var walk func(*html.Node)

	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				if name, ok := isSuccessfulControl(c); ok {
					value := controlValue(c)
					if value == "" && strings.EqualFold(c.Data, "input") {
						if typ, _ := htmlutils.Attr(c, "type"); strings.EqualFold(typ, "checkbox") || strings.EqualFold(typ, "radio") {
							value = "on"
						}
					}

					values.Add(name, value)
				}
			}

			walk(c)
		}
	}

	walk(s.root)

	return values
}

// Submission returns what submitting the scope would send.
func (s *Scope) Submission() Submission {
	values := s.Encode()

	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()

	action, _ := htmlutils.Attr(s.root, "action")
	method, _ := htmlutils.Attr(s.root, "method")

	if method == "" {
		method = "GET"
	}

	return Submission{
		Action: action,
		Method: strings.ToUpper(method),
		Values: values,
	}
}

// Submit submits the scope through the document submitter without
// dispatching a submit event, so submit listeners are not consulted.
func (s *Scope) Submit(ctx context.Context) error {
	s.doc.mu.Lock()
	submitter := s.doc.submitter
	s.doc.mu.Unlock()

	if submitter == nil {
		return nil
	}

	return submitter.Submit(ctx, s.Submission())
}
