// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package form reads and writes the fields of HTML forms held in memory and
// dispatches the input, change and submit events of those forms.
package form

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/jcodagnone/geoassist/utils/htmlutils"
	"golang.org/x/net/html"
)

// ErrNoScope is returned when an element has no ancestor matching the form
// scope selector.
var ErrNoScope = errors.New("no enclosing form scope")

// ErrNotFound is returned when a selector matches nothing.
var ErrNotFound = errors.New("no element matches selector")

// Document is a parsed HTML document. Every read or write of its node tree
// goes through the Document so it can be shared between goroutines.
type Document struct {
	mu        sync.Mutex
	root      *html.Node
	listeners map[*html.Node][]*listener
	nextID    int
	submitter Submitter
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := htmlutils.AsNode(r)
	if err != nil {
		return nil, err
	}

	return &Document{
		root:      root,
		listeners: make(map[*html.Node][]*listener),
	}, nil
}

// ParseString reads an HTML document from a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Fetch downloads and parses the HTML document at url.
func Fetch(ctx context.Context, client *http.Client, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching form: %w", err)
	}
	defer resp.Body.Close()

	r, err := htmlutils.AsReader(resp)
	if err != nil {
		return nil, fmt.Errorf("fetching form %s: %w", url, err)
	}

	return Parse(r)
}

// SetSubmitter installs the action run when a form of the document is
// submitted.
func (d *Document) SetSubmitter(s Submitter) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.submitter = s
}

// Root returns the document node. Callers must not mutate the tree directly.
func (d *Document) Root() *html.Node {
	return d.root
}

// Find returns the first element in the document matching selector.
func (d *Document) Find(selector string) (*html.Node, error) {
	nodes, err := d.FindAll(selector)
	if err != nil {
		return nil, err
	}

	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, selector)
	}

	return nodes[0], nil
}

// FindAll returns every element in the document matching selector.
func (d *Document) FindAll(selector string) ([]*html.Node, error) {
	sel, err := Compile(selector)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return selectAll(d.root, sel), nil
}

// FindWithin returns the descendants of n matching sel.
func (d *Document) FindWithin(n *html.Node, sel Selector) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()

	return selectAll(n, sel)
}

// Ancestors returns the ancestors of n from the nearest to the document node.
func (d *Document) Ancestors(n *html.Node) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*html.Node
	for p := n.Parent; p != nil; p = p.Parent {
		out = append(out, p)
	}

	return out
}

// Value returns the current value of a form control.
func (d *Document) Value(n *html.Node) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return controlValue(n)
}

// SetValue changes the value of a form control.
func (d *Document) SetValue(n *html.Node, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	setControlValue(n, value)
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return html.Render(w, d.root)
}

// String renders the document.
func (d *Document) String() string {
	var sb strings.Builder
	if err := d.Render(&sb); err != nil {
		return ""
	}

	return sb.String()
}

// Closest returns n or its nearest ancestor matching sel, nil when none does.
func (d *Document) Closest(n *html.Node, sel Selector) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()

	return closest(n, sel)
}

// Scope returns the form instance enclosing element: element itself or its
// nearest ancestor matching parent.
func (d *Document) Scope(element *html.Node, parent string) (*Scope, error) {
	sel, err := Compile(parent)
	if err != nil {
		return nil, err
	}

	root := d.Closest(element, sel)
	if root == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoScope, parent)
	}

	return &Scope{doc: d, root: root}, nil
}

func textOf(n *html.Node) string {
	var sb strings.Builder

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}

	return sb.String()
}

func setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}

	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

func optionValue(opt *html.Node) string {
	if v, ok := htmlutils.Attr(opt, "value"); ok {
		return v
	}

	return strings.TrimSpace(textOf(opt))
}

func options(n *html.Node) []*html.Node {
	return selectAll(n, MustCompile("option"))
}

func controlValue(n *html.Node) string {
	switch strings.ToLower(n.Data) {
	case "textarea":
		return textOf(n)
	case "select":
		opts := options(n)
		for _, opt := range opts {
			if _, ok := htmlutils.Attr(opt, "selected"); ok {
				return optionValue(opt)
			}
		}

		if len(opts) > 0 {
			return optionValue(opts[0])
		}

		return ""
	default:
		v, _ := htmlutils.Attr(n, "value")

		return v
	}
}

func setControlValue(n *html.Node, value string) {
	switch strings.ToLower(n.Data) {
	case "textarea":
		setText(n, value)
	case "select":
		for _, opt := range options(n) {
			if optionValue(opt) == value {
				htmlutils.SetAttr(opt, "selected", "")
			} else {
				htmlutils.RemoveAttr(opt, "selected")
			}
		}
	default:
		htmlutils.SetAttr(n, "value", value)
	}
}
