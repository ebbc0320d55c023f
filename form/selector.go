// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package form

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ErrInvalidSelector is returned for selectors that are not valid CSS.
var ErrInvalidSelector = errors.New("invalid selector")

// Selector is a compiled CSS selector group. The zero Selector matches
// nothing.
type Selector struct {
	source string
	match  cascadia.Selector
}

// String returns the source text of the selector.
func (s Selector) String() string {
	return s.source
}

// Matches reports whether n matches any selector of the group. Combinators
// are evaluated against the whole document, not only below a search root.
func (s Selector) Matches(n *html.Node) bool {
	return s.match != nil && s.match.Match(n)
}

// Compile parses a CSS selector group.
func Compile(source string) (Selector, error) {
	if strings.TrimSpace(source) == "" {
		return Selector{}, fmt.Errorf("%w: empty selector", ErrInvalidSelector)
	}

	match, err := cascadia.Compile(source)
	if err != nil {
		return Selector{}, fmt.Errorf("%w %q: %w", ErrInvalidSelector, source, err)
	}

	return Selector{source: source, match: match}, nil
}

// MustCompile is like Compile but panics on invalid selectors.
func MustCompile(source string) Selector {
	sel, err := Compile(source)
	if err != nil {
		panic(err)
	}

	return sel
}

// selectAll returns, in document order, the descendants of root matching sel.
// root itself is not considered.
func selectAll(root *html.Node, sel Selector) []*html.Node {
	var out []*html.Node

	var walk func(*html.Node)

	walk = func(n *html.Node) {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if sel.Matches(child) {
				out = append(out, child)
			}

			walk(child)
		}
	}

	walk(root)

	return out
}

// closest returns n or its nearest ancestor matching sel.
func closest(n *html.Node, sel Selector) *html.Node {
	for ; n != nil; n = n.Parent {
		if sel.Matches(n) {
			return n
		}
	}

	return nil
}
