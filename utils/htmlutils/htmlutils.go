// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package htmlutils decodes, parses and inspects HTML documents.
package htmlutils

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// ErrCharsetMismatch is returned by Node2string when the text holds a
// REPLACEMENT CHARACTER (U+FFFD), a sign the document was decoded with the
// wrong charset.
var ErrCharsetMismatch = errors.New("charset mismatch")

// Node2string appends the whitespace separated text content of n to sb, in
// document order.
func Node2string(n *html.Node, sb *strings.Builder) error {
	if n.Type != html.TextNode {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := Node2string(c, sb); err != nil {
				return err
			}
		}

		return nil
	}

	words := strings.Fields(n.Data)
	if len(words) == 0 {
		return nil
	}

	text := strings.Join(words, " ")
	if strings.ContainsRune(text, utf8.RuneError) {
		return fmt.Errorf("%w: %q", ErrCharsetMismatch, text)
	}

	if sb.Len() > 0 {
		sb.WriteByte(' ')
	}

	sb.WriteString(text)

	return nil
}

func hasHTMLContentType(contentType string) bool {
	media, _, err := mime.ParseMediaType(contentType)

	return err == nil && media == "text/html"
}

// AsReader returns the body of a successful HTML response decoded to UTF-8
// according to its declared or sniffed charset.
func AsReader(resp *http.Response) (io.Reader, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !hasHTMLContentType(contentType) {
		return nil, fmt.Errorf("not an HTML document, media type is %q", contentType)
	}

	r, err := charset.NewReader(resp.Body, contentType)
	if err != nil {
		return nil, fmt.Errorf("decoding %s body: %w", contentType, err)
	}

	return r, nil
}

// AsNode parses r as an HTML document.
func AsNode(r io.Reader) (*html.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing body as HTML: %w", err)
	}

	return doc, nil
}

// Attr returns the value of the attribute key of n.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}

	return "", false
}

// SetAttr sets (or adds) the attribute key of n.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val

			return
		}
	}

	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr drops the attribute key of n, if present.
func RemoveAttr(n *html.Node, key string) {
	attrs := n.Attr[:0]

	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			continue
		}

		attrs = append(attrs, a)
	}

	n.Attr = attrs
}

// HasClass reports whether n carries class in its class attribute.
func HasClass(n *html.Node, class string) bool {
	v, ok := Attr(n, "class")
	if !ok {
		return false
	}

	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}

	return false
}
