// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package textutils normalizes address text.
package textutils

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LowerASCIIFolding lowercases s, strips diacritics and trims surrounding
// spaces, so "Ñandú" becomes "nandu".
func LowerASCIIFolding(s string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	folded, _, err := transform.String(stripMarks, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}

	return strings.TrimSpace(folded)
}

// CollapseSpaces replaces every run of whitespace with a single space and
// trims the result.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FoldKey returns a comparison key for an address fragment: folded and with
// whitespace collapsed, so "  Crème   Brûlée " and "creme brulee" match.
func FoldKey(s string) string {
	return CollapseSpaces(LowerASCIIFolding(s))
}

// FormatInt renders n with thousands separators: 1234567 is "1,234,567".
func FormatInt(n int64) string {
	digits := strconv.FormatInt(n, 10)

	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}

	head := len(digits) % 3
	if head == 0 {
		head = 3
	}

	var sb strings.Builder

	sb.WriteString(sign)
	sb.WriteString(digits[:head])

	for i := head; i < len(digits); i += 3 {
		sb.WriteByte(',')
		sb.WriteString(digits[i : i+3])
	}

	return sb.String()
}
