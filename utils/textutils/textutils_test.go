// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package textutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLowerASCIIFolding(t *testing.T) {
	for in, want := range map[string]string{
		"Av. 18 de Julio":    "av. 18 de julio",
		"  Paysandú  ":       "paysandu",
		"São Paulo":          "sao paulo",
		"Ñuñoa":              "nunoa",
		"Zürich Bahnhofstr.": "zurich bahnhofstr.",
		"":                   "",
	} {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, LowerASCIIFolding(in))
		})
	}
}

func TestFoldKey(t *testing.T) {
	assert.Equal(t, "creme brulee", FoldKey("  Crème \t  Brûlée "))
	assert.Equal(t, "123 main st", FoldKey("123  MAIN\nSt"))
	assert.Equal(t, "", FoldKey("   "))
	assert.Equal(t, "a b", CollapseSpaces(" a   b "))
}

func TestFormatInt(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{7, "7"},
		{999, "999"},
		{1000, "1,000"},
		{65432, "65,432"},
		{100000, "100,000"},
		{9876543210, "9,876,543,210"},
		{-5, "-5"},
		{-1000, "-1,000"},
		{-65432, "-65,432"},
	}

	for _, c := range cases {
		t.Run(c.want, func(t *testing.T) {
			assert.Equal(t, c.want, FormatInt(c.n))
		})
	}
}
