// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package assist

import (
	"errors"
	"testing"

	"github.com/jcodagnone/geoassist/form"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindTwiceIsNoop(t *testing.T) {
	f := newFixture(t, singleForm, ".address")
	first := f.bind(t, Options{})

	listeners := f.doc.ListenerCount(f.element)
	submitListeners := f.doc.ListenerCount(f.formNode)

	second, err := f.binder.Bind(f.doc, f.element, Options{RequestTimeout: 5}, &fakeProvider{})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, DefaultRequestTimeout, second.Options().RequestTimeout)
	assert.Equal(t, listeners, f.doc.ListenerCount(f.element))
	assert.Equal(t, submitListeners, f.doc.ListenerCount(f.formNode))

	got, ok := f.binder.Lookup(f.element)
	assert.True(t, ok)
	assert.Same(t, first, got)
}

func TestBindErrors(t *testing.T) {
	f := newFixture(t, singleForm, ".address")

	_, err := f.binder.Bind(f.doc, f.element, Options{}, nil)
	assert.True(t, errors.Is(err, ErrNoProvider))

	_, err = f.binder.Bind(f.doc, f.element, Options{RequestTimeout: -1}, f.provider)
	assert.True(t, errors.Is(err, ErrInvalidOptions))

	_, err = f.binder.Bind(f.doc, f.element, Options{LatitudeSelector: "[lat"}, f.provider)
	assert.True(t, errors.Is(err, ErrInvalidOptions))

	_, err = f.binder.Bind(f.doc, f.element, Options{Parent: "section"}, f.provider)
	assert.True(t, errors.Is(err, form.ErrNoScope))

	_, ok := f.binder.Lookup(f.element)
	assert.False(t, ok)
}

func TestUnbind(t *testing.T) {
	f := newFixture(t, singleForm, ".address")
	c, err := f.binder.Bind(f.doc, f.element, Options{}, f.provider)
	require.NoError(t, err)

	f.binder.Unbind(f.element)

	_, ok := f.binder.Lookup(f.element)
	assert.False(t, ok)
	assert.Equal(t, 0, f.doc.ListenerCount(f.element))

	// a new binding starts from scratch
	again, err := f.binder.Bind(f.doc, f.element, Options{}, f.provider)
	require.NoError(t, err)
	t.Cleanup(again.Close)
	assert.NotSame(t, c, again)
}
