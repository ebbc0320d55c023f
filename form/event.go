// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package form

import (
	"context"
	"strings"

	"golang.org/x/net/html"
)

// EventType names the events a form emits.
type EventType string

const (
	// Input fires on every keystroke of a text control.
	Input EventType = "input"
	// Change fires when a control commits its value.
	Change EventType = "change"
	// Submit fires when a form is submitted.
	Submit EventType = "submit"
)

// Event is delivered to listeners.
type Event struct {
	Type   EventType
	Target *html.Node
	ctx    context.Context

	defaultPrevented bool
}

// Context returns the context of the dispatch.
func (e *Event) Context() context.Context {
	return e.ctx
}

// PreventDefault cancels the default action of the event (the submission of
// a submit event).
func (e *Event) PreventDefault() {
	e.defaultPrevented = true
}

// DefaultPrevented reports whether a listener cancelled the default action.
func (e *Event) DefaultPrevented() bool {
	return e.defaultPrevented
}

// Listener handles an event.
type Listener func(*Event)

type listener struct {
	id  int
	typ EventType
	fn  Listener
}

// Listen registers fn for events of type typ on n and on its descendants
// (events bubble). The returned function detaches the listener.
func (d *Document) Listen(n *html.Node, typ EventType, fn Listener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.listeners[n] = append(d.listeners[n], &listener{id: id, typ: typ, fn: fn})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		ls := d.listeners[n]
		for i, l := range ls {
			if l.id == id {
				d.listeners[n] = append(ls[:i:i], ls[i+1:]...)

				break
			}
		}

		if len(d.listeners[n]) == 0 {
			delete(d.listeners, n)
		}
	}
}

// ListenerCount returns how many listeners are attached to n.
func (d *Document) ListenerCount(n *html.Node) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.listeners[n])
}

// Dispatch fires an event at target. Listeners of target run first, then
// those of its ancestors. Unless a listener prevented it, a submit event
// submits the enclosing form through the document submitter.
func (d *Document) Dispatch(ctx context.Context, target *html.Node, typ EventType) (*Event, error) {
	ev := &Event{Type: typ, Target: target, ctx: ctx}

	d.mu.Lock()

	var path []*listener

	for n := target; n != nil; n = n.Parent {
		for _, l := range d.listeners[n] {
			if l.typ == typ {
				path = append(path, l)
			}
		}
	}
	d.mu.Unlock()

	for _, l := range path {
		l.fn(ev)
	}

	if typ != Submit || ev.defaultPrevented {
		return ev, nil
	}

	d.mu.Lock()
	formNode := target
	for formNode != nil && !(formNode.Type == html.ElementNode && strings.EqualFold(formNode.Data, "form")) {
		formNode = formNode.Parent
	}
	d.mu.Unlock()

	if formNode == nil {
		return ev, nil
	}

	return ev, (&Scope{doc: d, root: formNode}).Submit(ctx)
}
