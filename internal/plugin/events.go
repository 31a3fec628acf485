// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package plugin

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names a lifecycle notification.
type EventType string

const (
	EventLoaded      EventType = "loaded"
	EventActivated   EventType = "activated"
	EventDeactivated EventType = "deactivated"
	EventUnloaded    EventType = "unloaded"
	EventError       EventType = "error"
)

// Event is delivered to listeners after a transition completes.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      EventType `json:"type"`
	Plugin    string    `json:"plugin"`
	Message   string    `json:"message,omitempty"`
	Err       error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Listener receives plugin events.
type Listener interface {
	PluginEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) PluginEvent(e Event) { f(e) }

// dispatcher delivers events synchronously, in registration order.
type dispatcher struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]Listener
}

func newDispatcher() *dispatcher {
	return &dispatcher{listeners: make(map[int]Listener)}
}

func (d *dispatcher) add(l Listener) func() {
	d.mu.Lock()
	id := d.next
	d.next++
	d.listeners[id] = l
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

func (d *dispatcher) fire(e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	d.mu.RLock()
	ids := make([]int, 0, len(d.listeners))
	for id := range d.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, d.listeners[id])
	}
	d.mu.RUnlock()

	for _, l := range listeners {
		l.PluginEvent(e)
	}
}
