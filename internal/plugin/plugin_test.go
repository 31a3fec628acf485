// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package plugin

import (
	"context"
	"errors"
	"sync"
)

// fakePlugin records every hook call.
type fakePlugin struct {
	Base

	mu            sync.Mutex
	calls         []string
	initErr       error
	activateErr   error
	deactivateErr error
	saveErr       error
	panicOn       string
	state         map[string]any
	restored      map[string]any
}

func newFake(name, category string) *fakePlugin {
	p := &fakePlugin{Base: NewBase(name, name+" tool"), state: map[string]any{"name": name}}
	if category != "" {
		p.SetCategory(category)
	}
	return p
}

func (p *fakePlugin) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
	if p.panicOn == call {
		panic(call + " exploded")
	}
}

func (p *fakePlugin) count(call string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (p *fakePlugin) Initialize(context.Context) error {
	p.record("initialize")
	return p.initErr
}

func (p *fakePlugin) OnActivate(context.Context) error {
	p.record("activate")
	return p.activateErr
}

func (p *fakePlugin) OnDeactivate(context.Context) error {
	p.record("deactivate")
	return p.deactivateErr
}

func (p *fakePlugin) SaveState(context.Context) (map[string]any, error) {
	p.record("save")
	return p.state, p.saveErr
}

func (p *fakePlugin) RestoreState(_ context.Context, state map[string]any) error {
	p.record("restore")
	p.restored = state
	return nil
}

func (p *fakePlugin) Close() error {
	p.record("close")
	return nil
}

// eventLog collects events in delivery order.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) PluginEvent(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) kinds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, string(e.Type)+":"+e.Plugin)
	}
	return out
}

func (l *eventLog) reset() {
	l.mu.Lock()
	l.events = nil
	l.mu.Unlock()
}

var errBoom = errors.New("boom")
