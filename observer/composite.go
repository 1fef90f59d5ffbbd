// Package observer provides supervisor.Observer implementations: a
// composite fan-out, a structured JSON-line logger, a zerolog-backed
// logger, and an OpenTelemetry metrics exporter.
package observer

import (
	"context"
	"time"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

// Composite fans every call out to a list of observers, grounded on the
// teacher's observer/composite.go (nil-filtered slice, one method per
// call forwarded to every item).
type Composite struct {
	items []supervisor.Observer
}

// NewComposite builds a Composite from items, dropping any nil entries.
func NewComposite(items ...supervisor.Observer) *Composite {
	return &Composite{items: filterNil(items)}
}

// Add appends additional observers.
func (c *Composite) Add(items ...supervisor.Observer) {
	c.items = append(c.items, filterNil(items)...)
}

func filterNil(items []supervisor.Observer) []supervisor.Observer {
	out := make([]supervisor.Observer, 0, len(items))
	for _, it := range items {
		if it != nil {
			out = append(out, it)
		}
	}
	return out
}

func (c *Composite) OnTickStart(ctx context.Context, chatID string, newMessages int) {
	for _, o := range c.items {
		o.OnTickStart(ctx, chatID, newMessages)
	}
}

func (c *Composite) OnTickEnd(ctx context.Context, chatID string, dispatched int, err error) {
	for _, o := range c.items {
		o.OnTickEnd(ctx, chatID, dispatched, err)
	}
}

func (c *Composite) OnLLMCall(ctx context.Context, component, model string, dur time.Duration, err error) {
	for _, o := range c.items {
		o.OnLLMCall(ctx, component, model, dur, err)
	}
}

func (c *Composite) OnNodeTransition(ctx context.Context, persona, from, to string) {
	for _, o := range c.items {
		o.OnNodeTransition(ctx, persona, from, to)
	}
}

func (c *Composite) OnSuspend(ctx context.Context, chatID string, pending int) {
	for _, o := range c.items {
		o.OnSuspend(ctx, chatID, pending)
	}
}

func (c *Composite) OnResume(ctx context.Context, chatID string, decisions int) {
	for _, o := range c.items {
		o.OnResume(ctx, chatID, decisions)
	}
}

func (c *Composite) OnError(ctx context.Context, component string, err error) {
	for _, o := range c.items {
		o.OnError(ctx, component, err)
	}
}

var _ supervisor.Observer = (*Composite)(nil)
