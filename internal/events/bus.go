package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/logging"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
)

// Handler consumes a committed event. Errors are logged, never retried:
// the outbox remains the source of truth and can be replayed by sequence.
type Handler func(ctx context.Context, ev store.Event) error

// Bus delivers committed events to subscribers in publish order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]named
	logger logging.Logger
}

type named struct {
	name string
	h    Handler
}

// NewBus creates an empty bus.
func NewBus(logger logging.Logger) *Bus {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Bus{subs: make(map[string][]named), logger: logger}
}

// Subscribe registers h for events of type typ, or for every event when
// typ is empty.
func (b *Bus) Subscribe(name, typ string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[typ] = append(b.subs[typ], named{name: name, h: h})
}

// Publish hands each event to its subscribers synchronously. A failing or
// panicking subscriber does not stop delivery to the others.
func (b *Bus) Publish(ctx context.Context, evs ...store.Event) {
	if b == nil {
		return
	}
	for _, ev := range evs {
		b.mu.RLock()
		targets := make([]named, 0, len(b.subs[ev.Type])+len(b.subs[""]))
		targets = append(targets, b.subs[ev.Type]...)
		targets = append(targets, b.subs[""]...)
		b.mu.RUnlock()

		for _, t := range targets {
			if err := deliver(ctx, t.h, ev); err != nil {
				b.logger.Error("event subscriber failed",
					"subscriber", t.name, "type", ev.Type, "sequence", ev.Sequence, "err", err)
			}
		}
	}
}

func deliver(ctx context.Context, h Handler, ev store.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, ev)
}
