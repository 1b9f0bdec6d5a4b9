package main

import (
	"context"
	"sync"

	"github.com/flicky/spice-storefront/internal/location"
)

// lineWatcher feeds positions typed on the terminal into the active watch.
// Positions sent while nothing is watching are dropped.
type lineWatcher struct {
	mu      sync.Mutex
	current chan location.Position
}

func (w *lineWatcher) Watch(ctx context.Context) (<-chan location.Position, error) {
	ch := make(chan location.Position, 4)
	w.mu.Lock()
	w.current = ch
	w.mu.Unlock()

	go func() {
		<-ctx.Done()
		w.mu.Lock()
		if w.current == ch {
			w.current = nil
		}
		close(ch)
		w.mu.Unlock()
	}()
	return ch, nil
}

// send delivers p and reports whether a watch was listening.
func (w *lineWatcher) send(p location.Position) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return false
	}
	select {
	case w.current <- p:
		return true
	default:
		return false
	}
}

func (w *lineWatcher) watching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current != nil
}
