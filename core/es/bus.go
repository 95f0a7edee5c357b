package es

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// Listener is notified after a successful write. It receives no arguments;
// listeners read the new state through the engine.
type Listener func()

type busEntry struct {
	id uint64
	fn Listener
}

// Bus fans a "state changed" signal out to registered listeners in
// subscription order. A panicking listener is recovered and logged; the
// remaining listeners are still notified.
type Bus struct {
	mu        sync.Mutex
	log       *slog.Logger
	nextID    uint64
	listeners []busEntry
	onPanic   func(recovered any)
}

// NewBus creates a bus. onPanic, if not nil, is called for every recovered
// listener panic after it has been logged.
func NewBus(log *slog.Logger, onPanic func(recovered any)) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log, onPanic: onPanic}
}

// Subscribe registers l and returns a function that removes it again.
// Calling the returned function more than once is a no-op.
func (b *Bus) Subscribe(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, busEntry{id: id, fn: l})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.listeners {
		if e.id == id {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Notify calls every listener registered at the time of the call.
func (b *Bus) Notify() {
	b.mu.Lock()
	listeners := b.listeners
	b.mu.Unlock()

	for _, e := range listeners {
		b.call(e)
	}
}

func (b *Bus) call(e busEntry) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error(
				"listener panicked",
				slog.Uint64("listener", e.id),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			if b.onPanic != nil {
				b.onPanic(r)
			}
		}
	}()
	e.fn()
}
