package socket

import (
	"encoding/json"
	"sync"
)

// Dispatcher keeps event and connection-state handlers. Handlers are
// invoked outside the lock, in registration order.
type Dispatcher struct {
	mu        sync.RWMutex
	nextID    uint64
	events    map[string]map[uint64]func(json.RawMessage)
	order     map[string][]uint64
	listeners map[uint64]func(bool)
	lorder    []uint64
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		events:    make(map[string]map[uint64]func(json.RawMessage)),
		order:     make(map[string][]uint64),
		listeners: make(map[uint64]func(bool)),
	}
}

func (d *Dispatcher) Subscribe(event string, fn func(json.RawMessage)) Unsubscribe {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	if d.events[event] == nil {
		d.events[event] = make(map[uint64]func(json.RawMessage))
	}
	d.events[event][id] = fn
	d.order[event] = append(d.order[event], id)

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.events[event], id)
			d.order[event] = removeID(d.order[event], id)
		})
	}
}

func (d *Dispatcher) OnConnectionChange(fn func(bool)) Unsubscribe {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.listeners[id] = fn
	d.lorder = append(d.lorder, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.listeners, id)
			d.lorder = removeID(d.lorder, id)
		})
	}
}

// Dispatch delivers one event to its handlers and reports how many ran.
func (d *Dispatcher) Dispatch(event string, data json.RawMessage) int {
	d.mu.RLock()
	handlers := make([]func(json.RawMessage), 0, len(d.order[event]))
	for _, id := range d.order[event] {
		handlers = append(handlers, d.events[event][id])
	}
	d.mu.RUnlock()

	for _, h := range handlers {
		h(data)
	}
	return len(handlers)
}

func (d *Dispatcher) NotifyConnection(connected bool) {
	d.mu.RLock()
	listeners := make([]func(bool), 0, len(d.lorder))
	for _, id := range d.lorder {
		listeners = append(listeners, d.listeners[id])
	}
	d.mu.RUnlock()

	for _, l := range listeners {
		l(connected)
	}
}

func removeID(ids []uint64, id uint64) []uint64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
