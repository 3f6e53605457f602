// Package sockettest provides an in-memory socket.Transport for store tests.
package sockettest

import (
	"context"
	"encoding/json"
	"sync"

	"edusocial/internal/socket"
	social_errors "edusocial/pkg/errors"
)

type Transport struct {
	*socket.Dispatcher

	mu         sync.Mutex
	connected  bool
	joins      []int64
	leaves     []int64
	ConnectErr error
}

var _ socket.Transport = (*Transport)(nil)

func New() *Transport {
	return &Transport{Dispatcher: socket.NewDispatcher()}
}

func (t *Transport) Connect(context.Context) error {
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.SetConnected(true)
	return nil
}

func (t *Transport) Close() error {
	t.SetConnected(false)
	return nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// SetConnected flips the connection state and notifies listeners on change.
func (t *Transport) SetConnected(connected bool) {
	t.mu.Lock()
	changed := t.connected != connected
	t.connected = connected
	t.mu.Unlock()
	if changed {
		t.NotifyConnection(connected)
	}
}

func (t *Transport) JoinRoom(roomID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return social_errors.ErrNotConnected
	}
	t.joins = append(t.joins, roomID)
	return nil
}

func (t *Transport) LeaveRoom(roomID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return social_errors.ErrNotConnected
	}
	t.leaves = append(t.leaves, roomID)
	return nil
}

func (t *Transport) Joins() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int64(nil), t.joins...)
}

func (t *Transport) Leaves() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int64(nil), t.leaves...)
}

// Emit delivers payload to subscribers of event synchronously.
func (t *Transport) Emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	t.Dispatch(event, data)
}

// EmitRaw delivers a pre-encoded payload, e.g. one wrapped in {"data": ...}.
func (t *Transport) EmitRaw(event, raw string) {
	t.Dispatch(event, json.RawMessage(raw))
}
