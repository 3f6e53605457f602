// Package notifytest records notifications for assertions.
package notifytest

import (
	"context"
	"sync"

	"edusocial/internal/notify"
)

type Recorder struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *Recorder) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *Recorder) All() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.sent...)
}

// Texts returns "<level>: <text>" for each notification.
func (r *Recorder) Texts() []string {
	all := r.All()
	out := make([]string, 0, len(all))
	for _, n := range all {
		out = append(out, string(n.Level)+": "+n.Text)
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
