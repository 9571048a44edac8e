// Package notify carries user-visible toast messages from the stores to the views.
package notify

import "sync"

// Variant selects how a toast is rendered.
type Variant string

const (
	Default     Variant = "default"
	Destructive Variant = "destructive"
)

// Toast is a short user-visible message.
type Toast struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Variant     Variant `json:"variant"`
}

// Notifier receives toasts.
type Notifier interface {
	Notify(t Toast)
}

// Info builds a default toast.
func Info(title, desc string) Toast { return Toast{Title: title, Description: desc, Variant: Default} }

// Error builds a destructive toast.
func Error(title, desc string) Toast {
	return Toast{Title: title, Description: desc, Variant: Destructive}
}

// maxQueued bounds the queue of a viewer that never renders a page.
const maxQueued = 32

// Queue buffers toasts until the next page render drains them.
type Queue struct {
	mu    sync.Mutex
	items []Toast
}

var _ Notifier = (*Queue)(nil)

// Notify appends t, dropping the oldest toast when the queue is full.
func (q *Queue) Notify(t Toast) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= maxQueued {
		q.items = q.items[1:]
	}
	q.items = append(q.items, t)
}

// Drain returns and removes all queued toasts.
func (q *Queue) Drain() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Discard drops every toast.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(Toast) {}
