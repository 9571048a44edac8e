// Package realtime implements the table change feed: an in-process broker for
// single-node deployments and a Redis pub/sub broker for several nodes.
package realtime

import (
	"context"
	"sync"

	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/platform"
	"github.com/and161185/fashion-nexus/internal/pubsub"
)

// subscriberBuffer bounds undelivered changes per subscriber. Consumers
// resync fully on any change, so a full buffer drops the newcomer.
const subscriberBuffer = 16

// Memory is an in-process change feed.
type Memory struct {
	topic *pubsub.Topic[model.Change]
}

var _ platform.Realtime = (*Memory)(nil)

// NewMemory creates an empty in-process feed.
func NewMemory() *Memory { return &Memory{topic: pubsub.New[model.Change]()} }

// Publish fans c out to matching subscribers.
func (m *Memory) Publish(_ context.Context, c model.Change) error {
	m.topic.Publish(c)
	return nil
}

// Subscribe delivers changes of the named tables until ctx ends or cancel is called.
func (m *Memory) Subscribe(ctx context.Context, tables ...string) (<-chan model.Change, func()) {
	src, cancel := m.topic.Subscribe(subscriberBuffer, true)
	return forward(ctx, src, cancel, tables)
}

// Close ends every subscription.
func (m *Memory) Close() { m.topic.Close() }

// forward copies changes of the named tables from src to a new channel until
// src closes, ctx ends or the returned cancel is called.
func forward(ctx context.Context, src <-chan model.Change, stop func(), tables []string) (<-chan model.Change, func()) {
	want := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		want[t] = struct{}{}
	}
	out := make(chan model.Change, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(done); stop() }) }

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case c, ok := <-src:
				if !ok {
					return
				}
				if _, hit := want[c.Table]; !hit && len(want) > 0 {
					continue
				}
				select {
				case out <- c:
				default:
				}
			}
		}
	}()
	return out, cancel
}
