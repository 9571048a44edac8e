package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/and161185/fashion-nexus/internal/platform"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis is a change feed over Redis pub/sub with one channel per table.
type Redis struct {
	rdb    *redis.Client
	prefix string
	log    *zap.Logger
}

var _ platform.Realtime = (*Redis)(nil)

// NewRedis creates a feed publishing on "<prefix>:<table>".
func NewRedis(rdb *redis.Client, prefix string, log *zap.Logger) *Redis {
	if prefix == "" {
		prefix = "nexus"
	}
	return &Redis{rdb: rdb, prefix: prefix, log: log}
}

func (r *Redis) channel(table string) string { return r.prefix + ":" + table }

// Publish sends c to the table's channel.
func (r *Redis) Publish(ctx context.Context, c model.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.channel(c.Table), payload).Err(); err != nil {
		r.log.Warn("publish change", zap.String("table", c.Table), zap.Error(err))
		return fmt.Errorf("publish %s: %w", c.Table, err)
	}
	return nil
}

// Subscribe delivers changes of the named tables until ctx ends or cancel is called.
func (r *Redis) Subscribe(ctx context.Context, tables ...string) (<-chan model.Change, func()) {
	channels := make([]string, len(tables))
	for i, t := range tables {
		channels[i] = r.channel(t)
	}
	ps := r.rdb.Subscribe(ctx, channels...)
	msgs := ps.Channel(redis.WithChannelSize(subscriberBuffer))

	src := make(chan model.Change)
	stopped := make(chan struct{})
	go func() {
		defer close(src)
		for {
			select {
			case <-stopped:
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var c model.Change
				if err := json.Unmarshal([]byte(m.Payload), &c); err != nil {
					r.log.Warn("bad change payload", zap.String("channel", m.Channel), zap.Error(err))
					continue
				}
				select {
				case src <- c:
				case <-stopped:
					return
				}
			}
		}
	}()

	stop := func() {
		close(stopped)
		if err := ps.Close(); err != nil {
			r.log.Debug("close subscription", zap.Error(err))
		}
	}
	return forward(ctx, src, stop, tables)
}
