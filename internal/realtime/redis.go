package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus fans change notifications out through Redis Pub/Sub, so every
// API node sees writes made on any other node.
type RedisBus struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedisBus(client *redis.Client, prefix string, logger *zap.Logger) *RedisBus {
	return &RedisBus{client: client, prefix: prefix, logger: logger}
}

func (b *RedisBus) channel(topic string) string {
	return b.prefix + topic
}

func (b *RedisBus) Publish(ctx context.Context, topic string) error {
	if err := b.client.Publish(ctx, b.channel(topic), "changed").Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so a publish
// issued after Subscribe returns is never missed.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Listener, error) {
	ps := b.client.Subscribe(ctx, b.channel(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	l := &redisListener{notifier: newNotifier(), ps: ps}
	go l.pump(b.logger.With(zap.String("topic", topic)))
	return l, nil
}

func (b *RedisBus) Close() error {
	return nil
}

type redisListener struct {
	*notifier
	ps *redis.PubSub
}

func (l *redisListener) C() <-chan struct{} { return l.ch }

func (l *redisListener) Close() error {
	return l.ps.Close()
}

// pump turns Pub/Sub messages into ticks until the PubSub is closed.
func (l *redisListener) pump(logger *zap.Logger) {
	defer l.close()
	for range l.ps.Channel() {
		l.notify()
	}
	logger.Debug("redis listener stopped")
}
