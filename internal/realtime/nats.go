package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSBus publishes change notifications on core NATS subjects. Topics are
// already dot-separated, so they map onto subjects directly.
type NATSBus struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

// DialNATS connects to url with the reconnect policy the job workers use.
func DialNATS(url, prefix string, logger *zap.Logger) (*NATSBus, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	logger.Info("connected to NATS", zap.String("url", url))
	return &NATSBus{nc: nc, prefix: prefix, logger: logger}, nil
}

func (b *NATSBus) subject(topic string) string {
	return b.prefix + topic
}

func (b *NATSBus) Publish(_ context.Context, topic string) error {
	if err := b.nc.Publish(b.subject(topic), nil); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(ctx context.Context, topic string) (Listener, error) {
	n := newNotifier()
	sub, err := b.nc.Subscribe(b.subject(topic), func(*nats.Msg) {
		n.notify()
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	// Flush makes sure the server has registered the interest before we
	// hand the listener back.
	if err := b.nc.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscribe %s: %w", topic, err)
	}
	return &natsListener{notifier: n, sub: sub}, nil
}

func (b *NATSBus) Close() error {
	b.nc.Close()
	return nil
}

type natsListener struct {
	*notifier
	sub *nats.Subscription
}

func (l *natsListener) C() <-chan struct{} { return l.ch }

func (l *natsListener) Close() error {
	err := l.sub.Unsubscribe()
	l.close()
	return err
}
