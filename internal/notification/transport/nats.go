package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATS publishes and subscribes on core NATS subjects named after channels.
type NATS struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// DialNATS connects to url with reconnects enabled.
func DialNATS(url, name string, logger *zap.Logger) (*NATS, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return NewNATS(conn, logger), nil
}

// NewNATS wraps an existing connection.
func NewNATS(conn *nats.Conn, logger *zap.Logger) *NATS {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATS{conn: conn, logger: logger}
}

// Publish implements Publisher. The payload is flushed before returning so
// connection failures surface to the caller.
func (n *NATS) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := n.conn.Publish(channel, payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", channel, err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush %s: %w", channel, err)
	}
	return nil
}

// Subscribe implements Subscriber.
func (n *NATS) Subscribe(ctx context.Context, channel string, handle Handler) error {
	sub, err := n.conn.Subscribe(channel, func(msg *nats.Msg) {
		handle(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", channel, err)
	}
	n.logger.Info("nats subscription opened", zap.String("subject", channel))
	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		n.logger.Warn("nats unsubscribe failed", zap.String("subject", channel), zap.Error(err))
	}
	return nil
}

// Close drains the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
