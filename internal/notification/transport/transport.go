// Package transport implements notification publishers and subscribers over
// the supported push transports.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Handler receives one raw payload from a channel.
type Handler func(payload []byte)

// Subscriber delivers every payload published on channel to handle until ctx
// is cancelled. Subscribe blocks.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handle Handler) error
}

// Publisher mirrors notification.Publisher so this package stays independent.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Fanout publishes to several publishers and fails if any of them fails.
// Retries therefore re-deliver to every target.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, channel string, payload []byte) error {
	var errs []error
	for i, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, channel, payload); err != nil {
			errs = append(errs, fmt.Errorf("publisher %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
