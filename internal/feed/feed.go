// Package feed delivers per-user change notifications.
//
// A Broker fans events out to every subscription of the same user, including
// the subscription of the connection that produced the change. Delivery is
// ordered per subscription. A subscription whose channel is closed by the
// broker has been dropped; the consumer must subscribe again and resync.
package feed

import (
	"context"
	"errors"
)

// ErrClosed is returned when publishing to or subscribing on a closed broker.
var ErrClosed = errors.New("feed closed")

// Subscription is one live stream of events for a user.
type Subscription[E any] interface {
	// Events is closed when the subscription ends, either by Close or by the broker dropping it.
	Events() <-chan E
	// Close is idempotent.
	Close() error
}

type Publisher[E any] interface {
	Publish(ctx context.Context, userID string, ev E) error
}

type Subscriber[E any] interface {
	Subscribe(ctx context.Context, userID string) (Subscription[E], error)
}

// Broker is both ends of a feed.
type Broker[E any] interface {
	Publisher[E]
	Subscriber[E]
}
