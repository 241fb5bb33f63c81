package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"daily-tracker/internal/logger"
)

// slowConsumers maps live subscriptions to the func that drops them when
// the client library reports lost messages.
var slowConsumers sync.Map // *nats.Subscription -> func()

// Connect opens a NATS connection that reconnects forever. onReconnect runs
// after every successful reconnect; events published while disconnected are
// lost, so callers use it to trigger a resync. A subscription that loses
// messages as a slow consumer is closed, like a full Hub subscriber.
func Connect(url string, onReconnect func()) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("daily-tracker"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ErrorHandler(handleAsyncError),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			if onReconnect != nil {
				onReconnect()
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	logger.Info("nats connected", "url", url)
	return nc, nil
}

func handleAsyncError(_ *nats.Conn, sub *nats.Subscription, err error) {
	if sub != nil && errors.Is(err, nats.ErrSlowConsumer) {
		if drop, ok := slowConsumers.Load(sub); ok {
			logger.Warn("feed subscriber dropped, slow consumer", "subject", sub.Subject)
			drop.(func())()
			return
		}
	}
	logger.Warn("nats async error", "error", err)
}

// NATS is a Broker that carries JSON-encoded events on one subject per user:
// "<prefix>.<userID>". The connection must come from Connect for slow
// subscribers to be dropped.
type NATS[E any] struct {
	conn   *nats.Conn
	prefix string
	buffer int
}

func NewNATS[E any](conn *nats.Conn, prefix string, buffer int) *NATS[E] {
	if buffer <= 0 {
		buffer = 64
	}
	return &NATS[E]{conn: conn, prefix: prefix, buffer: buffer}
}

// Subject returns the subject events for userID travel on.
func (n *NATS[E]) Subject(userID string) string {
	return n.prefix + "." + userID
}

func (n *NATS[E]) Publish(ctx context.Context, userID string, ev E) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.conn.Publish(n.Subject(userID), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (n *NATS[E]) Subscribe(_ context.Context, userID string) (Subscription[E], error) {
	if n.conn.IsClosed() {
		return nil, ErrClosed
	}
	msgs := make(chan *nats.Msg, n.buffer)
	sub, err := n.conn.ChanSubscribe(n.Subject(userID), msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", n.Subject(userID), err)
	}

	s := &natsSub[E]{
		sub:  sub,
		out:  make(chan E, n.buffer),
		done: make(chan struct{}),
	}
	slowConsumers.Store(sub, func() { _ = s.Close() })
	go s.pump(msgs)
	return s, nil
}

type natsSub[E any] struct {
	sub  *nats.Subscription
	out  chan E
	done chan struct{}
	once sync.Once
}

func (s *natsSub[E]) Events() <-chan E {
	return s.out
}

func (s *natsSub[E]) Close() error {
	var err error
	s.once.Do(func() {
		slowConsumers.Delete(s.sub)
		close(s.done)
		err = s.sub.Unsubscribe()
		if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
			err = nil
		}
	})
	return err
}

func (s *natsSub[E]) pump(msgs <-chan *nats.Msg) {
	defer close(s.out)
	defer slowConsumers.Delete(s.sub)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			ev, err := Decode[E](msg.Data)
			if err != nil {
				logger.Warn("drop undecodable event", "subject", msg.Subject, "error", err)
				continue
			}
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
	}
}

// Decode parses one JSON-encoded event.
func Decode[E any](data []byte) (E, error) {
	var ev E
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}
