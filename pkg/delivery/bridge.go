package delivery

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/penf-live/pkg/logging"
)

// channelPrefix namespaces per-session broker channels.
const channelPrefix = "live:session:"

// ChannelForSession returns the broker channel name for a session.
func ChannelForSession(sessionID string) string {
	return channelPrefix + sessionID
}

// Broker is the publish/subscribe surface the bridge needs. Publishing and
// subscribing are the only two broker operations the delivery layer uses.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription is one live channel subscription.
type Subscription interface {
	// Messages yields payloads until the subscription is closed.
	Messages() <-chan []byte
	Close() error
}

// Bridge connects the local registry to the cross-process broker. Results
// produced by any worker reach this worker's clients through the session
// channel. The bridge subscribes exactly once per session while the session
// has local connections, driven by the registry's SessionHook.
type Bridge struct {
	broker  Broker
	deliver func(sessionID string, payload []byte)
	logger  logging.Logger

	mu   sync.Mutex
	subs map[string]*bridgeSub
}

type bridgeSub struct {
	sub    Subscription
	cancel context.CancelFunc
}

// NewBridge creates a bridge that hands received payloads to deliver.
func NewBridge(broker Broker, deliver func(sessionID string, payload []byte), logger logging.Logger) *Bridge {
	return &Bridge{
		broker:  broker,
		deliver: deliver,
		logger:  logger.With(logging.F("component", "delivery_bridge")),
		subs:    make(map[string]*bridgeSub),
	}
}

// Publish sends an envelope to the session's channel. Every subscribed
// worker, this one included, relays it to its local clients; local delivery
// goes through the broker too, so ordering is identical on every worker.
func (b *Bridge) Publish(ctx context.Context, sessionID string, env Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.broker.Publish(ctx, ChannelForSession(sessionID), payload); err != nil {
		return fmt.Errorf("publish to session channel: %w", err)
	}
	return nil
}

// SessionActive subscribes to the session's channel. Called by the registry
// when a session gains its first local connection; a second call for an
// already-subscribed session is a no-op.
func (b *Bridge) SessionActive(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sessionID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.broker.Subscribe(ctx, ChannelForSession(sessionID))
	if err != nil {
		cancel()
		b.logger.Error("subscribe failed", logging.F("session_id", sessionID), logging.Err(err))
		return
	}
	b.subs[sessionID] = &bridgeSub{sub: sub, cancel: cancel}

	go func() {
		for payload := range sub.Messages() {
			b.deliver(sessionID, payload)
		}
	}()
	b.logger.Info("subscribed to session channel", logging.F("session_id", sessionID))
}

// SessionIdle unsubscribes from the session's channel. Called by the
// registry when the session's last local connection goes away.
func (b *Bridge) SessionIdle(sessionID string) {
	b.mu.Lock()
	s, ok := b.subs[sessionID]
	delete(b.subs, sessionID)
	b.mu.Unlock()

	if !ok {
		return
	}
	s.cancel()
	if err := s.sub.Close(); err != nil {
		b.logger.Warn("unsubscribe failed", logging.F("session_id", sessionID), logging.Err(err))
	}
	b.logger.Info("unsubscribed from session channel", logging.F("session_id", sessionID))
}

// Close tears down every remaining subscription.
func (b *Bridge) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*bridgeSub)
	b.mu.Unlock()

	for id, s := range subs {
		s.cancel()
		if err := s.sub.Close(); err != nil {
			b.logger.Warn("unsubscribe failed", logging.F("session_id", id), logging.Err(err))
		}
	}
}

// Verify the bridge satisfies the registry's hook contract.
var _ SessionHook = (*Bridge)(nil)

// redisBroker adapts go-redis pub/sub to the Broker interface.
type redisBroker struct {
	client *redis.Client
}

// NewRedisBroker wraps a Redis client as a delivery broker.
func NewRedisBroker(client *redis.Client) Broker {
	return &redisBroker{client: client}
}

func (r *redisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

func (r *redisBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, channel)
	// Receive forces the SUBSCRIBE round trip so failures surface here
	// instead of silently dropping messages later.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return &redisSubscription{ps: ps, out: out}, nil
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan []byte
}

func (s *redisSubscription) Messages() <-chan []byte { return s.out }
func (s *redisSubscription) Close() error            { return s.ps.Close() }
