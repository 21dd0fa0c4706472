package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the pub/sub channel used when none is configured.
const DefaultRedisChannel = "flowcanvas:events"

// RedisHub fans events out through a Redis pub/sub channel so several
// server instances share one event stream. Events travel as JSON; payloads
// arrive at subscribers as decoded JSON values.
type RedisHub struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
	local   *MemoryHub

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisHub connects to the Redis server at url (redis://host:port/db).
func NewRedisHub(ctx context.Context, url, channel string, logger *slog.Logger) (*RedisHub, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisHubFromClient(client, channel, logger), nil
}

// NewRedisHubFromClient wraps an existing client.
func NewRedisHubFromClient(client *redis.Client, channel string, logger *slog.Logger) *RedisHub {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisHub{
		client:  client,
		channel: channel,
		logger:  logger,
		local:   NewMemoryHub(),
	}
}

// Publish encodes event and publishes it on the hub channel.
func (h *RedisHub) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(stamp(event))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := h.client.Publish(ctx, h.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe registers a local subscriber. The first call starts the shared
// Redis subscription that feeds all local subscribers.
func (h *RedisHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan Event, func(), error) {
	if err := h.ensureListening(ctx); err != nil {
		return nil, nil, err
	}
	return h.local.Subscribe(ctx, filter)
}

func (h *RedisHub) ensureListening(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pubsub != nil {
		return nil
	}
	ps := h.client.Subscribe(ctx, h.channel)
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", h.channel, err)
	}
	h.pubsub = ps
	h.done = make(chan struct{})
	go h.listen(ps.Channel(), h.done)
	return nil
}

func (h *RedisHub) listen(msgs <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range msgs {
		var e Event
		if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
			h.logger.Warn("dropping malformed event", "channel", msg.Channel, "error", err)
			continue
		}
		h.local.deliver(e)
	}
}

// Dropped counts events local subscribers missed because their queue was full.
func (h *RedisHub) Dropped() uint64 { return h.local.Dropped() }

// Close stops the Redis subscription and closes the client.
func (h *RedisHub) Close() error {
	h.mu.Lock()
	ps, done := h.pubsub, h.done
	h.pubsub = nil
	h.mu.Unlock()

	if ps != nil {
		_ = ps.Close()
		<-done
	}
	return h.client.Close()
}
