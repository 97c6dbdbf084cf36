package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisChannel = "flowengine:notifications"
	defaultRecentLimit  = 100
	defaultRecentTTL    = 7 * 24 * time.Hour
)

// RedisSink publishes notifications on a Redis pub/sub channel and keeps a
// capped list of recent notifications per instance.
type RedisSink struct {
	client      *redis.Client
	channel     string
	recentLimit int64
	recentTTL   time.Duration
	logger      *slog.Logger
}

// RedisOption configures a RedisSink.
type RedisOption func(*RedisSink)

// WithChannel sets the pub/sub channel name.
func WithChannel(channel string) RedisOption {
	return func(s *RedisSink) {
		if channel != "" {
			s.channel = channel
		}
	}
}

// WithRecent sets how many notifications are kept per instance and for how
// long. A zero limit disables the recent list.
func WithRecent(limit int, ttl time.Duration) RedisOption {
	return func(s *RedisSink) {
		s.recentLimit = int64(limit)
		s.recentTTL = ttl
	}
}

// WithLogger sets the logger used for undecodable messages.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(s *RedisSink) {
		s.logger = logger
	}
}

// NewRedisSink creates a Redis-backed Sink.
//
//	sink := NewRedisSink(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithChannel("approvals"),
//	)
func NewRedisSink(client *redis.Client, opts ...RedisOption) *RedisSink {
	s := &RedisSink{
		client:      client,
		channel:     defaultRedisChannel,
		recentLimit: defaultRecentLimit,
		recentTTL:   defaultRecentTTL,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Channel returns the pub/sub channel name.
func (s *RedisSink) Channel() string { return s.channel }

// Publish sends n to the channel and records it in the instance's recent list.
func (s *RedisSink) Publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Publish(ctx, s.channel, data)
	if s.recentLimit > 0 && n.InstanceID != "" {
		key := s.recentKey(n.InstanceID)
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, s.recentLimit-1)
		if s.recentTTL > 0 {
			pipe.Expire(ctx, key, s.recentTTL)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish notification %s: %w", n.Type, err)
	}
	return nil
}

// Recent returns the most recent notifications for an instance, newest first.
func (s *RedisSink) Recent(ctx context.Context, instanceID string, limit int64) ([]Notification, error) {
	if limit <= 0 {
		limit = s.recentLimit
	}
	raw, err := s.client.LRange(ctx, s.recentKey(instanceID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent notifications: %w", err)
	}
	out := make([]Notification, 0, len(raw))
	for _, r := range raw {
		var n Notification
		if err := json.Unmarshal([]byte(r), &n); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Subscribe listens on the channel and forwards matching notifications.
// The returned channel closes after cancel is called or ctx is done; cancel
// must always be called to release the connection.
func (s *RedisSink) Subscribe(ctx context.Context, filter Filter) (<-chan Notification, func(), error) {
	ps := s.client.Subscribe(ctx, s.channel)
	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	out := make(chan Notification, defaultChannelBuffer)
	subCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var n Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					s.logger.Warn("dropping undecodable notification", slog.String("channel", msg.Channel), slog.Any("error", err))
					continue
				}
				if !filter.Matches(n) {
					continue
				}
				select {
				case out <- n:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	cancel := func() {
		stop()
		_ = ps.Close()
		<-done
	}
	return out, cancel, nil
}

func (s *RedisSink) recentKey(instanceID string) string {
	return s.channel + ":instance:" + instanceID
}
