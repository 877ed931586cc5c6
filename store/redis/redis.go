// Package redis is a KVStore and ChangeFeed on Redis. Several server
// processes sharing one Redis see each other's policy changes through the
// pub/sub channel.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/settlement-engine/generic"
)

type Config struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration

	// Prefix namespaces every key and the change channel.
	Prefix string
}

type Client = goredis.Client

// Connect opens a client and pings it.
func Connect(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// Store implements generic.KVStore and generic.ChangeFeed.
type Store struct {
	raw    *Client
	prefix string
	logger *zap.Logger
}

var (
	_ generic.KVStore    = (*Store)(nil)
	_ generic.ChangeFeed = (*Store)(nil)
)

func NewStore(raw *Client, prefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "settlement:"
	}
	return &Store{raw: raw, prefix: prefix, logger: logger}
}

func (s *Store) Close() error {
	if s.raw == nil {
		return nil
	}
	return s.raw.Close()
}

func (s *Store) withPrefix(key string) string { return s.prefix + key }

func (s *Store) channel() string { return s.prefix + "changes" }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.raw.Get(ctx, s.withPrefix(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, generic.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.raw.Set(ctx, s.withPrefix(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.raw.Del(ctx, s.withPrefix(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// List scans the keyspace; the result is not a point-in-time snapshot.
func (s *Store) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	pattern := escapeGlob(s.withPrefix(prefix)) + "*"
	out := make(map[string][]byte)

	var cursor uint64
	for {
		keys, next, err := s.raw.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
		}
		if len(keys) > 0 {
			values, err := s.raw.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, fmt.Errorf("redis mget %s: %w", prefix, err)
			}
			for i, v := range values {
				str, ok := v.(string)
				if !ok {
					// Deleted between SCAN and MGET.
					continue
				}
				out[strings.TrimPrefix(keys[i], s.prefix)] = []byte(str)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func (s *Store) Publish(ctx context.Context, key string) error {
	if err := s.raw.Publish(ctx, s.channel(), key).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", key, err)
	}
	return nil
}

// Changes subscribes before returning, so a Publish issued after Changes
// returns is always delivered.
func (s *Store) Changes(ctx context.Context) (<-chan string, error) {
	sub := s.raw.Subscribe(ctx, s.channel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", s.channel(), err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					s.logger.Warn("redis change channel closed", zap.String("channel", s.channel()))
					return
				}
				select {
				case out <- m.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
