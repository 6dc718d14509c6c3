package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/price-streamer/internal/model"
)

// deleteChunk bounds the number of keys per DEL command.
const deleteChunk = 500

// scanCount is the SCAN COUNT hint.
const scanCount = 1000

// Config holds Redis connection settings.
type Config struct {
	Addr               string
	Password           string
	DB                 int
	DialTimeout        time.Duration
	ConnectAttempts    int
	ConnectRetryDelay  time.Duration
	DisablePersistence bool // CONFIG SET save "" after connecting
}

// RedisStore wraps a go-redis client with reconnect support.
type RedisStore struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	client *redis.Client
}

// Connect dials Redis, retrying up to cfg.ConnectAttempts times with a fixed
// delay between attempts.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = 1
	}

	s := &RedisStore{
		cfg:    cfg,
		logger: logger.With("component", "redis", "addr", cfg.Addr),
	}

	client, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.client = client

	return s, nil
}

// dial connects and pings, retrying per config.
func (s *RedisStore) dial(ctx context.Context) (*redis.Client, error) {
	var lastErr error

	for attempt := 1; attempt <= s.cfg.ConnectAttempts; attempt++ {
		client := redis.NewClient(&redis.Options{
			Addr:        s.cfg.Addr,
			Password:    s.cfg.Password,
			DB:          s.cfg.DB,
			DialTimeout: s.cfg.DialTimeout,
		})

		err := client.Ping(ctx).Err()
		if err == nil {
			s.logger.Info("connected to redis", "attempt", attempt)
			if s.cfg.DisablePersistence {
				s.disablePersistence(ctx, client)
			}
			return client, nil
		}

		client.Close()
		lastErr = err
		s.logger.Warn("redis connection failed",
			"attempt", attempt,
			"max_attempts", s.cfg.ConnectAttempts,
			"error", err,
		)

		if attempt == s.cfg.ConnectAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.ConnectRetryDelay):
		}
	}

	return nil, fmt.Errorf("connect redis after %d attempts: %w: %w",
		s.cfg.ConnectAttempts, model.ErrCacheUnavailable, lastErr)
}

// disablePersistence turns off RDB snapshots. Managed Redis often rejects
// CONFIG, so failure only logs.
func (s *RedisStore) disablePersistence(ctx context.Context, client *redis.Client) {
	if err := client.ConfigSet(ctx, "save", "").Err(); err != nil {
		s.logger.Warn("could not disable redis persistence", "error", err)
		return
	}
	s.logger.Info("redis persistence disabled")
}

func (s *RedisStore) rdb() *redis.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Reconnect replaces the underlying client with a freshly dialed one.
func (s *RedisStore) Reconnect(ctx context.Context) error {
	client, err := s.dial(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.client
	s.client = client
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return classify(s.rdb().Ping(ctx).Err())
}

// Close closes the client. Later calls fail with ErrCacheUnavailable.
func (s *RedisStore) Close() error {
	return s.rdb().Close()
}

// SetWithTTL writes value under key with an expiry.
func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb().Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, classify(err))
	}
	return nil
}

// Get reads key. found is false when the key does not exist.
func (s *RedisStore) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	value, err = s.rdb().Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, classify(err))
	}
	return value, true, nil
}

// ListKeys returns all keys starting with prefix, using SCAN.
func (s *RedisStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	iter := s.rdb().Scan(ctx, 0, escapePattern(prefix)+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s*: %w", prefix, classify(err))
	}

	return keys, nil
}

// DeleteMany deletes keys in chunks and returns how many existed.
func (s *RedisStore) DeleteMany(ctx context.Context, keys []string) (int64, error) {
	var deleted int64

	for start := 0; start < len(keys); start += deleteChunk {
		end := min(start+deleteChunk, len(keys))
		n, err := s.rdb().Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return deleted, fmt.Errorf("delete keys: %w", classify(err))
		}
		deleted += n
	}

	return deleted, nil
}

// Push LPUSHes value onto a list.
func (s *RedisStore) Push(ctx context.Context, key string, value []byte) error {
	if err := s.rdb().LPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", key, classify(err))
	}
	return nil
}

// PopBlocking BRPOPs one value from a list, waiting up to timeout. ok is
// false when the wait timed out.
func (s *RedisStore) PopBlocking(ctx context.Context, key string, timeout time.Duration) (value []byte, ok bool, err error) {
	res, err := s.rdb().BRPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("brpop %s: %w", key, classify(err))
	}
	// BRPOP replies [key, value].
	if len(res) != 2 {
		return nil, false, fmt.Errorf("brpop %s: unexpected reply length %d", key, len(res))
	}
	return []byte(res[1]), true, nil
}

// classify wraps connection-level failures with ErrCacheUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", model.ErrCacheUnavailable, err)
	}
	return err
}

var patternEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapePattern escapes glob metacharacters for MATCH.
func escapePattern(s string) string {
	return patternEscaper.Replace(s)
}
