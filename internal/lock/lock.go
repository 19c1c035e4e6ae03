// Package lock serializes read-modify-write sequences on one cart or one
// product. The cart and review services take a lock around each operation
// so two requests cannot both pass a stock or duplicate check on stale data.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/metrics"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Mode selects the locking strategy.
type Mode string

const (
	// ModeNone applies no serialization.
	ModeNone Mode = "none"
	// ModeLocal serializes within one process.
	ModeLocal Mode = "local"
	// ModeRedis serializes across instances sharing a Redis server.
	ModeRedis Mode = "redis"
)

// ParseMode validates s.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeNone, ModeLocal, ModeRedis:
		return m, nil
	}
	return "", fmt.Errorf("invalid lock mode %q", s)
}

// Locker hands out exclusive access to a key until unlock is called.
type Locker interface {
	Acquire(ctx context.Context, key string) (unlock func(), err error)
}

// Key helpers shared by the services.
func CartKey(userID string) string       { return "cart:" + userID }
func ProductKey(productID string) string { return "product:" + productID }

// Noop never blocks.
type Noop struct{}

// Acquire returns immediately.
func (Noop) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// ---------------------------------------------------------------------------
// local

type entry struct {
	ch   chan struct{}
	refs int
}

// Local is a keyed mutex. Entries are dropped once no caller holds or waits
// for them, so the map stays proportional to live contention.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

// Acquire blocks until key is free or ctx is done.
func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	start := time.Now()

	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		metrics.LockAcquisitions.WithLabelValues(string(ModeLocal), metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
	}

	metrics.LockWait.WithLabelValues(string(ModeLocal)).Observe(time.Since(start).Seconds())
	metrics.LockAcquisitions.WithLabelValues(string(ModeLocal), metrics.OutcomeSuccess).Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// ---------------------------------------------------------------------------
// redis

const redisKeyPrefix = "lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig tunes the distributed lock.
type RedisConfig struct {
	// TTL bounds how long a crashed holder can block others.
	TTL time.Duration
	// RetryInterval is the pause between SET NX attempts.
	RetryInterval time.Duration
}

// Redis is a single-instance Redis lock (SET NX PX plus a token-checked release).
type Redis struct {
	client *redis.Client
	cfg    RedisConfig
	logger *slog.Logger
}

// NewRedis creates a distributed locker.
func NewRedis(client *redis.Client, cfg RedisConfig, logger *slog.Logger) *Redis {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 25 * time.Millisecond
	}
	return &Redis{client: client, cfg: cfg, logger: logger}
}

// Acquire retries until the key is taken or ctx is done. A Redis failure is
// reported as an upstream error rather than silently skipping the lock.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	start := time.Now()
	k := redisKeyPrefix + key
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(r.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, k, token, r.cfg.TTL).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			metrics.LockAcquisitions.WithLabelValues(string(ModeRedis), metrics.OutcomeFailure).Inc()
			return nil, apperrors.Upstream("lock store", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			metrics.LockAcquisitions.WithLabelValues(string(ModeRedis), metrics.OutcomeFailure).Inc()
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}

	metrics.LockWait.WithLabelValues(string(ModeRedis)).Observe(time.Since(start).Seconds())
	metrics.LockAcquisitions.WithLabelValues(string(ModeRedis), metrics.OutcomeSuccess).Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			// The request context may already be cancelled; release regardless.
			relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if err := releaseScript.Run(relCtx, r.client, []string{k}, token).Err(); err != nil {
				r.logger.WarnContext(ctx, "failed to release lock",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		})
	}, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// New builds the Locker for mode. client may be nil unless mode is ModeRedis.
func New(mode Mode, client *redis.Client, cfg RedisConfig, logger *slog.Logger) (Locker, error) {
	switch mode {
	case ModeNone:
		return Noop{}, nil
	case ModeLocal, "":
		return NewLocal(), nil
	case ModeRedis:
		if client == nil {
			return nil, errors.New("redis lock mode requires a redis client")
		}
		return NewRedis(client, cfg, logger), nil
	}
	return nil, fmt.Errorf("invalid lock mode %q", mode)
}
