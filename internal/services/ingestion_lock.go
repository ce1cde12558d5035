package services

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"payroll-backend/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// IngestionLock serializes batch ingestion so that leaf indices are never assigned twice.
// The returned release func must be called exactly once.
type IngestionLock interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// acquireTimed wraps Acquire with the lock-wait histogram.
func acquireTimed(ctx context.Context, lock IngestionLock) (func(), error) {
	start := time.Now()
	release, err := lock.Acquire(ctx)
	metrics.IngestionLockWait.Observe(time.Since(start).Seconds())
	return release, err
}

// LocalLock is an in-process lock for single-instance deployments and tests.
type LocalLock struct {
	ch chan struct{}
}

func NewLocalLock() *LocalLock {
	return &LocalLock{ch: make(chan struct{}, 1)}
}

func (l *LocalLock) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.ch <- struct{}{}:
		return func() { <-l.ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AdvisoryLock holds a PostgreSQL session advisory lock on a dedicated connection.
type AdvisoryLock struct {
	db  *sql.DB
	key int64
}

func NewAdvisoryLock(db *sql.DB, name string) *AdvisoryLock {
	return &AdvisoryLock{db: db, key: advisoryKey(name)}
}

// advisoryKey maps a lock name onto the bigint key space of pg_advisory_lock.
func advisoryKey(name string) int64 {
	h := crypto.Keccak256([]byte(name))
	return int64(binary.BigEndian.Uint64(h[:8]))
}

func (l *AdvisoryLock) Acquire(ctx context.Context) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("advisory lock: get connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", l.key); err != nil {
		conn.Close()
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	return func() {
		if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", l.key); err != nil {
			logrus.WithError(err).Warn("⚠️ Failed to release ingestion advisory lock")
		}
		// Closing the session releases the lock even if unlock failed.
		conn.Close()
	}, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

var errLockHeld = errors.New("lock held")

// RedisLock is a SET NX PX lock. The holder keeps extending the TTL while it runs and
// only deletes the key if it still owns it.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLock{client: client, key: key, ttl: ttl}
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.DialTimeout = 10 * time.Second
	opts.MaxRetries = 3
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return errLockHeld
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", l.key, err)
	}

	stop := make(chan struct{})
	go l.keepAlive(token, stop)

	return func() {
		close(stop)
		if err := releaseScript.Run(context.Background(), l.client, []string{l.key}, token).Err(); err != nil {
			logrus.WithError(err).Warn("⚠️ Failed to release ingestion redis lock")
		}
	}, nil
}

func (l *RedisLock) keepAlive(token string, stop <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := refreshScript.Run(context.Background(), l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
			if err != nil {
				logrus.WithError(err).Warn("⚠️ Failed to extend ingestion redis lock")
				continue
			}
			if n == 0 {
				logrus.WithField("key", l.key).Error("❌ Ingestion redis lock lost before release")
				return
			}
		}
	}
}
