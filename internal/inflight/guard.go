// Package inflight rejects a second submission of the same mutating
// request while the first one is still being processed.  Keys are held in
// Redis so the guard spans every server instance; without Redis a
// process-local map is used.
package inflight

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrInFlight is returned when the key is already held.
var ErrInFlight = errors.New("inflight: request already in progress")

// Guard hands out exclusive holds on request keys.  The returned release
// must be called once the request has finished.
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// New returns a Redis backed guard, or a local one when rdb is nil.
func New(rdb *redis.Client, ttl time.Duration, log *zap.Logger) Guard {
	if rdb == nil {
		return NewLocalGuard()
	}
	return NewRedisGuard(rdb, ttl, log)
}

// releaseScript deletes the key only if it still carries our token, so a
// hold that expired and was re-acquired by another request is left alone.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisGuard holds keys with SET NX PX.  The TTL bounds how long a
// crashed request can block retries.
type RedisGuard struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    *zap.Logger
}

// NewRedisGuard builds a RedisGuard.  A non-positive ttl defaults to 30s.
func NewRedisGuard(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *RedisGuard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisGuard{rdb: rdb, ttl: ttl, prefix: "inflight:", log: log}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	k := g.prefix + key
	token := uuid.NewString()
	ok, err := g.rdb.SetNX(ctx, k, token, g.ttl).Result()
	if err != nil {
		// Redis outage: let the request through, the conditional writes
		// in the store still reject double transitions.
		g.log.Warn("inflight guard unavailable", zap.String("key", k), zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, ErrInFlight
	}
	return func() {
		if err := releaseScript.Run(context.Background(), g.rdb, []string{k}, token).Err(); err != nil {
			g.log.Warn("inflight release failed", zap.String("key", k), zap.Error(err))
		}
	}, nil
}

// LocalGuard is a single-process Guard.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]struct{})}
}

func (g *LocalGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return nil, ErrInFlight
	}
	g.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}
