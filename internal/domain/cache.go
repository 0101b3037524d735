package domain

import (
	"context"
	"time"
)

// RateLimiter reserves request slots shared by every process using the same
// key. The quota guard spends one per quote; the API server one per request.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager holds a lease that keeps two bots off the same account.
// Acquire fails with ErrLockHeld while another holder's lease is live.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
	Refresh(ctx context.Context, key string, ttl time.Duration) error
}

// SignalBus fans journaled cycles out to other processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
