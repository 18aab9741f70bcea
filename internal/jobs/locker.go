package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrLockNotObtained = errors.New("price list is locked by another worker")

// JobLocker serialises work on a set of price lists across worker replicas.
type JobLocker interface {
	// Lock takes one lock per id in ascending order. The returned func
	// releases every lock taken.
	Lock(ctx context.Context, ids ...uuid.UUID) (func(), error)
}

type redisJobLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisJobLocker(client *redislock.Client, ttl time.Duration, logger *zap.Logger) JobLocker {
	return &redisJobLocker{client: client, ttl: ttl, logger: logger}
}

func lockKey(id uuid.UUID) string {
	return fmt.Sprintf("lock:price_list:%s", id)
}

func (l *redisJobLocker) Lock(ctx context.Context, ids ...uuid.UUID) (func(), error) {
	var held []*redislock.Lock
	release := func() {
		for _, lock := range held {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.logger.Warn("failed to release job lock", zap.String("key", lock.Key()), zap.Error(err))
			}
		}
	}

	for _, id := range sortedUnique(ids) {
		lock, err := l.client.Obtain(ctx, lockKey(id), l.ttl, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			release()
			return nil, fmt.Errorf("%w: %s", ErrLockNotObtained, id)
		}
		if err != nil {
			release()
			return nil, fmt.Errorf("obtain lock for %s: %w", id, err)
		}
		held = append(held, lock)
	}
	return release, nil
}

func sortedUnique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return out
}
