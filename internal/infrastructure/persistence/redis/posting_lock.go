package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// PostingLock makes sure a scheduled post for one scope and occurrence is
// sent by a single worker. Keys are never released: they expire after TTL,
// long after the occurrence has passed.
type PostingLock struct {
	store  Store
	holder string
	ttl    time.Duration
}

// NewPostingLock creates a lock; holder identifies this worker in the key value.
func NewPostingLock(store Store, holder string, ttl time.Duration) *PostingLock {
	if ttl <= 0 {
		ttl = TTLPostLock
	}
	return &PostingLock{store: store, holder: holder, ttl: ttl}
}

// PostLockKey returns lock:post:<scope>:<kind>:<unix seconds>.
func PostLockKey(scope shared.ScopeID, kind string, at time.Time) string {
	return LockKey("post", string(scope), kind, strconv.FormatInt(at.Unix(), 10))
}

// TryAcquire returns true if this worker may send the post.
func (l *PostingLock) TryAcquire(ctx context.Context, scope shared.ScopeID, kind string, at time.Time) (bool, error) {
	ok, err := l.store.SetNX(ctx, PostLockKey(scope, kind, at), l.holder, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire post lock: %w", err)
	}
	return ok, nil
}

// Release drops the lock so a failed post can be retried on the next tick.
func (l *PostingLock) Release(ctx context.Context, scope shared.ScopeID, kind string, at time.Time) error {
	return l.store.Delete(ctx, PostLockKey(scope, kind, at))
}
