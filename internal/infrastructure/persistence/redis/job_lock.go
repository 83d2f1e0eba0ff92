package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobLock provides coarse single-flight locks for scheduled jobs. Multiple
// worker processes may run the same schedule; the lock makes sure only one of
// them executes a given job at a time. The lease bounds how long a crashed
// holder can block the others.
type JobLock struct {
	cache *Cache
}

// NewJobLock creates a JobLock on top of the generic cache.
func NewJobLock(cache *Cache) *JobLock {
	return &JobLock{cache: cache}
}

// Lease is a held job lock. Release it when the job finishes.
type Lease struct {
	cache *Cache
	key   string
	token string
}

// Acquire tries to take the lock for a job. It returns (nil, false, nil) when
// another worker already holds it.
func (j *JobLock) Acquire(ctx context.Context, job string, ttl time.Duration) (*Lease, bool, error) {
	if ttl <= 0 {
		ttl = TTLJobLock
	}

	key := LockKey(job)
	token := uuid.NewString()

	ok, err := j.cache.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	return &Lease{cache: j.cache, key: key, token: token}, true, nil
}

// Release frees the lock. It only deletes the key when the stored token still
// matches this lease, so a worker whose lease expired cannot release a lock
// that has since been taken by someone else.
func (l *Lease) Release(ctx context.Context) error {
	current, err := l.cache.GetString(ctx, l.key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		return err
	}
	if current != l.token {
		return nil
	}

	return l.cache.Delete(ctx, l.key)
}
