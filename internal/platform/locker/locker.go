// Package locker serializes writers per aggregate id across processes.
package locker

import (
	"context"
	"time"

	"github.com/ehr/claims/internal/platform/apperr"
	"github.com/ehr/claims/internal/platform/db"
)

// Locker grants short-lived exclusive leases on keys. A lease is identified by
// the token returned from TryLock and only that token can release it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

const (
	retryAttempts = 5
	retryDelay    = 25 * time.Millisecond
)

// Key names the lock for one aggregate. Ids are only unique within a tenant
// schema, so the tenant on ctx is part of the key.
func Key(ctx context.Context, aggregate, id string) string {
	if tenant := db.TenantFromContext(ctx); tenant != "" {
		return tenant + ":" + aggregate + ":" + id
	}
	return aggregate + ":" + id
}

// WithLock runs fn while holding key. It retries briefly when the key is held
// and then gives up with a conflict error.
func WithLock(ctx context.Context, l Locker, key string, ttl time.Duration, fn func() error) error {
	var (
		token string
		ok    bool
		err   error
	)
	for attempt := 0; attempt < retryAttempts; attempt++ {
		token, ok, err = l.TryLock(ctx, key, ttl)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay * time.Duration(attempt+1)):
		}
	}
	if !ok {
		return apperr.Conflict("%s is being modified by another request", key)
	}
	defer func() { _ = l.Unlock(context.WithoutCancel(ctx), key, token) }()
	return fn()
}
