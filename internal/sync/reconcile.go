package sync

import (
	"context"
	"fmt"
	"log"
	"time"
)

// collection binds one record kind to both stores.
type collection[T any] struct {
	name      string
	key       func(T) string
	id        func(T) int64
	createdAt func(T) time.Time

	listLocal  func(ctx context.Context) ([]T, error)
	listRemote func(ctx context.Context) ([]T, error)

	pushCreate func(ctx context.Context, rec T) error
	pushUpdate func(ctx context.Context, remoteID int64, rec T) error
	pullCreate func(ctx context.Context, rec T) error
	pullUpdate func(ctx context.Context, localID int64, rec T) error
}

// index maps business keys to records. When several records share a key
// the one with the latest created_at is kept; on a tie the first one wins.
func index[T any](recs []T, key func(T) string, createdAt func(T) time.Time) map[string]T {
	m := make(map[string]T, len(recs))
	for _, r := range recs {
		k := key(r)
		if cur, ok := m[k]; ok && !createdAt(r).After(createdAt(cur)) {
			continue
		}
		m[k] = r
	}
	return m
}

// reconcile runs both directions for one collection. Both sides are listed
// once up front; records created during the first direction are not seen by
// the second.
func reconcile[T any](ctx context.Context, c collection[T], logger *log.Logger) (CollectionResult, error) {
	var res CollectionResult

	local, err := c.listLocal(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list local %s: %w", c.name, err)
	}
	remote, err := c.listRemote(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list remote %s: %w", c.name, err)
	}

	localByKey := index(local, c.key, c.createdAt)
	remoteByKey := index(remote, c.key, c.createdAt)

	// Local → Remote
	for _, rec := range local {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		k := c.key(rec)
		if c.id(localByKey[k]) != c.id(rec) {
			logger.Printf("WARNING: Skipping local %s %d: key %q is held by %d", c.name, c.id(rec), k, c.id(localByKey[k]))
			continue
		}
		other, ok := remoteByKey[k]
		switch {
		case !ok:
			if err := c.pushCreate(ctx, rec); err != nil {
				logger.Printf("WARNING: Failed to create remote %s %q: %v", c.name, k, err)
				res.Failed++
				continue
			}
			res.Created++
		case c.createdAt(rec).After(c.createdAt(other)):
			if err := c.pushUpdate(ctx, c.id(other), rec); err != nil {
				logger.Printf("WARNING: Failed to update remote %s %q: %v", c.name, k, err)
				res.Failed++
				continue
			}
			res.Updated++
		}
	}

	// Remote → Local
	for _, rec := range remote {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		k := c.key(rec)
		if c.id(remoteByKey[k]) != c.id(rec) {
			logger.Printf("WARNING: Skipping remote %s %d: key %q is held by %d", c.name, c.id(rec), k, c.id(remoteByKey[k]))
			continue
		}
		other, ok := localByKey[k]
		switch {
		case !ok:
			if err := c.pullCreate(ctx, rec); err != nil {
				logger.Printf("WARNING: Failed to create local %s %q: %v", c.name, k, err)
				res.Failed++
				continue
			}
			res.Pulled++
		case c.createdAt(rec).After(c.createdAt(other)):
			if err := c.pullUpdate(ctx, c.id(other), rec); err != nil {
				logger.Printf("WARNING: Failed to update local %s %q: %v", c.name, k, err)
				res.Failed++
				continue
			}
			res.PulledUpdated++
		}
	}

	return res, nil
}
