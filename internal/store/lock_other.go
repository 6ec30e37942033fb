//go:build !unix

package store

import (
	"context"
	"sync"
)

// Without flock the lock only excludes holders inside this process.
var localLocks sync.Map

func lockFile(ctx context.Context, path string) (func(), error) {
	v, _ := localLocks.LoadOrStore(path, make(chan struct{}, 1))
	ch := v.(chan struct{})
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
