// Package flock provides exclusive advisory file locks shared between
// processes. Locks are non-blocking; Lock polls.
package flock

import (
	"context"
	"os"
	"time"
)

// Lock takes an exclusive lock on f, retrying every poll until ctx is done.
func Lock(ctx context.Context, f *os.File, poll time.Duration) error {
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		ok, err := TryLock(f)
		if err != nil || ok {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
