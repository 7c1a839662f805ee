package backup

import "context"

// Lock serializes crawls: Google throttles aggressively and two
// concurrent crawls would fight over the same page-token cursor
// anyway. One Lock is shared process-wide.
type Lock struct {
	sem chan struct{}
}

// NewLock returns an unheld lock.
func NewLock() *Lock {
	return &Lock{sem: make(chan struct{}, 1)}
}

// TryAcquire grabs the lock without blocking.
func (l *Lock) TryAcquire() bool {
	select {
	case l.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire blocks until the lock is free or ctx is done.
func (l *Lock) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the lock. Must pair with a successful acquire.
func (l *Lock) Release() {
	<-l.sem
}
