package service

import (
	"context"
	"sync"
	"time"

	dErrors "refhub/pkg/domain-errors"
	"refhub/internal/referral/store"
)

// StoreTx provides the transactional boundary for one signup or update. The
// callback's ctx carries the transaction; stores pick it up so the pool
// claim, user insert, and edge recording commit or roll back as one unit.
// Implementations may wrap a database transaction or, in-memory, a coarse
// lock with snapshot rollback.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const defaultTxTimeout = 5 * time.Second

// memoryTx serializes transactions over a Memory store and restores a
// snapshot when the callback fails, mirroring database rollback semantics.
type memoryTx struct {
	mu      sync.Mutex
	store   *store.Memory
	timeout time.Duration
}

// NewMemoryTx wraps a Memory store in a StoreTx.
func NewMemoryTx(s *store.Memory) StoreTx {
	return &memoryTx{store: s, timeout: defaultTxTimeout}
}

func (t *memoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	snap := t.store.Snapshot()
	if err := fn(ctx); err != nil {
		t.store.Restore(snap)
		return err
	}
	return nil
}
