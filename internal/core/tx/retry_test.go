package tx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeManager struct {
	inTx  bool
	calls int
}

func (m *fakeManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

func (m *fakeManager) InTransaction(ctx context.Context) bool { return m.inTx }

var errBusy = errors.New("busy")

func isBusy(err error) bool { return errors.Is(err, errBusy) }

func TestRunWithRetry(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		m := &fakeManager{}
		runs := 0
		err := RunWithRetry(context.Background(), m, policy, isBusy, func(ctx context.Context) error {
			runs++
			if runs < 3 {
				return errBusy
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, m.calls)
	})

	t.Run("returns last error when exhausted", func(t *testing.T) {
		m := &fakeManager{}
		err := RunWithRetry(context.Background(), m, policy, isBusy, func(ctx context.Context) error {
			return errBusy
		})
		assert.ErrorIs(t, err, errBusy)
		assert.Equal(t, 3, m.calls)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		m := &fakeManager{}
		boom := errors.New("boom")
		err := RunWithRetry(context.Background(), m, policy, isBusy, func(ctx context.Context) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, m.calls)
	})

	t.Run("no retry inside an enclosing transaction", func(t *testing.T) {
		m := &fakeManager{inTx: true}
		err := RunWithRetry(context.Background(), m, policy, isBusy, func(ctx context.Context) error {
			return errBusy
		})
		assert.ErrorIs(t, err, errBusy)
		assert.Equal(t, 1, m.calls)
	})
}

func TestAfterCommit(t *testing.T) {
	t.Run("runs immediately without hooks", func(t *testing.T) {
		ran := false
		AfterCommit(context.Background(), func(ctx context.Context) { ran = true })
		assert.True(t, ran)
	})

	t.Run("deferred until Run", func(t *testing.T) {
		ctx, hooks := WithHooks(context.Background())
		var order []int
		AfterCommit(ctx, func(ctx context.Context) { order = append(order, 1) })
		AfterCommit(ctx, func(ctx context.Context) { order = append(order, 2) })
		assert.Empty(t, order)

		hooks.Run(ctx)
		assert.Equal(t, []int{1, 2}, order)

		hooks.Run(ctx)
		assert.Equal(t, []int{1, 2}, order)
	})
}

type snapshotManager struct {
	fakeManager
	readOnly int
}

func (m *snapshotManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	m.readOnly++
	return fn(ctx)
}

func TestReadOnly(t *testing.T) {
	noop := func(ctx context.Context) error { return nil }

	plain := &fakeManager{}
	require.NoError(t, ReadOnly(context.Background(), plain, noop))
	assert.Equal(t, 1, plain.calls)

	snap := &snapshotManager{}
	require.NoError(t, ReadOnly(context.Background(), snap, noop))
	assert.Equal(t, 1, snap.readOnly)
	assert.Zero(t, snap.calls)
}
