package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
)

func TestOperationLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		op := newOperation(OpConsume, id.New())
		require.NoError(t, op.advance(OpValidating))
		require.NoError(t, op.advance(OpCommitting))
		require.NoError(t, op.advance(OpCommitted))
		assert.Equal(t, OpCommitted, op.State())
	})

	t.Run("cannot skip validation", func(t *testing.T) {
		op := newOperation(OpConsume, id.New())
		err := op.advance(OpCommitting)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeIllegalTransition, appErr.Code)
		assert.Equal(t, OpPlanning, op.State())
	})

	t.Run("fail aborts and passes the cause", func(t *testing.T) {
		op := newOperation(OpReverse, id.New())
		require.NoError(t, op.advance(OpValidating))
		cause := apperror.NewConflict("boom")
		assert.Same(t, cause, op.fail(ctx, cause))
		assert.Equal(t, OpAborted, op.State())
	})

	t.Run("committed stays committed", func(t *testing.T) {
		op := newOperation(OpReceive, id.New())
		require.NoError(t, op.advance(OpValidating))
		require.NoError(t, op.advance(OpCommitting))
		require.NoError(t, op.advance(OpCommitted))
		_ = op.fail(ctx, apperror.NewConflict("late"))
		assert.Equal(t, OpCommitted, op.State())
	})
}

func TestLotStates(t *testing.T) {
	next, err := LotStates.Transition(LotActive, LotExhausted)
	require.NoError(t, err)
	assert.Equal(t, LotExhausted, next)

	_, err = LotStates.Transition(LotActive, LotActive)
	assert.Error(t, err)
}
