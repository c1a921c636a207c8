package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInsufficientStock(t *testing.T) {
	err := NewInsufficientStock("p-1", 25, 20, 5)

	assert.Equal(t, CodeInsufficientStock, err.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, err.HTTPStatus)
	assert.Equal(t, 5, err.Details["shortfall"])
	assert.True(t, IsInsufficientStock(fmt.Errorf("wrapped: %w", err)))
}

func TestNewLotOverflow(t *testing.T) {
	err := NewLotOverflow("lot-1", 10, 8, 5)

	assert.Equal(t, CodeLotOverflow, err.Code)
	assert.Equal(t, "lot-1", err.Details["lot_id"])
	assert.Equal(t, 10, err.Details["original"])
	assert.Equal(t, 8, err.Details["remaining"])
	assert.Equal(t, 5, err.Details["requested"])
	assert.True(t, IsLotOverflow(err))
	assert.False(t, IsConflict(err))
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(NewConflict("already reversed")))
	assert.True(t, IsConflict(NewConcurrentModification("lot", "x")))
	assert.False(t, IsConflict(NewNotFound("lot", "x")))
	assert.False(t, IsConflict(errors.New("plain")))
}

func TestAsAppError(t *testing.T) {
	cause := errors.New("db down")
	wrapped := fmt.Errorf("commit: %w", NewInternal(cause))

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeInternal, appErr.Code)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, http.StatusInternalServerError, StatusOf(wrapped))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(cause))
}

func TestStatusByCode(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{NewValidation("bad sku"), http.StatusBadRequest},
		{NewNotFound("lot", "x"), http.StatusNotFound},
		{NewBusinessRule(CodePriceBelowFloor, "too cheap"), http.StatusUnprocessableEntity},
		{NewIllegalTransition("return request", "approved", "rejected"), http.StatusUnprocessableEntity},
		{NewDuplicate("product", "sku", "CHN-520"), http.StatusConflict},
		{NewIdempotencyMismatch("k"), http.StatusConflict},
		{NewForbidden("managers only"), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus)
		})
	}
}
