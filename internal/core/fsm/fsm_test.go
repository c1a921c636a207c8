package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motoledger/internal/core/apperror"
)

type light string

const (
	red    light = "red"
	green  light = "green"
	broken light = "broken"
)

func newLights() *Machine[light] {
	return New("light", map[light][]light{
		red:    {green, broken},
		green:  {red, broken},
		broken: nil,
	})
}

func TestMachine_Transition(t *testing.T) {
	m := newLights()

	next, err := m.Transition(red, green)
	require.NoError(t, err)
	assert.Equal(t, green, next)

	next, err = m.Transition(broken, red)
	require.Error(t, err)
	assert.Equal(t, broken, next)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeIllegalTransition, appErr.Code)
	assert.Equal(t, "broken", appErr.Details["from"])
	assert.Equal(t, "red", appErr.Details["to"])
}

func TestMachine_Terminal(t *testing.T) {
	m := newLights()
	assert.True(t, m.Terminal(broken))
	assert.False(t, m.Terminal(red))
	assert.False(t, m.Terminal("blue"))
}

func TestMachine_Parse(t *testing.T) {
	m := newLights()

	s, err := m.Parse("green")
	require.NoError(t, err)
	assert.Equal(t, green, s)

	_, err = m.Parse("blue")
	assert.Error(t, err)
}
