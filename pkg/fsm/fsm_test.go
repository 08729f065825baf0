package fsm

import (
	"testing"

	"github.com/sakashimaa/fulfillment-saga/pkg/faults"
	"github.com/stretchr/testify/require"
)

type light string

const (
	red    light = "RED"
	green  light = "GREEN"
	yellow light = "YELLOW"
)

var traffic = New("light",
	Edge[light]{From: red, To: green},
	Edge[light]{From: green, To: yellow},
	Edge[light]{From: yellow, To: red},
)

func TestMachine_Check(t *testing.T) {
	require.NoError(t, traffic.Check(red, green))
	require.NoError(t, traffic.Check(yellow, red))

	err := traffic.Check(red, yellow)
	require.ErrorIs(t, err, ErrInvalidStatus)
	require.True(t, faults.Is(err, faults.InvalidStatus))

	err = traffic.Check(green, green)
	require.ErrorIs(t, err, ErrInvalidStatus)

	err = traffic.Check(red, "BLUE")
	require.ErrorIs(t, err, ErrUnknownTransition)
}

func TestMachine_Precondition(t *testing.T) {
	from, ok := traffic.Precondition(yellow)
	require.True(t, ok)
	require.Equal(t, green, from)

	_, ok = traffic.Precondition("BLUE")
	require.False(t, ok)
}

func TestNew_PanicsOnAmbiguousTarget(t *testing.T) {
	require.Panics(t, func() {
		New("bad", Edge[light]{From: red, To: green}, Edge[light]{From: yellow, To: green})
	})
}
