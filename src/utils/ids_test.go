package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewReferenceIsSortable(t *testing.T) {
	prev := NewReference()
	for i := 0; i < 100; i++ {
		next := NewReference()
		require.Len(t, next, 26)
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestNewClientOrderID(t *testing.T) {
	a := NewClientOrderID()
	b := NewClientOrderID()

	_, err := uuid.Parse(a)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
