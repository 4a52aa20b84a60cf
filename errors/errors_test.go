package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("plain message", func(t *testing.T) {
		err := New(ERR_TIMEOUT, "getheaders timed out")
		require.NotNil(t, err)
		assert.Equal(t, ERR_TIMEOUT, err.Code())
		assert.Equal(t, "getheaders timed out", err.Message())
		assert.Nil(t, err.WrappedErr())
	})

	t.Run("formatted message", func(t *testing.T) {
		err := New(ERR_TIMEOUT, "request %s timed out after %dms", "ping", 8000)
		assert.Equal(t, "request ping timed out after 8000ms", err.Message())
	})

	t.Run("wrapped error as last param", func(t *testing.T) {
		inner := New(ERR_CONNECTION_CLOSED, "socket closed")
		err := New(ERR_TIMEOUT, "handshake failed", inner)
		require.NotNil(t, err.WrappedErr())
		assert.True(t, err.Is(ErrConnectionClosed))
	})

	t.Run("wrapped stdlib error", func(t *testing.T) {
		inner := fmt.Errorf("dial tcp: connection refused")
		err := New(ERR_CONNECTION_CLOSED, "connect failed", inner)
		assert.NotNil(t, err.WrappedErr())
	})

	t.Run("invalid code", func(t *testing.T) {
		err := New(ERR(9999), "whatever")
		assert.Equal(t, "invalid error code", err.Message())
	})
}

func TestIs(t *testing.T) {
	t.Run("same code matches", func(t *testing.T) {
		err := NewTimeoutError("ping timed out")
		assert.True(t, Is(err, ErrTimeout))
	})

	t.Run("different code does not match", func(t *testing.T) {
		err := NewTimeoutError("ping timed out")
		assert.False(t, Is(err, ErrConnectionClosed))
	})

	t.Run("matches through wrapping", func(t *testing.T) {
		err := New(ERR_PROCESSING, "sync loop failed", NewOutOfSyncError("peer 100 blocks behind"))
		assert.True(t, Is(err, ErrOutOfSync))
	})
}

func TestAs(t *testing.T) {
	var target *Error

	err := NewInvalidChainError("descendant of invalid block")
	require.True(t, As(err, &target))
	assert.Equal(t, ERR_INVALID_CHAIN, target.Code())
}

func TestEnum(t *testing.T) {
	assert.Equal(t, "ERR_OUT_OF_SYNC", ERR_OUT_OF_SYNC.Enum())
	assert.Equal(t, "ERR_UNKNOWN", ERR(12345).Enum())
}
