package peers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsv-blockchain/go-headers-client/ulogger"
)

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	logger := ulogger.NewVerboseTestLogger(t)
	ctx := context.Background()

	store, err := New(logger, dir)
	require.NoError(t, err)

	store.Put("203.0.113.7:8333", []byte(`{"lastSeenMs":1}`))
	store.Put("203.0.113.8:8333", []byte(`{"lastSeenMs":2}`))
	store.Delete("203.0.113.8:8333")

	require.NoError(t, store.Close(ctx))

	store, err = New(logger, dir)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, store.Close(ctx))
	}()

	records := map[string]string{}

	err = store.Iter(ctx, func(addr string, data []byte) error {
		records[addr] = string(data)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, `{"lastSeenMs":1}`, records["203.0.113.7:8333"])
}
