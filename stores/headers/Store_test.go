package headers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsv-blockchain/go-headers-client/chaincfg"
	"github.com/bsv-blockchain/go-headers-client/model"
	"github.com/bsv-blockchain/go-headers-client/ulogger"
)

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	logger := ulogger.NewVerboseTestLogger(t)
	ctx := context.Background()

	genesis, err := model.NewBlockHeaderFromBytes(chaincfg.RegressionNetParams.GenesisHeader)
	require.NoError(t, err)

	store, err := New(logger, dir)
	require.NoError(t, err)

	store.Put(0, genesis.Bytes())
	store.Put(2, genesis.Bytes())
	store.Put(1, genesis.Bytes())
	store.Delete(2)

	// Close drains the queue before closing badger
	require.NoError(t, store.Close(ctx))

	store, err = New(logger, dir)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, store.Close(ctx))
	}()

	var heights []uint32

	err = store.Iter(ctx, func(height uint32, header []byte) error {
		heights = append(heights, height)

		bh, err := model.NewStoredBlockHeaderFromBytes(header)
		require.NoError(t, err)
		assert.Equal(t, genesis.Hash().String(), bh.Hash().String())

		return nil
	})
	require.NoError(t, err)

	// ascending height order, with the deleted height gone
	assert.Equal(t, []uint32{0, 1}, heights)
}
