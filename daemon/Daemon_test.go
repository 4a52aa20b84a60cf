package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsv-blockchain/go-headers-client/chaincfg"
	"github.com/bsv-blockchain/go-headers-client/errors"
	"github.com/bsv-blockchain/go-headers-client/model"
	"github.com/bsv-blockchain/go-headers-client/settings"
	"github.com/bsv-blockchain/go-headers-client/ulogger"
)

// mineHeader builds a regtest header on prev and grinds the nonce until it
// meets the regtest target.
func mineHeader(prev *chainhash.Hash, salt uint32) *model.BlockHeader {
	nBits, _ := model.NewNBitFromString("207fffff")

	var merkle chainhash.Hash
	merkle[0] = byte(salt)
	merkle[1] = byte(salt >> 8)
	merkle[31] = 0x7e

	bh := &model.BlockHeader{
		Version:        0x20000000,
		HashPrevBlock:  prev,
		HashMerkleRoot: &merkle,
		Timestamp:      1296688602 + salt,
		Bits:           *nBits,
	}

	for !bh.Valid() {
		bh.Nonce++
	}

	return bh
}

func mineChain(prev *chainhash.Hash, count int, saltBase uint32) []*model.BlockHeader {
	headers := make([]*model.BlockHeader, 0, count)

	for i := 0; i < count; i++ {
		bh := mineHeader(prev, saltBase+uint32(i))
		headers = append(headers, bh)
		prev = bh.Hash()
	}

	return headers
}

func testDaemonSettings(t *testing.T) *settings.Settings {
	t.Helper()

	return &settings.Settings{
		ClientName:     "test",
		DataFolder:     t.TempDir(),
		ChainCfgParams: &chaincfg.RegressionNetParams,
		P2P: settings.P2PSettings{
			TargetConnections: 1,
			NumWorkers:        2,
			OutOfSyncThreshold: 100,
			MaxKnownAddresses:  4000,
			MinKnownAddresses:  16,
			LivenessInterval:   time.Hour, // keepalive stays quiet in tests
		},
	}
}

func TestDaemonQueries(t *testing.T) {
	d, err := New(ulogger.NewVerboseTestLogger(t), testDaemonSettings(t))
	require.NoError(t, err)

	defer func() {
		require.NoError(t, d.Shutdown(context.Background()))
	}()

	t.Run("tip is genesis on a fresh store", func(t *testing.T) {
		height, hash := d.GetTip()
		assert.Equal(t, uint32(0), height)
		assert.Equal(t, chaincfg.RegressionNetParams.GenesisHash.String(), hash)
	})

	t.Run("header by height", func(t *testing.T) {
		bh, err := d.GetHeaderByHeight(0)
		require.NoError(t, err)
		assert.Equal(t, chaincfg.RegressionNetParams.GenesisHash.String(), bh.Hash().String())

		_, err = d.GetHeaderByHeight(1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrBlockNotFound))
	})

	t.Run("header by hash", func(t *testing.T) {
		bh, err := d.GetHeaderByHash(chaincfg.RegressionNetParams.GenesisHash.String())
		require.NoError(t, err)
		assert.Equal(t, uint32(1), bh.Version)

		_, err = d.GetHeaderByHash("not-a-hash")
		require.Error(t, err)
	})
}

func TestDaemonPersistsAcrossRestart(t *testing.T) {
	tSettings := testDaemonSettings(t)
	logger := ulogger.NewVerboseTestLogger(t)

	d, err := New(logger, tSettings)
	require.NoError(t, err)

	// feed headers through the persisting chain as a session would
	headers := mineChain(chaincfg.RegressionNetParams.GenesisHash, 5, 1)
	changeset := d.chain.AddHeaders(headers)
	require.Len(t, changeset.Added, 5)

	require.NoError(t, d.Shutdown(context.Background()))

	// a new daemon over the same folder restores the chain
	d, err = New(logger, tSettings)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, d.Shutdown(context.Background()))
	}()

	height, hash := d.GetTip()
	assert.Equal(t, uint32(5), height)
	assert.Equal(t, headers[4].Hash().String(), hash)
}

func TestDaemonStartStopIdempotent(t *testing.T) {
	d, err := New(ulogger.NewVerboseTestLogger(t), testDaemonSettings(t))
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, d.Start(ctx))
	require.NoError(t, d.Start(ctx)) // second start is a no-op

	d.Stop()
	d.Stop() // second stop is a no-op

	// stop may be followed by another start
	require.NoError(t, d.Start(ctx))

	require.NoError(t, d.Shutdown(ctx))
}
