package chaincfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsv-blockchain/go-headers-client/model"
)

func TestGenesisHeaders(t *testing.T) {
	for _, params := range []*Params{&MainNetParams, &TestNetParams, &RegressionNetParams} {
		t.Run(params.Name, func(t *testing.T) {
			require.Len(t, params.GenesisHeader, model.BlockHeaderSize)

			bh, err := model.NewBlockHeaderFromBytes(params.GenesisHeader)
			require.NoError(t, err)
			assert.Equal(t, params.GenesisHash.String(), bh.Hash().String())
		})
	}
}

func TestGetChainParams(t *testing.T) {
	t.Run("bsv selects mainnet", func(t *testing.T) {
		params, err := GetChainParams("bsv")
		require.NoError(t, err)
		assert.Equal(t, &MainNetParams, params)
	})

	t.Run("case insensitive", func(t *testing.T) {
		params, err := GetChainParams("TestNet")
		require.NoError(t, err)
		assert.Equal(t, &TestNetParams, params)
	})

	t.Run("unknown network", func(t *testing.T) {
		_, err := GetChainParams("dogecoin")
		require.Error(t, err)
	})
}

func TestMainNetInvalidBlocks(t *testing.T) {
	require.Len(t, MainNetParams.InvalidBlocks, 2)

	for _, hash := range MainNetParams.InvalidBlocks {
		assert.NotNil(t, hash)
	}
}
