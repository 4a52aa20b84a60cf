package model

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsv-blockchain/go-headers-client/errors"
)

var (
	// mainnet genesis and block 1
	genesisHeaderHex = "0100000000000000000000000000000000000000000000000000000000000000000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4a29ab5f49ffff001d1dac2b7c"
	block1HeaderHex  = "010000006fe28c0ab6f1b372c1a6a246ae63f74f931e8365e15a089c68d6190000000000982051fd1e4ba744bbbe680e1fee14677ba1a3c3540bf7b1cdb606e857233e0e61bc6649ffff001d01e36299"
)

func TestNewBlockHeaderFromBytes(t *testing.T) {
	t.Run("genesis from bytes", func(t *testing.T) {
		headerBytes, _ := hex.DecodeString(genesisHeaderHex)
		blockHeader, err := NewBlockHeaderFromBytes(headerBytes)
		require.NoError(t, err)

		assert.Equal(t, uint32(1), blockHeader.Version)
		assert.Equal(t, "0000000000000000000000000000000000000000000000000000000000000000", blockHeader.HashPrevBlock.String())
		assert.Equal(t, "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b", blockHeader.HashMerkleRoot.String())
		assert.Equal(t, uint32(1231006505), blockHeader.Timestamp)
		assert.Equal(t, "1d00ffff", blockHeader.Bits.String())
		assert.Equal(t, uint32(2083236893), blockHeader.Nonce)
		assert.Equal(t, "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f", blockHeader.Hash().String())
	})

	t.Run("block 1 from string", func(t *testing.T) {
		blockHeader, err := NewBlockHeaderFromString(block1HeaderHex)
		require.NoError(t, err)

		assert.Equal(t, "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f", blockHeader.HashPrevBlock.String())
		assert.Equal(t, "00000000839a8e6886ab5951d76f411475428afc90947ee320161bbf18eb6048", blockHeader.Hash().String())
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := NewBlockHeaderFromBytes(make([]byte, 79))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrBlockInvalid))
	})

	t.Run("invalid proof of work", func(t *testing.T) {
		headerBytes, _ := hex.DecodeString(genesisHeaderHex)
		headerBytes[76]++ // tamper with the nonce

		_, err := NewBlockHeaderFromBytes(headerBytes)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrBlockInvalidPoW))

		// the stored variant does not check proof of work
		blockHeader, err := NewStoredBlockHeaderFromBytes(headerBytes)
		require.NoError(t, err)
		assert.False(t, blockHeader.Valid())
	})
}

func TestBlockHeaderRoundTrip(t *testing.T) {
	for _, headerHex := range []string{genesisHeaderHex, block1HeaderHex} {
		headerBytes, _ := hex.DecodeString(headerHex)
		blockHeader, err := NewBlockHeaderFromBytes(headerBytes)
		require.NoError(t, err)

		assert.Equal(t, headerBytes, blockHeader.Bytes())
	}
}

func TestNBit(t *testing.T) {
	t.Run("from string", func(t *testing.T) {
		nBits, err := NewNBitFromString("1d00ffff")
		require.NoError(t, err)
		assert.Equal(t, "1d00ffff", nBits.String())
	})

	t.Run("target expansion", func(t *testing.T) {
		nBits, err := NewNBitFromString("1d00ffff")
		require.NoError(t, err)

		target := nBits.CalculateTarget()
		assert.Equal(t, "00000000ffff0000000000000000000000000000000000000000000000000000", padHex(target.Text(16)))
	})

	t.Run("regtest target is just below 2^255", func(t *testing.T) {
		nBits, err := NewNBitFromString("207fffff")
		require.NoError(t, err)

		target := nBits.CalculateTarget()
		assert.Equal(t, 255, target.BitLen())
	})

	t.Run("bad slice length", func(t *testing.T) {
		_, err := NewNBitFromSlice([]byte{0x1d, 0x00})
		require.Error(t, err)
	})
}

func TestCalculateWork(t *testing.T) {
	t.Run("difficulty 1", func(t *testing.T) {
		nBits, err := NewNBitFromString("1d00ffff")
		require.NoError(t, err)

		work, err := CalculateWork(*nBits)
		require.NoError(t, err)
		assert.Equal(t, "4295032833", work.String())
	})

	t.Run("zero target", func(t *testing.T) {
		nBits, err := NewNBitFromString("00000000")
		require.NoError(t, err)

		_, err = CalculateWork(*nBits)
		require.Error(t, err)
	})
}

func padHex(s string) string {
	for len(s) < 64 {
		s = "0" + s
	}

	return s
}
