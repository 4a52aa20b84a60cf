package model

import (
	"encoding/hex"
	"math/big"

	"github.com/bsv-blockchain/go-headers-client/errors"
)

// NBit is the compact difficulty target of a block header, held in the big
// endian display order `exponent:coefficient[3]`.
type NBit [4]byte

func NewNBitFromSlice(b []byte) (*NBit, error) {
	if len(b) != 4 {
		return nil, errors.NewBlockInvalidError("nBits should be 4 bytes long, got %d", len(b))
	}

	var nBit NBit

	copy(nBit[:], b)

	return &nBit, nil
}

func NewNBitFromString(s string) (*NBit, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.NewBlockInvalidError("error decoding nBits hex string", err)
	}

	return NewNBitFromSlice(b)
}

func (n NBit) String() string {
	return hex.EncodeToString(n[:])
}

// CalculateTarget expands the compact form into the full 256 bit target:
// coefficient * 2^(8*(exponent-3)).
func (n NBit) CalculateTarget() *big.Int {
	exponent := uint(n[0])
	coefficient := new(big.Int).SetBytes(n[1:])

	if exponent <= 3 {
		return coefficient.Rsh(coefficient, 8*(3-exponent))
	}

	return coefficient.Lsh(coefficient, 8*(exponent-3))
}
