package model

import (
	"math/big"

	"github.com/bsv-blockchain/go-headers-client/errors"
)

var twoPow256 = new(big.Int).Lsh(big.NewInt(1), 256)

// CalculateWork returns the expected number of hashes needed to produce a
// header meeting the given compact target: 2^256 / target.
func CalculateWork(nBits NBit) (*big.Int, error) {
	target := nBits.CalculateTarget()
	if target.Sign() <= 0 {
		return nil, errors.NewBlockInvalidError("cannot calculate work for zero target (nBits %s)", nBits)
	}

	return new(big.Int).Div(twoPow256, target), nil
}
