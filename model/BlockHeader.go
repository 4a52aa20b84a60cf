package model

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"

	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"

	"github.com/bsv-blockchain/go-headers-client/errors"
)

// BlockHeaderSize is the serialized size of a block header in bytes.
const BlockHeaderSize = 80

type BlockHeader struct {
	// Version of the block.  This is not the same as the protocol version.
	Version uint32

	// Hash of the previous block header in the blockchain.
	HashPrevBlock *chainhash.Hash

	// Merkle tree reference to hash of all transactions for the block.
	HashMerkleRoot *chainhash.Hash

	// Time the block was created in unix time.
	Timestamp uint32

	// Difficulty target for the block in compact form.
	Bits NBit

	// Nonce used to generate the block.
	Nonce uint32
}

// NewBlockHeaderFromBytes parses an 80 byte buffer and verifies its proof of
// work. Headers that do not meet their own target are rejected with
// ERR_BLOCK_INVALID_POW.
func NewBlockHeaderFromBytes(headerBytes []byte) (*BlockHeader, error) {
	bh, err := NewStoredBlockHeaderFromBytes(headerBytes)
	if err != nil {
		return nil, err
	}

	if !bh.Valid() {
		return nil, errors.NewBlockInvalidPoWError("block header %s does not meet target %s", bh.Hash(), bh.Bits)
	}

	return bh, nil
}

// NewStoredBlockHeaderFromBytes parses an 80 byte buffer without checking
// proof of work. Used when reloading known-valid headers from storage and in
// tests.
func NewStoredBlockHeaderFromBytes(headerBytes []byte) (*BlockHeader, error) {
	if len(headerBytes) != BlockHeaderSize {
		return nil, errors.NewBlockInvalidError("block header should be %d bytes long, got %d", BlockHeaderSize, len(headerBytes))
	}

	hashPrevBlock, err := chainhash.NewHash(headerBytes[4:36])
	if err != nil {
		return nil, errors.NewBlockInvalidError("error creating previous block hash from bytes", err)
	}

	hashMerkleRoot, err := chainhash.NewHash(headerBytes[36:68])
	if err != nil {
		return nil, errors.NewBlockInvalidError("error creating merkle root hash from bytes", err)
	}

	nBits, err := NewNBitFromSlice(bt.ReverseBytes(headerBytes[72:76]))
	if err != nil {
		return nil, err
	}

	return &BlockHeader{
		Version:        binary.LittleEndian.Uint32(headerBytes[:4]),
		HashPrevBlock:  hashPrevBlock,
		HashMerkleRoot: hashMerkleRoot,
		Timestamp:      binary.LittleEndian.Uint32(headerBytes[68:72]),
		Bits:           *nBits,
		Nonce:          binary.LittleEndian.Uint32(headerBytes[76:]),
	}, nil
}

// NewBlockHeaderFromString parses a 160 character hex string.
func NewBlockHeaderFromString(headerHex string) (*BlockHeader, error) {
	headerBytes, err := hex.DecodeString(headerHex)
	if err != nil {
		return nil, errors.NewBlockInvalidError("error decoding hex string to bytes", err)
	}

	return NewBlockHeaderFromBytes(headerBytes)
}

func (bh *BlockHeader) Hash() *chainhash.Hash {
	hash := chainhash.DoubleHashH(bh.Bytes())
	return &hash
}

// Valid reports whether the header's hash meets its own compact target.
func (bh *BlockHeader) Valid() bool {
	target := bh.Bits.CalculateTarget()
	if target.Sign() <= 0 {
		return false
	}

	digest := bt.ReverseBytes(bh.Hash().CloneBytes())

	bn := new(big.Int).SetBytes(digest)

	return bn.Cmp(target) <= 0
}

func (bh *BlockHeader) Bytes() []byte {
	blockHeaderBytes := make([]byte, 0, BlockHeaderSize)

	blockHeaderBytes = append(blockHeaderBytes, uint32ToBytes(bh.Version)...)
	blockHeaderBytes = append(blockHeaderBytes, bh.HashPrevBlock.CloneBytes()...)
	blockHeaderBytes = append(blockHeaderBytes, bh.HashMerkleRoot.CloneBytes()...)
	blockHeaderBytes = append(blockHeaderBytes, uint32ToBytes(bh.Timestamp)...)
	blockHeaderBytes = append(blockHeaderBytes, bt.ReverseBytes(bh.Bits[:])...)
	blockHeaderBytes = append(blockHeaderBytes, uint32ToBytes(bh.Nonce)...)

	return blockHeaderBytes
}

// String returns the header's hash in the big endian hex form used for
// display and logging.
func (bh *BlockHeader) String() string {
	return bh.Hash().String()
}

func uint32ToBytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)

	return b
}
