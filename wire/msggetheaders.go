// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"

	"github.com/bsv-blockchain/go-headers-client/errors"
)

// MsgGetHeaders implements the getheaders message. The block locator hashes
// run from the newest known block back to genesis, dense to start and then
// sparse, so a remote node can find the fork point efficiently.
type MsgGetHeaders struct {
	ProtocolVersion    uint32
	BlockLocatorHashes []*chainhash.Hash
	HashStop           chainhash.Hash
}

func NewMsgGetHeaders() *MsgGetHeaders {
	return &MsgGetHeaders{
		ProtocolVersion:    ProtocolVersion,
		BlockLocatorHashes: make([]*chainhash.Hash, 0, MaxBlockLocatorsPerMsg),
	}
}

// AddBlockLocatorHash adds a new block locator hash to the message.
func (msg *MsgGetHeaders) AddBlockLocatorHash(hash *chainhash.Hash) error {
	if len(msg.BlockLocatorHashes)+1 > MaxBlockLocatorsPerMsg {
		return errors.NewWireMalformedError("getheaders: too many block locator hashes [max %d]", MaxBlockLocatorsPerMsg)
	}

	msg.BlockLocatorHashes = append(msg.BlockLocatorHashes, hash)

	return nil
}

func (msg *MsgGetHeaders) Command() string {
	return CmdGetHeaders
}

func (msg *MsgGetHeaders) Encode() []byte {
	buf := &bytes.Buffer{}

	writeUint32(buf, msg.ProtocolVersion)
	writeVarInt(buf, uint64(len(msg.BlockLocatorHashes)))

	for _, hash := range msg.BlockLocatorHashes {
		buf.Write(hash.CloneBytes())
	}

	buf.Write(msg.HashStop.CloneBytes())

	return buf.Bytes()
}

func DecodeGetHeaders(payload []byte) (*MsgGetHeaders, error) {
	r := bytes.NewReader(payload)
	msg := &MsgGetHeaders{}

	var err error

	if msg.ProtocolVersion, err = readUint32(r); err != nil {
		return nil, errors.NewWireMalformedError("getheaders: protocol version", err)
	}

	count, err := readVarInt(r)
	if err != nil {
		return nil, errors.NewWireMalformedError("getheaders: locator count", err)
	}

	if count > MaxBlockLocatorsPerMsg {
		return nil, errors.NewWireMalformedError("getheaders: too many block locator hashes [%d > %d]", count, MaxBlockLocatorsPerMsg)
	}

	for i := uint64(0); i < count; i++ {
		b := make([]byte, chainhash.HashSize)
		if _, err = io.ReadFull(r, b); err != nil {
			return nil, errors.NewWireMalformedError("getheaders: locator hash", err)
		}

		hash, _ := chainhash.NewHash(b)
		msg.BlockLocatorHashes = append(msg.BlockLocatorHashes, hash)
	}

	b := make([]byte, chainhash.HashSize)
	if _, err = io.ReadFull(r, b); err != nil {
		return nil, errors.NewWireMalformedError("getheaders: stop hash", err)
	}

	copy(msg.HashStop[:], b)

	return msg, nil
}
