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

// InvType represents the allowed inventory vector types.
type InvType uint32

const (
	InvTypeError InvType = 0
	InvTypeTx    InvType = 1
	InvTypeBlock InvType = 2
)

// InvVect defines an inventory vector which is used to describe data, as
// specified by the Type field, that a peer wants, has, or does not have.
type InvVect struct {
	Type InvType
	Hash chainhash.Hash
}

// MsgInv implements the inv message, used by peers to advertise their
// knowledge of objects such as new blocks.
type MsgInv struct {
	InvList []*InvVect
}

func NewMsgInv() *MsgInv {
	return &MsgInv{}
}

// AddInvVect adds an inventory vector to the message.
func (msg *MsgInv) AddInvVect(iv *InvVect) error {
	if len(msg.InvList)+1 > MaxInvPerMsg {
		return errors.NewWireMalformedError("inv: too many inventory vectors [max %d]", MaxInvPerMsg)
	}

	msg.InvList = append(msg.InvList, iv)

	return nil
}

func (msg *MsgInv) Command() string {
	return CmdInv
}

func (msg *MsgInv) Encode() []byte {
	buf := &bytes.Buffer{}

	writeVarInt(buf, uint64(len(msg.InvList)))

	for _, iv := range msg.InvList {
		writeUint32(buf, uint32(iv.Type))
		buf.Write(iv.Hash.CloneBytes())
	}

	return buf.Bytes()
}

func DecodeInv(payload []byte) (*MsgInv, error) {
	r := bytes.NewReader(payload)
	msg := &MsgInv{}

	count, err := readVarInt(r)
	if err != nil {
		return nil, errors.NewWireMalformedError("inv: count", err)
	}

	if count > MaxInvPerMsg {
		return nil, errors.NewWireMalformedError("inv: too many inventory vectors [%d > %d]", count, MaxInvPerMsg)
	}

	for i := uint64(0); i < count; i++ {
		iv := &InvVect{}

		invType, err := readUint32(r)
		if err != nil {
			return nil, errors.NewWireMalformedError("inv: type %d", i, err)
		}

		iv.Type = InvType(invType)

		b := make([]byte, chainhash.HashSize)
		if _, err = io.ReadFull(r, b); err != nil {
			return nil, errors.NewWireMalformedError("inv: hash %d", i, err)
		}

		copy(iv.Hash[:], b)
		msg.InvList = append(msg.InvList, iv)
	}

	return msg, nil
}
