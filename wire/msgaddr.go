// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"

	"github.com/bsv-blockchain/go-headers-client/errors"
)

// MsgAddr implements the addr message, used by peers to share known
// addresses on the network.
type MsgAddr struct {
	AddrList []*NetAddress
}

func NewMsgAddr() *MsgAddr {
	return &MsgAddr{}
}

// AddAddress adds a known address to the message.
func (msg *MsgAddr) AddAddress(na *NetAddress) error {
	if len(msg.AddrList)+1 > MaxAddrPerMsg {
		return errors.NewWireMalformedError("addr: too many addresses [max %d]", MaxAddrPerMsg)
	}

	msg.AddrList = append(msg.AddrList, na)

	return nil
}

func (msg *MsgAddr) Command() string {
	return CmdAddr
}

func (msg *MsgAddr) Encode() []byte {
	buf := &bytes.Buffer{}

	writeVarInt(buf, uint64(len(msg.AddrList)))

	for _, na := range msg.AddrList {
		writeNetAddress(buf, na, true)
	}

	return buf.Bytes()
}

func DecodeAddr(payload []byte) (*MsgAddr, error) {
	r := bytes.NewReader(payload)
	msg := &MsgAddr{}

	count, err := readVarInt(r)
	if err != nil {
		return nil, errors.NewWireMalformedError("addr: count", err)
	}

	if count > MaxAddrPerMsg {
		return nil, errors.NewWireMalformedError("addr: too many addresses [%d > %d]", count, MaxAddrPerMsg)
	}

	for i := uint64(0); i < count; i++ {
		na, err := readNetAddress(r, true)
		if err != nil {
			return nil, errors.NewWireMalformedError("addr: address %d", i, err)
		}

		msg.AddrList = append(msg.AddrList, na)
	}

	return msg, nil
}
