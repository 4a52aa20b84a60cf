// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"

	"github.com/bsv-blockchain/go-headers-client/errors"
)

// MsgPing implements the ping message. The 8 byte nonce correlates the
// matching pong.
type MsgPing struct {
	Nonce uint64
}

func NewMsgPing(nonce uint64) *MsgPing {
	return &MsgPing{Nonce: nonce}
}

func (msg *MsgPing) Command() string {
	return CmdPing
}

func (msg *MsgPing) Encode() []byte {
	buf := &bytes.Buffer{}
	writeUint64(buf, msg.Nonce)

	return buf.Bytes()
}

func DecodePing(payload []byte) (*MsgPing, error) {
	nonce, err := readUint64(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.NewWireMalformedError("ping: nonce", err)
	}

	return &MsgPing{Nonce: nonce}, nil
}

// MsgPong implements the pong message sent in reply to a ping.
type MsgPong struct {
	Nonce uint64
}

func NewMsgPong(nonce uint64) *MsgPong {
	return &MsgPong{Nonce: nonce}
}

func (msg *MsgPong) Command() string {
	return CmdPong
}

func (msg *MsgPong) Encode() []byte {
	buf := &bytes.Buffer{}
	writeUint64(buf, msg.Nonce)

	return buf.Bytes()
}

func DecodePong(payload []byte) (*MsgPong, error) {
	nonce, err := readUint64(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.NewWireMalformedError("pong: nonce", err)
	}

	return &MsgPong{Nonce: nonce}, nil
}
