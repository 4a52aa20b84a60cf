// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"

	"github.com/bsv-blockchain/go-headers-client/errors"
)

// MsgVersion implements the version message which a peer sends as the first
// message of the handshake.
type MsgVersion struct {
	// Version of the protocol the node is using.
	ProtocolVersion uint32

	// Bitfield which identifies the enabled services.
	Services ServiceFlag

	// Time the message was generated, in unix time.
	Timestamp int64

	// Address of the remote peer as seen by the sender.
	AddrRecv NetAddress

	// Address of the local peer.
	AddrFrom NetAddress

	// Unique value associated with the message that is used to detect self
	// connections.
	Nonce uint64

	// The user agent that generated the message.
	UserAgent string

	// Last block seen by the generator of the version message.
	LastBlock int32

	// Don't announce transactions to the peer.
	DisableRelayTx bool
}

// NewMsgVersion returns a version message populated with the minimum the
// remote side needs to complete a handshake.
func NewMsgVersion(nonce uint64, userAgent string, lastBlock int32) *MsgVersion {
	return &MsgVersion{
		ProtocolVersion: ProtocolVersion,
		Services:        0,
		Nonce:           nonce,
		UserAgent:       userAgent,
		LastBlock:       lastBlock,
	}
}

func (msg *MsgVersion) Command() string {
	return CmdVersion
}

func (msg *MsgVersion) Encode(timestamp int64) []byte {
	buf := &bytes.Buffer{}

	writeUint32(buf, msg.ProtocolVersion)
	writeUint64(buf, uint64(msg.Services))
	writeUint64(buf, uint64(timestamp))
	writeNetAddress(buf, &msg.AddrRecv, false)
	writeNetAddress(buf, &msg.AddrFrom, false)
	writeUint64(buf, msg.Nonce)
	writeVarString(buf, msg.UserAgent)
	writeUint32(buf, uint32(msg.LastBlock))

	if !msg.DisableRelayTx {
		buf.WriteByte(0x01)
	} else {
		buf.WriteByte(0x00)
	}

	return buf.Bytes()
}

// DecodeVersion parses a version message payload. The relay flag is optional
// for protocol versions that predate it.
func DecodeVersion(payload []byte) (*MsgVersion, error) {
	r := bytes.NewReader(payload)
	msg := &MsgVersion{}

	var err error

	if msg.ProtocolVersion, err = readUint32(r); err != nil {
		return nil, errors.NewWireMalformedError("version: protocol version", err)
	}

	services, err := readUint64(r)
	if err != nil {
		return nil, errors.NewWireMalformedError("version: services", err)
	}

	msg.Services = ServiceFlag(services)

	timestamp, err := readUint64(r)
	if err != nil {
		return nil, errors.NewWireMalformedError("version: timestamp", err)
	}

	msg.Timestamp = int64(timestamp)

	addrRecv, err := readNetAddress(r, false)
	if err != nil {
		return nil, errors.NewWireMalformedError("version: addr_recv", err)
	}

	msg.AddrRecv = *addrRecv

	addrFrom, err := readNetAddress(r, false)
	if err != nil {
		return nil, errors.NewWireMalformedError("version: addr_from", err)
	}

	msg.AddrFrom = *addrFrom

	if msg.Nonce, err = readUint64(r); err != nil {
		return nil, errors.NewWireMalformedError("version: nonce", err)
	}

	if msg.UserAgent, err = readVarString(r, MaxUserAgentLen); err != nil {
		return nil, errors.NewWireMalformedError("version: user agent", err)
	}

	lastBlock, err := readUint32(r)
	if err != nil {
		return nil, errors.NewWireMalformedError("version: last block", err)
	}

	msg.LastBlock = int32(lastBlock)

	// relay flag is absent in old protocol versions
	relay := make([]byte, 1)
	if _, err = io.ReadFull(r, relay); err == nil {
		msg.DisableRelayTx = relay[0] == 0x00
	}

	return msg, nil
}
