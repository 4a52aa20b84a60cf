// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"

	"github.com/bsv-blockchain/go-headers-client/errors"
	"github.com/bsv-blockchain/go-headers-client/model"
)

// MsgHeaders implements the headers message sent in reply to getheaders.
// Each header on the wire is followed by a transaction count varint which is
// always zero for header-only replies and is ignored either way.
type MsgHeaders struct {
	Headers []*model.BlockHeader
}

func NewMsgHeaders() *MsgHeaders {
	return &MsgHeaders{
		Headers: make([]*model.BlockHeader, 0, MaxHeadersPerMsg),
	}
}

// AddBlockHeader adds a new block header to the message.
func (msg *MsgHeaders) AddBlockHeader(bh *model.BlockHeader) error {
	if len(msg.Headers)+1 > MaxHeadersPerMsg {
		return errors.NewWireMalformedError("headers: too many headers [max %d]", MaxHeadersPerMsg)
	}

	msg.Headers = append(msg.Headers, bh)

	return nil
}

func (msg *MsgHeaders) Command() string {
	return CmdHeaders
}

func (msg *MsgHeaders) Encode() []byte {
	buf := &bytes.Buffer{}

	writeVarInt(buf, uint64(len(msg.Headers)))

	for _, bh := range msg.Headers {
		buf.Write(bh.Bytes())
		writeVarInt(buf, 0)
	}

	return buf.Bytes()
}

// DecodeHeaders parses a headers payload. Every header is proof-of-work
// checked; a single bad header fails the whole message.
func DecodeHeaders(payload []byte) (*MsgHeaders, error) {
	r := bytes.NewReader(payload)
	msg := &MsgHeaders{}

	count, err := readVarInt(r)
	if err != nil {
		return nil, errors.NewWireMalformedError("headers: count", err)
	}

	if count > MaxHeadersPerMsg {
		return nil, errors.NewWireMalformedError("headers: too many headers [%d > %d]", count, MaxHeadersPerMsg)
	}

	for i := uint64(0); i < count; i++ {
		headerBytes := make([]byte, model.BlockHeaderSize)
		if _, err = io.ReadFull(r, headerBytes); err != nil {
			return nil, errors.NewWireMalformedError("headers: header %d", i, err)
		}

		bh, err := model.NewBlockHeaderFromBytes(headerBytes)
		if err != nil {
			return nil, errors.NewWireMalformedError("headers: header %d", i, err)
		}

		// the tx count trailing each header is ignored
		if _, err = readVarInt(r); err != nil {
			return nil, errors.NewWireMalformedError("headers: tx count %d", i, err)
		}

		msg.Headers = append(msg.Headers, bh)
	}

	return msg, nil
}
