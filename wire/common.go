// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/bsv-blockchain/go-bt/v2"

	"github.com/bsv-blockchain/go-headers-client/errors"
)

// readUint32 reads a little endian uint32 from r.
func readUint32(r io.Reader) (uint32, error) {
	b := make([]byte, 4)
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

// readUint64 reads a little endian uint64 from r.
func readUint64(r io.Reader) (uint64, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b), nil
}

// readUint16BE reads a big endian uint16 from r. Ports in network address
// records are the only big endian integers in the protocol.
func readUint16BE(r io.Reader) (uint16, error) {
	b := make([]byte, 2)
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint16(b), nil
}

func writeUint32(w *bytes.Buffer, v uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	w.Write(b)
}

func writeUint64(w *bytes.Buffer, v uint64) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	w.Write(b)
}

func writeUint16BE(w *bytes.Buffer, v uint16) {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	w.Write(b)
}

// readVarInt reads a canonically encoded variable length integer from r.
func readVarInt(r io.Reader) (uint64, error) {
	var vi bt.VarInt
	if _, err := vi.ReadFrom(r); err != nil {
		return 0, err
	}

	return uint64(vi), nil
}

func writeVarInt(w *bytes.Buffer, v uint64) {
	w.Write(bt.VarInt(v).Bytes())
}

// readVarString reads a variable length string prefixed with its byte count.
func readVarString(r io.Reader, maxLen uint64) (string, error) {
	count, err := readVarInt(r)
	if err != nil {
		return "", err
	}

	if count > maxLen {
		return "", errors.NewWireMalformedError("variable length string is too long [%d > %d]", count, maxLen)
	}

	b := make([]byte, count)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}

	return string(b), nil
}

func writeVarString(w *bytes.Buffer, s string) {
	writeVarInt(w, uint64(len(s)))
	w.WriteString(s)
}
