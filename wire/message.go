// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

const (
	// MessageHeaderSize is the number of bytes in a bitcoin message header:
	// magic 4 bytes + command 12 bytes + payload length 4 bytes + checksum 4 bytes.
	MessageHeaderSize = 24

	// CommandSize is the fixed size of all commands in the common bitcoin
	// message header.  Shorter commands must be zero padded.
	CommandSize = 12

	// MaxMessagePayload is the maximum bytes a message payload can be,
	// regardless of what the length field claims.
	MaxMessagePayload = 32 * 1024 * 1024
)

// Commands used in bitcoin message headers which describe the type of message.
const (
	CmdVersion    = "version"
	CmdVerAck     = "verack"
	CmdPing       = "ping"
	CmdPong       = "pong"
	CmdGetHeaders = "getheaders"
	CmdHeaders    = "headers"
	CmdGetAddr    = "getaddr"
	CmdAddr       = "addr"
	CmdInv        = "inv"
)

// Message is a framed but not yet payload-decoded network message.
type Message struct {
	Command string
	Payload []byte
}

// DeframeError records a frame that matched the magic but failed validation.
// A frame with a bad checksum is skipped whole; after an oversized length
// claim the scan resumes just past that frame's magic.
type DeframeError struct {
	Command string
	Reason  string
}

// DeframeResult is the outcome of one Deframe pass over a receive buffer.
// Remaining holds the unconsumed tail (an incomplete frame, or bytes not yet
// matching the magic); the caller appends newly received bytes to it before
// the next call.
type DeframeResult struct {
	Messages  []Message
	Remaining []byte
	Errors    []DeframeError
}

// checksum returns the first four bytes of the double sha256 of payload.
func checksum(payload []byte) [4]byte {
	var cs [4]byte

	h := chainhash.DoubleHashB(payload)
	copy(cs[:], h[:4])

	return cs
}

// Frame wraps payload in the 24 byte message header for the given network.
func Frame(command string, payload []byte, magic BitcoinNet) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, MessageHeaderSize+len(payload)))

	writeUint32(buf, uint32(magic))

	var cmd [CommandSize]byte

	copy(cmd[:], command)
	buf.Write(cmd[:])

	writeUint32(buf, uint32(len(payload)))

	cs := checksum(payload)
	buf.Write(cs[:])
	buf.Write(payload)

	return buf.Bytes()
}

// Deframe extracts all complete messages from buf. It is a pure function:
// buf is never mutated and the same input always yields the same result.
// The scan slides forward one byte at a time until the magic matches, so a
// stream that resynchronizes mid-garbage is recovered at the next frame.
func Deframe(buf []byte, magic BitcoinNet) *DeframeResult {
	result := &DeframeResult{}

	var magicBytes [4]byte

	binary.LittleEndian.PutUint32(magicBytes[:], uint32(magic))

	i := 0
	for {
		// slide to the next magic match
		for i+4 <= len(buf) && !bytes.Equal(buf[i:i+4], magicBytes[:]) {
			i++
		}

		if i+4 > len(buf) {
			// no magic in the tail; keep at most 3 bytes in case the magic
			// straddles the boundary with the next read
			if keep := len(buf) - i; keep > 0 {
				result.Remaining = buf[i:]
			}

			return result
		}

		if i+MessageHeaderSize > len(buf) {
			result.Remaining = buf[i:]
			return result
		}

		command := strings.TrimRight(string(buf[i+4:i+4+CommandSize]), "\x00")
		length := binary.LittleEndian.Uint32(buf[i+16 : i+20])

		if length > MaxMessagePayload {
			result.Errors = append(result.Errors, DeframeError{
				Command: command,
				Reason:  "payload length exceeds maximum",
			})
			i += 4

			continue
		}

		end := i + MessageHeaderSize + int(length)
		if end > len(buf) {
			result.Remaining = buf[i:]
			return result
		}

		payload := buf[i+MessageHeaderSize : end]

		cs := checksum(payload)
		if !bytes.Equal(cs[:], buf[i+20:i+24]) {
			result.Errors = append(result.Errors, DeframeError{
				Command: command,
				Reason:  "bad checksum",
			})
			i = end

			continue
		}

		result.Messages = append(result.Messages, Message{
			Command: command,
			Payload: payload,
		})
		i = end
	}
}
