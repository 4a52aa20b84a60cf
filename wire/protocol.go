// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
)

const (
	// ProtocolVersion is the latest protocol version this package supports.
	ProtocolVersion uint32 = 70015

	// MaxUserAgentLen is the maximum allowed length for the user agent field
	// in a version message.
	MaxUserAgentLen = 256

	// MaxAddrPerMsg is the maximum number of addresses that can be in a
	// single addr message.
	MaxAddrPerMsg = 1000

	// MaxBlockLocatorsPerMsg is the maximum number of block locator hashes
	// allowed per message.
	MaxBlockLocatorsPerMsg = 500

	// MaxHeadersPerMsg is the maximum number of block headers that can be in
	// a single headers message.
	MaxHeadersPerMsg = 2000

	// MaxInvPerMsg is the maximum number of inventory vectors that can be in
	// a single inv message.
	MaxInvPerMsg = 50000
)

// ServiceFlag identifies services supported by a bitcoin peer.
type ServiceFlag uint64

const (
	// SFNodeNetwork is a flag used to indicate a peer is a full node.
	SFNodeNetwork ServiceFlag = 1 << iota
)

// BitcoinNet represents which bitcoin network a message belongs to.
type BitcoinNet uint32

// Constants used to indicate the message bitcoin network.  Deframe also uses
// them to seek to the next message when a stream's state is unknown.
const (
	// MainNet represents the main bitcoin network.
	MainNet BitcoinNet = 0xe8f3e1e3

	// TestNet3 represents the test network (version 3).
	TestNet3 BitcoinNet = 0xf4f3e5f4

	// RegTestNet represents the regression test network.
	RegTestNet BitcoinNet = 0xfabfb5da
)

// bnStrings is a map of bitcoin networks back to their constant names for
// pretty printing.
var bnStrings = map[BitcoinNet]string{
	MainNet:    "MainNet",
	TestNet3:   "TestNet3",
	RegTestNet: "RegTestNet",
}

// String returns the BitcoinNet in human-readable form.
func (n BitcoinNet) String() string {
	if s, ok := bnStrings[n]; ok {
		return s
	}

	return fmt.Sprintf("Unknown BitcoinNet (%d)", uint32(n))
}
