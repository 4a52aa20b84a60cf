// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"encoding/hex"
	"strings"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"

	"github.com/bsv-blockchain/go-headers-client/errors"
	"github.com/bsv-blockchain/go-headers-client/wire"
)

// Params defines a Bitcoin network by its parameters.  These parameters may be
// used by Bitcoin applications to differentiate networks as well as addresses
// and keys for one network from those intended for use on another network.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// Net defines the magic bytes used to identify the network.
	Net wire.BitcoinNet

	// DefaultPort defines the default peer-to-peer port for the network.
	DefaultPort string

	// ProtocolVersion is the version number advertised in the handshake.
	ProtocolVersion uint32

	// UserAgent is the default user agent advertised in the handshake.
	UserAgent string

	// GenesisHeader is the serialized 80 byte genesis block header.
	GenesisHeader []byte

	// GenesisHash is the starting block hash.
	GenesisHash *chainhash.Hash

	// SeedAddresses is a list of host:port peer addresses used to bootstrap
	// the address database when nothing better is known.
	SeedAddresses []string

	// InvalidBlocks are headers that must never enter the header graph.
	// On mainnet these are the first blocks of the chains that split away;
	// rejecting them keeps the client on this network's chain of headers.
	InvalidBlocks []*chainhash.Hash
}

// MainNetParams defines the network parameters for the main network.
var MainNetParams = Params{
	Name:            "mainnet",
	Net:             wire.MainNet,
	DefaultPort:     "8333",
	ProtocolVersion: wire.ProtocolVersion,
	UserAgent:       "/go-headers-client:1.0.0/",

	GenesisHeader: hexToBytes("01000000000000000000000000000000000000000000000000000000000000000000" +
		"00003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4a29ab5f49ffff001d1dac2b7c"),
	GenesisHash: newHashFromStr("000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"),

	SeedAddresses: []string{
		"seed.bitcoinsv.io:8333",
		"seed.satoshisvision.network:8333",
		"seed.cascharia.com:8333",
	},

	InvalidBlocks: []*chainhash.Hash{
		// first block of the BTC chain after the August 2017 split
		newHashFromStr("00000000000000000019f112ec0a9982926f1258cdcc558dd7c3b7f5f278cb23"),
		// first block of the BCH ABC chain after the November 2018 split
		newHashFromStr("00000000000000000102d94fde9bd0807a2cc7582fe85dd6349b73ce4e8d9322"),
	},
}

// TestNetParams defines the network parameters for the test network.
var TestNetParams = Params{
	Name:            "testnet",
	Net:             wire.TestNet3,
	DefaultPort:     "18333",
	ProtocolVersion: wire.ProtocolVersion,
	UserAgent:       "/go-headers-client:1.0.0/",

	GenesisHeader: hexToBytes("01000000000000000000000000000000000000000000000000000000000000000000" +
		"00003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4adae5494dffff001d1aa4ae18"),
	GenesisHash: newHashFromStr("000000000933ea01ad0ee984209779baaec3ced90fa3f408719526f8d77f4943"),

	SeedAddresses: []string{
		"testnet-seed.bitcoinsv.io:18333",
	},
}

// RegressionNetParams defines the network parameters for the regression test
// network.  Not to be confused with the test network, this network is
// sometimes simply called "regtest".
var RegressionNetParams = Params{
	Name:            "regtest",
	Net:             wire.RegTestNet,
	DefaultPort:     "18444",
	ProtocolVersion: wire.ProtocolVersion,
	UserAgent:       "/go-headers-client:1.0.0/",

	GenesisHeader: hexToBytes("01000000000000000000000000000000000000000000000000000000000000000000" +
		"00003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4adae5494dffff7f2002000000"),
	GenesisHash: newHashFromStr("0f9188f13cb7b2c71f2a335e3a4fc328bf5beb436012afca590b1a11466e2206"),
}

// GetChainParams returns the parameters for the named network. The "bsv"
// alias selects mainnet.
func GetChainParams(name string) (*Params, error) {
	switch strings.ToLower(name) {
	case "mainnet", "bsv", "main":
		return &MainNetParams, nil
	case "testnet", "test":
		return &TestNetParams, nil
	case "regtest", "regression":
		return &RegressionNetParams, nil
	default:
		return nil, errors.NewConfigurationError("unknown network %q", name)
	}
}

// hexToBytes converts the passed hex string into bytes and will panic if
// there is an error.  This is only provided for the hard-coded constants so
// errors in the source code can be detected.
func hexToBytes(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic("invalid hex in source file: " + s)
	}

	return b
}

// newHashFromStr converts the passed big-endian hex string into a hash and
// will panic if there is an error.
func newHashFromStr(s string) *chainhash.Hash {
	hash, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic("invalid hash in source file: " + s)
	}

	return hash
}
