package peer

import (
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"

	"github.com/bsv-blockchain/go-headers-client/model"
	"github.com/bsv-blockchain/go-headers-client/wire"
)

// EventType identifies a session event.
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
	EventPong
	EventNewChainTip
	EventInvalidBlocks
	EventOutOfSync
	EventAddr
	EventBlockHashes
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventPong:
		return "pong"
	case EventNewChainTip:
		return "new_chain_tip"
	case EventInvalidBlocks:
		return "invalid_blocks"
	case EventOutOfSync:
		return "out_of_sync"
	case EventAddr:
		return "addr"
	case EventBlockHashes:
		return "block_hashes"
	default:
		return "unknown"
	}
}

// DisconnectReason classifies how a session ended, for reputation scoring.
type DisconnectReason int

const (
	// DisconnectIntentional means the owner disposed the session or
	// cancelled it; the peer is never penalized for it.
	DisconnectIntentional DisconnectReason = iota

	// DisconnectBeforeConnect means the transport closed, errored or timed
	// out before the handshake completed.
	DisconnectBeforeConnect

	// DisconnectAfterConnect means the session dropped at or after Ready.
	DisconnectAfterConnect
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectIntentional:
		return "intentional"
	case DisconnectBeforeConnect:
		return "unintentional_before_connect"
	case DisconnectAfterConnect:
		return "unintentional_after_connect"
	default:
		return "unknown"
	}
}

// Event is a notification from a session to its pool. Only the fields
// relevant to the Type are set.
type Event struct {
	Type EventType

	// Addr is the session's peer address.
	Addr string

	Reason DisconnectReason

	PingDuration time.Duration
	PingNonce    uint64

	TipHeight uint32
	TipHash   string

	Invalidated []*model.BlockHeader
	Addresses   []*wire.NetAddress
	BlockHashes []*chainhash.Hash
}
