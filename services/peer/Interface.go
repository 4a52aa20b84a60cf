package peer

import (
	"github.com/bsv-blockchain/go-bt/v2/chainhash"

	"github.com/bsv-blockchain/go-headers-client/headergraph"
	"github.com/bsv-blockchain/go-headers-client/model"
)

// HeaderChain is the view of the header graph a session needs. The daemon
// passes a wrapper whose AddHeaders also queues persistence writes.
type HeaderChain interface {
	AddHeaders(batch []*model.BlockHeader) *headergraph.Changeset
	BlockLocator() []*chainhash.Hash
	Tip() *headergraph.HeaderNode
	Height() uint32
	HaveHeader(hash *chainhash.Hash) bool
	OnLongestChain(hash *chainhash.Hash) bool
	HeaderByHash(hash *chainhash.Hash) (*headergraph.HeaderNode, bool)
	InvalidHashes() []*chainhash.Hash
}
