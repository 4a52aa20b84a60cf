// Package headergraph holds every known block header in a parent/child tree
// and materializes the longest proof-of-work chain, recomputing it
// incrementally as new headers arrive from peers.
package headergraph

import (
	"math/big"
	"sync"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"

	"github.com/bsv-blockchain/go-headers-client/chaincfg"
	"github.com/bsv-blockchain/go-headers-client/errors"
	"github.com/bsv-blockchain/go-headers-client/model"
	"github.com/bsv-blockchain/go-headers-client/ulogger"
)

// HeaderNode is a vertex of the graph. Height and WorkTotal are computed
// once when the node is linked to its parent and never change afterwards.
// Parent access is a map lookup via Header.HashPrevBlock, never a pointer.
type HeaderNode struct {
	Header    *model.BlockHeader
	Hash      chainhash.Hash
	Height    uint32
	WorkTotal *big.Int
}

// Changeset describes the effect of one AddHeaders call on the longest chain.
type Changeset struct {
	// Added are the nodes appended to the longest chain, lowest height first.
	Added []*HeaderNode

	// Removed are the nodes truncated from the longest chain by a re-org,
	// lowest height first.
	Removed []*HeaderNode

	// Invalidated are the batch headers rejected because they equal, or
	// descend from, a known invalid hash.
	Invalidated []*model.BlockHeader
}

// IsNoOp reports whether the longest chain was left untouched.
func (c *Changeset) IsNoOp() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// HeaderGraph is the single writer for all header state. All mutation goes
// through AddHeaders and PruneBranches, serialized by the internal mutex.
type HeaderGraph struct {
	mu     sync.RWMutex
	logger ulogger.Logger

	byHash   map[chainhash.Hash]*HeaderNode
	children map[chainhash.Hash]map[chainhash.Hash]struct{}
	leaves   map[chainhash.Hash]struct{}

	chain      []*HeaderNode
	chainIndex map[chainhash.Hash]int

	invalid map[chainhash.Hash]struct{}

	genesis *HeaderNode
}

// New creates a graph seeded with the chain's genesis header. The chain's
// built-in invalid block list is unioned with extraInvalid.
func New(logger ulogger.Logger, params *chaincfg.Params, extraInvalid []*chainhash.Hash) (*HeaderGraph, error) {
	genesisHeader, err := model.NewBlockHeaderFromBytes(params.GenesisHeader)
	if err != nil {
		return nil, errors.NewConfigurationError("invalid genesis header for %s", params.Name, err)
	}

	genesisWork, err := model.CalculateWork(genesisHeader.Bits)
	if err != nil {
		return nil, err
	}

	genesis := &HeaderNode{
		Header:    genesisHeader,
		Hash:      *genesisHeader.Hash(),
		Height:    0,
		WorkTotal: genesisWork,
	}

	g := &HeaderGraph{
		logger:     logger,
		byHash:     map[chainhash.Hash]*HeaderNode{genesis.Hash: genesis},
		children:   map[chainhash.Hash]map[chainhash.Hash]struct{}{genesis.Hash: {}},
		leaves:     map[chainhash.Hash]struct{}{genesis.Hash: {}},
		chain:      []*HeaderNode{genesis},
		chainIndex: map[chainhash.Hash]int{genesis.Hash: 0},
		invalid:    map[chainhash.Hash]struct{}{},
		genesis:    genesis,
	}

	for _, hash := range params.InvalidBlocks {
		g.invalid[*hash] = struct{}{}
	}

	for _, hash := range extraInvalid {
		g.invalid[*hash] = struct{}{}
	}

	return g, nil
}

// AddHeaders links a sequential batch of headers into the graph and returns
// the resulting changeset. The batch is not trusted to be contiguous with
// the graph: scanning stops at the first header whose parent is unknown and
// the rest of the batch is dropped, while headers accepted before the break
// are kept.
func (g *HeaderGraph) AddHeaders(batch []*model.BlockHeader) *Changeset {
	g.mu.Lock()
	defer g.mu.Unlock()

	changeset := &Changeset{}

	// drop headers already linked, so their computed height and work total
	// are never recomputed or lost
	if len(g.byHash) > 1 {
		filtered := make([]*model.BlockHeader, 0, len(batch))

		for _, bh := range batch {
			if _, exists := g.byHash[*bh.Hash()]; !exists {
				filtered = append(filtered, bh)
			}
		}

		batch = filtered
	}

scan:
	for i, bh := range batch {
		hash := *bh.Hash()

		_, selfInvalid := g.invalid[hash]
		_, parentInvalid := g.invalid[*bh.HashPrevBlock]

		if selfInvalid || parentInvalid {
			changeset.Invalidated = append(changeset.Invalidated, bh)

			// greedily take every following header that chains off the
			// invalidated one, then stop scanning
			prev := hash
			for j := i + 1; j < len(batch); j++ {
				if !batch[j].HashPrevBlock.IsEqual(&prev) {
					break
				}

				changeset.Invalidated = append(changeset.Invalidated, batch[j])
				prev = *batch[j].Hash()
			}

			break scan
		}

		parent, exists := g.byHash[*bh.HashPrevBlock]
		if !exists {
			// broken chain: drop the remainder of the batch
			break scan
		}

		work, err := model.CalculateWork(bh.Bits)
		if err != nil {
			g.logger.Warnf("[HeaderGraph] Dropping header %s with unusable target: %v", hash, err)
			break scan
		}

		node := &HeaderNode{
			Header:    bh,
			Hash:      hash,
			Height:    parent.Height + 1,
			WorkTotal: new(big.Int).Add(parent.WorkTotal, work),
		}

		g.byHash[hash] = node
		g.children[parent.Hash][hash] = struct{}{}
		g.children[hash] = map[chainhash.Hash]struct{}{}

		delete(g.leaves, parent.Hash)
		g.leaves[hash] = struct{}{}
	}

	g.reorgLocked(changeset)

	return changeset
}

// reorgLocked recomputes the longest chain after an insertion. A tie in work
// total never causes a re-org: the incumbent tip wins.
func (g *HeaderGraph) reorgLocked(changeset *Changeset) {
	tip := g.chain[len(g.chain)-1]

	best := tip
	for leafHash := range g.leaves {
		leaf := g.byHash[leafHash]
		if leaf.WorkTotal.Cmp(best.WorkTotal) > 0 {
			best = leaf
		}
	}

	if best == tip {
		return
	}

	// walk back from the new tip to the common ancestor, the first node
	// already on the longest chain
	var walked []*HeaderNode

	cur := best
	for {
		if _, onChain := g.chainIndex[cur.Hash]; onChain {
			break
		}

		walked = append(walked, cur)
		cur = g.byHash[*cur.Header.HashPrevBlock]
	}

	splitHeight := cur.Height + 1

	for _, node := range g.chain[splitHeight:] {
		changeset.Removed = append(changeset.Removed, node)
		delete(g.chainIndex, node.Hash)
	}

	g.chain = g.chain[:splitHeight]

	for i := len(walked) - 1; i >= 0; i-- {
		node := walked[i]
		g.chainIndex[node.Hash] = len(g.chain)
		g.chain = append(g.chain, node)
		changeset.Added = append(changeset.Added, node)
	}

	if len(changeset.Removed) > 0 {
		g.logger.Infof("[HeaderGraph] Re-org at height %d: removed %d, added %d, new tip %s (height %d)",
			splitHeight, len(changeset.Removed), len(changeset.Added), best.Hash, best.Height)
	}
}

// Tip returns the node at the end of the longest chain.
func (g *HeaderGraph) Tip() *HeaderNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.chain[len(g.chain)-1]
}

// Height returns the height of the longest chain tip.
func (g *HeaderGraph) Height() uint32 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return uint32(len(g.chain) - 1)
}

// HeaderByHeight returns the longest chain node at the given height.
func (g *HeaderGraph) HeaderByHeight(height uint32) (*HeaderNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if int(height) >= len(g.chain) {
		return nil, false
	}

	return g.chain[height], true
}

// HeaderByHash returns the node with the given hash, on any branch.
func (g *HeaderGraph) HeaderByHash(hash *chainhash.Hash) (*HeaderNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.byHash[*hash]

	return node, exists
}

// HaveHeader reports whether the hash is linked into the graph.
func (g *HeaderGraph) HaveHeader(hash *chainhash.Hash) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, exists := g.byHash[*hash]

	return exists
}

// OnLongestChain reports whether the hash is part of the longest chain.
func (g *HeaderGraph) OnLongestChain(hash *chainhash.Hash) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, onChain := g.chainIndex[*hash]

	return onChain
}

// IsInvalid reports whether the hash is on the invalid block list.
func (g *HeaderGraph) IsInvalid(hash *chainhash.Hash) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, bad := g.invalid[*hash]

	return bad
}

// InvalidHashes returns the configured invalid block hashes.
func (g *HeaderGraph) InvalidHashes() []*chainhash.Hash {
	g.mu.RLock()
	defer g.mu.RUnlock()

	hashes := make([]*chainhash.Hash, 0, len(g.invalid))

	for hash := range g.invalid {
		h := hash
		hashes = append(hashes, &h)
	}

	return hashes
}

// LeafCount returns the number of branch tips, including the chain tip.
func (g *HeaderGraph) LeafCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.leaves)
}

// HeaderCount returns the number of linked headers across all branches.
func (g *HeaderGraph) HeaderCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.byHash)
}
