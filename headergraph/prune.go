package headergraph

import (
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// PruneBranches removes every branch that lost to the longest chain and
// returns the number of nodes removed. The caller must ensure no peer
// session is running its header sync loop: a branch about to receive an
// extension would otherwise be deleted from under it. Afterwards the tip is
// the only leaf.
func (g *HeaderGraph) PruneBranches() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	tip := g.chain[len(g.chain)-1]
	removed := 0

	leafHashes := make([]chainhash.Hash, 0, len(g.leaves))
	for hash := range g.leaves {
		leafHashes = append(leafHashes, hash)
	}

	for _, leafHash := range leafHashes {
		if leafHash == tip.Hash {
			continue
		}

		cur := g.byHash[leafHash]
		for cur != nil {
			if _, onChain := g.chainIndex[cur.Hash]; onChain {
				break
			}

			// another surviving branch still hangs off this node
			if len(g.children[cur.Hash]) > 0 {
				break
			}

			parentHash := *cur.Header.HashPrevBlock

			delete(g.byHash, cur.Hash)
			delete(g.children, cur.Hash)
			delete(g.leaves, cur.Hash)
			delete(g.children[parentHash], cur.Hash)

			removed++

			cur = g.byHash[parentHash]
		}
	}

	if removed > 0 {
		g.logger.Infof("[HeaderGraph] Pruned %d nodes from losing branches, %d leaves remain", removed, len(g.leaves))
	}

	return removed
}
