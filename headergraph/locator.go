package headergraph

import (
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// BlockLocator returns the descending hash list peers use to find the fork
// point: the tip and the nine heights below it, then exponentially spaced
// hashes (the gap doubles each step), with genesis always last.
func (g *HeaderGraph) BlockLocator() []*chainhash.Hash {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tipHeight := len(g.chain) - 1
	locator := make([]*chainhash.Hash, 0, 32)

	height := tipHeight
	for i := 0; i < 10 && height > 0; i++ {
		hash := g.chain[height].Hash
		locator = append(locator, &hash)
		height--
	}

	step := 2
	pos := tipHeight - 9

	for pos-step > 0 {
		pos -= step
		step *= 2

		hash := g.chain[pos].Hash
		locator = append(locator, &hash)
	}

	hash := g.genesis.Hash
	locator = append(locator, &hash)

	return locator
}
