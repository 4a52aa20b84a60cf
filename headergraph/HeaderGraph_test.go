package headergraph

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsv-blockchain/go-headers-client/chaincfg"
	"github.com/bsv-blockchain/go-headers-client/model"
	"github.com/bsv-blockchain/go-headers-client/ulogger"
)

// regtest compact target: every header built here carries work 2
var regtestBits = func() model.NBit {
	nBits, err := model.NewNBitFromString("207fffff")
	if err != nil {
		panic(err)
	}
	return *nBits
}()

func newTestGraph(t *testing.T, extraInvalid ...*chainhash.Hash) *HeaderGraph {
	t.Helper()

	g, err := New(ulogger.NewVerboseTestLogger(t), &chaincfg.RegressionNetParams, extraInvalid)
	require.NoError(t, err)

	return g
}

// buildHeader creates a synthetic regtest header. The salt makes the merkle
// root, and therefore the hash, unique per header.
func buildHeader(prev *chainhash.Hash, salt uint32) *model.BlockHeader {
	var merkle chainhash.Hash

	binary.LittleEndian.PutUint32(merkle[:4], salt)
	merkle[31] = 0x7e

	return &model.BlockHeader{
		Version:        0x20000000,
		HashPrevBlock:  prev,
		HashMerkleRoot: &merkle,
		Timestamp:      1296688602 + salt,
		Bits:           regtestBits,
		Nonce:          salt,
	}
}

// buildChain creates count headers chained onto prev.
func buildChain(prev *chainhash.Hash, count int, saltBase uint32) []*model.BlockHeader {
	headers := make([]*model.BlockHeader, 0, count)

	for i := 0; i < count; i++ {
		bh := buildHeader(prev, saltBase+uint32(i))
		headers = append(headers, bh)
		prev = bh.Hash()
	}

	return headers
}

func assertInvariants(t *testing.T, g *HeaderGraph) {
	t.Helper()

	for i := 0; i < int(g.Height())+1; i++ {
		node, ok := g.HeaderByHeight(uint32(i))
		require.True(t, ok)
		assert.Equal(t, uint32(i), node.Height)

		if i > 0 {
			parent, ok := g.HeaderByHash(node.Header.HashPrevBlock)
			require.True(t, ok)

			work, err := model.CalculateWork(node.Header.Bits)
			require.NoError(t, err)

			expected := new(big.Int).Add(parent.WorkTotal, work)
			assert.Equal(t, 0, node.WorkTotal.Cmp(expected), "work total at height %d", i)
		}
	}
}

func TestGenesisOnly(t *testing.T) {
	t.Run("mainnet", func(t *testing.T) {
		g, err := New(ulogger.NewVerboseTestLogger(t), &chaincfg.MainNetParams, nil)
		require.NoError(t, err)

		tip := g.Tip()
		assert.Equal(t, uint32(0), tip.Height)
		assert.Equal(t, "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f", tip.Hash.String())
		assert.Equal(t, "4295032833", tip.WorkTotal.String())
	})

	t.Run("re-adding genesis is a no-op", func(t *testing.T) {
		g := newTestGraph(t)

		genesisHeader, err := model.NewBlockHeaderFromBytes(chaincfg.RegressionNetParams.GenesisHeader)
		require.NoError(t, err)

		changeset := g.AddHeaders([]*model.BlockHeader{genesisHeader})
		assert.True(t, changeset.IsNoOp())
		assert.Equal(t, uint32(0), g.Height())
	})
}

func TestLinearExtension(t *testing.T) {
	g := newTestGraph(t)
	genesisWork := g.Tip().WorkTotal.Int64()

	headers := buildChain(&g.Tip().Hash, 9, 1)

	changeset := g.AddHeaders(headers)
	require.Len(t, changeset.Added, 9)
	assert.Empty(t, changeset.Removed)
	assert.Empty(t, changeset.Invalidated)

	tip := g.Tip()
	assert.Equal(t, uint32(9), tip.Height)
	assert.Equal(t, 10*genesisWork, tip.WorkTotal.Int64())
	assert.Equal(t, 1, g.LeafCount())

	t.Run("same batch again is a no-op", func(t *testing.T) {
		changeset := g.AddHeaders(headers)
		assert.True(t, changeset.IsNoOp())
		assert.Equal(t, uint32(9), g.Height())
		assert.Equal(t, 10, g.HeaderCount())
	})
}

func TestBrokenChain(t *testing.T) {
	g := newTestGraph(t)

	t.Run("orphan batch is dropped entirely", func(t *testing.T) {
		var unknown chainhash.Hash
		unknown[0] = 0xaa

		changeset := g.AddHeaders(buildChain(&unknown, 3, 100))
		assert.True(t, changeset.IsNoOp())
		assert.Equal(t, 1, g.HeaderCount())
	})

	t.Run("accepted prefix is kept when the chain breaks", func(t *testing.T) {
		headers := buildChain(&g.Tip().Hash, 2, 200)

		var unknown chainhash.Hash
		unknown[0] = 0xbb
		headers = append(headers, buildHeader(&unknown, 300))
		headers = append(headers, buildChain(headers[2].Hash(), 2, 301)...)

		changeset := g.AddHeaders(headers)
		require.Len(t, changeset.Added, 2)
		assert.Equal(t, uint32(2), g.Height())
	})
}

func TestReorg(t *testing.T) {
	g := newTestGraph(t)

	mainChain := buildChain(&g.Tip().Hash, 9, 1)
	g.AddHeaders(mainChain)
	require.Equal(t, uint32(9), g.Height())

	oldTipHash := g.Tip().Hash
	height8 := mainChain[7].Hash()
	height9 := mainChain[8].Hash()

	// three headers branching off height 7
	branch := buildChain(mainChain[6].Hash(), 3, 500)

	changeset := g.AddHeaders(branch)
	require.Len(t, changeset.Removed, 2)
	require.Len(t, changeset.Added, 3)
	assert.Equal(t, *height8, changeset.Removed[0].Hash)
	assert.Equal(t, *height9, changeset.Removed[1].Hash)

	tip := g.Tip()
	assert.Equal(t, uint32(10), tip.Height)
	assert.Equal(t, *branch[2].Hash(), tip.Hash)

	t.Run("losing branch stays in the graph until pruned", func(t *testing.T) {
		assert.True(t, g.HaveHeader(&oldTipHash))
		assert.False(t, g.OnLongestChain(&oldTipHash))
		assert.Equal(t, 2, g.LeafCount())
	})

	t.Run("prune removes the losing branch", func(t *testing.T) {
		removed := g.PruneBranches()
		assert.Equal(t, 2, removed)
		assert.False(t, g.HaveHeader(&oldTipHash))
		assert.False(t, g.HaveHeader(height8))
		assert.Equal(t, 1, g.LeafCount())

		// idempotent
		assert.Equal(t, 0, g.PruneBranches())
		assert.Equal(t, 1, g.LeafCount())
	})
}

func TestEqualWorkDoesNotReorg(t *testing.T) {
	g := newTestGraph(t)

	mainChain := buildChain(&g.Tip().Hash, 5, 1)
	g.AddHeaders(mainChain)

	incumbent := g.Tip().Hash

	// a competing branch of equal length, and therefore equal work total
	branch := buildChain(mainChain[3].Hash(), 1, 900)

	changeset := g.AddHeaders(branch)
	assert.True(t, changeset.IsNoOp())
	assert.Equal(t, incumbent, g.Tip().Hash)
	assert.Equal(t, 2, g.LeafCount())
}

func TestInvalidBlockFork(t *testing.T) {
	g := newTestGraph(t)

	mainChain := buildChain(&g.Tip().Hash, 9, 1)
	g.AddHeaders(mainChain)

	branch := buildChain(mainChain[6].Hash(), 3, 700)

	// rebuild the graph with the branch's height 9 declared invalid a priori
	g = newTestGraph(t, branch[1].Hash())
	g.AddHeaders(mainChain)
	oldTip := g.Tip().Hash

	changeset := g.AddHeaders(branch)
	require.Len(t, changeset.Invalidated, 2)
	assert.Equal(t, *branch[1].Hash(), *changeset.Invalidated[0].Hash())
	assert.Equal(t, *branch[2].Hash(), *changeset.Invalidated[1].Hash())

	assert.True(t, changeset.IsNoOp())
	assert.Equal(t, oldTip, g.Tip().Hash)

	t.Run("descendant of an invalid hash is rejected on its own", func(t *testing.T) {
		descendant := buildChain(branch[1].Hash(), 1, 800)

		changeset := g.AddHeaders(descendant)
		require.Len(t, changeset.Invalidated, 1)
		assert.True(t, changeset.IsNoOp())
	})
}

func TestInvariantsAfterMixedActivity(t *testing.T) {
	g := newTestGraph(t)

	mainChain := buildChain(&g.Tip().Hash, 20, 1)
	g.AddHeaders(mainChain)
	g.AddHeaders(buildChain(mainChain[9].Hash(), 3, 1000))
	g.AddHeaders(buildChain(mainChain[14].Hash(), 8, 2000))

	assertInvariants(t, g)

	// after pruning, only the longest chain remains
	g.PruneBranches()
	assert.Equal(t, 1, g.LeafCount())
	assert.Equal(t, int(g.Height())+1, g.HeaderCount())
	assertInvariants(t, g)
}

func TestBlockLocator(t *testing.T) {
	t.Run("genesis only", func(t *testing.T) {
		g := newTestGraph(t)

		locator := g.BlockLocator()
		require.Len(t, locator, 1)
		assert.Equal(t, g.Tip().Hash, *locator[0])
	})

	t.Run("short chain is dense plus genesis", func(t *testing.T) {
		g := newTestGraph(t)
		g.AddHeaders(buildChain(&g.Tip().Hash, 5, 1))

		locator := g.BlockLocator()
		require.Len(t, locator, 6)
		assert.Equal(t, g.Tip().Hash, *locator[0])
		assert.Equal(t, chaincfg.RegressionNetParams.GenesisHash.String(), locator[5].String())
	})

	t.Run("long chain sparsifies", func(t *testing.T) {
		g := newTestGraph(t)
		g.AddHeaders(buildChain(&g.Tip().Hash, 30, 1))

		locator := g.BlockLocator()

		// heights 30..21 dense, then 19, 15, 7, then genesis
		require.Len(t, locator, 14)
		assert.Equal(t, g.Tip().Hash, *locator[0])

		node, _ := g.HeaderByHeight(19)
		assert.Equal(t, node.Hash, *locator[10])

		node, _ = g.HeaderByHeight(15)
		assert.Equal(t, node.Hash, *locator[11])

		node, _ = g.HeaderByHeight(7)
		assert.Equal(t, node.Hash, *locator[12])

		assert.Equal(t, chaincfg.RegressionNetParams.GenesisHash.String(), locator[13].String())
	})
}
