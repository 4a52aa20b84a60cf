// Package daemon wires the stores, the header graph, the liveness monitor
// and the peer pool together, and exposes the client's public surface:
// three read queries and the new chain tip subscription.
package daemon

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"

	"github.com/bsv-blockchain/go-headers-client/errors"
	"github.com/bsv-blockchain/go-headers-client/headergraph"
	"github.com/bsv-blockchain/go-headers-client/model"
	"github.com/bsv-blockchain/go-headers-client/services/pool"
	"github.com/bsv-blockchain/go-headers-client/settings"
	"github.com/bsv-blockchain/go-headers-client/stores/headers"
	"github.com/bsv-blockchain/go-headers-client/stores/peers"
	"github.com/bsv-blockchain/go-headers-client/ulogger"
	"github.com/bsv-blockchain/go-headers-client/util/liveness"
)

// storeVersion is part of the on-disk path so that incompatible schema
// changes migrate by starting a fresh directory.
const storeVersion = "v1"

const reloadBatchSize = 2000

// persistingChain couples graph mutation with the write-behind header
// store: every changeset is queued for persistence as soon as it is
// accepted in memory.
type persistingChain struct {
	*headergraph.HeaderGraph

	store *headers.Store
}

func (c *persistingChain) AddHeaders(batch []*model.BlockHeader) *headergraph.Changeset {
	changeset := c.HeaderGraph.AddHeaders(batch)
	c.store.ApplyChangeset(changeset)

	return changeset
}

type Daemon struct {
	logger    ulogger.Logger
	settings  *settings.Settings
	graph     *headergraph.HeaderGraph
	chain     *persistingChain
	headersDB *headers.Store
	peersDB   *peers.Store
	liveness  *liveness.Monitor
	pool      *pool.Pool

	mu          sync.Mutex
	running     bool
	runCancel   context.CancelFunc
	runDone     chan struct{}
	subscribers []chan pool.TipEvent
}

// New opens the persistent stores, rebuilds the graph from disk and wires
// the pool. Nothing touches the network until Start.
func New(logger ulogger.Logger, tSettings *settings.Settings) (*Daemon, error) {
	chainName := tSettings.ChainCfgParams.Name

	headersDB, err := headers.New(logger, filepath.Join(tSettings.DataFolder, storeVersion, chainName, "headers"))
	if err != nil {
		return nil, err
	}

	peersDB, err := peers.New(logger, filepath.Join(tSettings.DataFolder, storeVersion, chainName, "nodes", "legacy"))
	if err != nil {
		return nil, err
	}

	graph, err := headergraph.New(logger, tSettings.ChainCfgParams, tSettings.InvalidBlocks)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		logger:    logger,
		settings:  tSettings,
		graph:     graph,
		chain:     &persistingChain{HeaderGraph: graph, store: headersDB},
		headersDB: headersDB,
		peersDB:   peersDB,
		liveness:  liveness.NewMonitor(logger, tSettings.P2P.LivenessInterval),
	}

	if err = d.reloadHeaders(context.Background()); err != nil {
		return nil, err
	}

	d.pool = pool.New(logger, tSettings, d.chain, d.liveness, peersDB)

	return d, nil
}

// reloadHeaders replays the persisted chain into the graph in height order.
// Records that no longer link (after a crash mid re-org, for instance) are
// dropped; the missing headers are simply re-downloaded.
func (d *Daemon) reloadHeaders(ctx context.Context) error {
	batch := make([]*model.BlockHeader, 0, reloadBatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}

		d.graph.AddHeaders(batch)
		batch = batch[:0]
	}

	err := d.headersDB.Iter(ctx, func(height uint32, headerBytes []byte) error {
		bh, err := model.NewStoredBlockHeaderFromBytes(headerBytes)
		if err != nil {
			d.logger.Warnf("[Daemon] Dropping unreadable stored header at height %d: %v", height, err)
			return nil
		}

		batch = append(batch, bh)

		if len(batch) >= reloadBatchSize {
			flush()
		}

		return nil
	})
	if err != nil {
		return err
	}

	flush()

	d.logger.Infof("[Daemon] Restored chain to height %d (%s)", d.graph.Height(), d.graph.Tip().Hash)

	return nil
}

// Start brings the client online. It is idempotent: a second call while
// running is a no-op, and a call racing Stop is serialized behind it.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.runCancel = cancel
	d.runDone = make(chan struct{})

	d.liveness.Start(runCtx)

	if err := d.pool.Start(runCtx); err != nil {
		cancel()
		return err
	}

	go d.fanOutTips(d.runDone)

	d.running = true

	d.logger.Infof("[Daemon] Started on %s at height %d", d.settings.ChainCfgParams.Name, d.graph.Height())

	return nil
}

// Stop aborts the workers and the health monitor, disposes every session
// and waits for the queues to drain. The stores stay open, so Stop may be
// followed by another Start.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}

	d.runCancel()
	d.pool.Stop()
	close(d.runDone)

	d.running = false

	d.logger.Infof("[Daemon] Stopped at height %d", d.graph.Height())
}

// Shutdown stops the client and closes the persistent stores, draining
// their write queues.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.Stop()

	if err := d.headersDB.Close(ctx); err != nil {
		return err
	}

	return d.peersDB.Close(ctx)
}

// fanOutTips copies pool tip events to every subscriber until stopped.
func (d *Daemon) fanOutTips(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case tip := <-d.pool.Tips():
			d.mu.Lock()
			subscribers := append([]chan pool.TipEvent{}, d.subscribers...)
			d.mu.Unlock()

			for _, sub := range subscribers {
				select {
				case sub <- tip:
				default:
					// a slow subscriber misses a tip rather than stalling
					// the rest
				}
			}
		}
	}
}

// Subscribe returns a channel of longest chain advances.
func (d *Daemon) Subscribe() <-chan pool.TipEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	sub := make(chan pool.TipEvent, 32)
	d.subscribers = append(d.subscribers, sub)

	return sub
}

// ConnectToPeer asks the pool to connect to a specific address ahead of
// rating-based selection.
func (d *Daemon) ConnectToPeer(addr string) {
	d.pool.ConnectToPeer(addr)
}

// GetTip returns the longest chain tip.
func (d *Daemon) GetTip() (uint32, string) {
	tip := d.graph.Tip()
	return tip.Height, tip.Hash.String()
}

// GetHeaderByHeight returns the longest chain header at the given height.
func (d *Daemon) GetHeaderByHeight(height uint32) (*model.BlockHeader, error) {
	node, exists := d.graph.HeaderByHeight(height)
	if !exists {
		return nil, errors.NewBlockNotFoundError("no header at height %d", height)
	}

	return node.Header, nil
}

// GetHeaderByHash returns the header with the given display hex hash.
func (d *Daemon) GetHeaderByHash(hashHex string) (*model.BlockHeader, error) {
	hash, err := chainhash.NewHashFromStr(hashHex)
	if err != nil {
		return nil, errors.NewInvalidArgumentError("bad block hash %q", hashHex, err)
	}

	node, exists := d.graph.HeaderByHash(hash)
	if !exists {
		return nil, errors.NewBlockNotFoundError("no header with hash %s", hashHex)
	}

	return node.Header, nil
}
