// Package pool maintains the target number of healthy peer sessions. It
// scores every address on observed behavior, blacklists the worst,
// establishes connections through a bank of worker loops, and defends the
// reputation system against coordinated mass disconnects.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/bsv-blockchain/go-headers-client/services/peer"
	"github.com/bsv-blockchain/go-headers-client/settings"
	"github.com/bsv-blockchain/go-headers-client/stores/peers"
	"github.com/bsv-blockchain/go-headers-client/ulogger"
	"github.com/bsv-blockchain/go-headers-client/util/liveness"
)

// HeaderChain extends the session view of the graph with pruning, which
// only the pool may trigger (it knows when no session is syncing).
type HeaderChain interface {
	peer.HeaderChain
	PruneBranches() int
}

// TipEvent is the pool's sole outward notification: the longest chain
// advanced.
type TipEvent struct {
	Height  uint32
	HashHex string
}

const (
	eventChannelSize = 256
	tipChannelSize   = 64

	// how long a disconnect timestamp stays countable for the mass
	// disconnect defense
	disconnectMemory = 10 * time.Second
)

type Pool struct {
	logger    ulogger.Logger
	settings  *settings.Settings
	chain     HeaderChain
	liveness  *liveness.Monitor
	metrics   *metricsStore
	peerStore *peers.Store

	events chan peer.Event
	tips   chan TipEvent

	mu       sync.Mutex
	pending  map[string]*peer.Session
	verified map[string]*peer.Session

	recentDisconnects *ttlcache.Cache[string, time.Time]

	priority chan string

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	healthOnce    sync.Once
	bootstrapOnce sync.Once
	started       atomic.Bool
}

func New(logger ulogger.Logger, tSettings *settings.Settings, chain HeaderChain, monitor *liveness.Monitor, peerStore *peers.Store) *Pool {
	recentDisconnects := ttlcache.New[string, time.Time](
		ttlcache.WithTTL[string, time.Time](disconnectMemory),
	)

	return &Pool{
		logger:            logger,
		settings:          tSettings,
		chain:             chain,
		liveness:          monitor,
		metrics:           newMetricsStore(logger, peerStore),
		peerStore:         peerStore,
		events:            make(chan peer.Event, eventChannelSize),
		tips:              make(chan TipEvent, tipChannelSize),
		pending:           make(map[string]*peer.Session),
		verified:          make(map[string]*peer.Session),
		recentDisconnects: recentDisconnects,
		priority:          make(chan string, 16),
	}
}

// Tips returns the channel of longest chain advances.
func (p *Pool) Tips() <-chan TipEvent {
	return p.tips
}

// Threshold returns the blacklist cutoff derived at startup.
func (p *Pool) Threshold() float64 {
	return p.metrics.Threshold()
}

// VerifiedCount returns the number of installed verified sessions.
func (p *Pool) VerifiedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.verified)
}

// AnySessionSyncing reports whether any verified session is in its header
// sync loop. The health monitor checks this before pruning the graph.
func (p *Pool) AnySessionSyncing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, session := range p.verified {
		if session.Syncing() {
			return true
		}
	}

	return false
}

// ConnectToPeer queues an address for priority connection ahead of the
// rating-based selector.
func (p *Pool) ConnectToPeer(addr string) {
	p.metrics.AddSeen(addr)

	select {
	case p.priority <- addr:
	default:
		p.logger.Warnf("[PeerPool] Priority queue full, dropping %s", addr)
	}
}

// Start loads persisted metrics, then launches the event loop, the worker
// bank and the ttl cache. It is not reentrant; the daemon serializes
// start/stop.
func (p *Pool) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return nil
	}

	if err := p.metrics.load(ctx); err != nil {
		return err
	}

	p.runCtx, p.runCancel = context.WithCancel(ctx)

	go p.recentDisconnects.Start()

	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		p.eventLoop()
	}()

	p.logger.Infof("[PeerPool] Starting %d connection workers (target %d, blacklist threshold %.4f)",
		p.settings.P2P.NumWorkers, p.settings.P2P.TargetConnections, p.metrics.Threshold())

	for i := 0; i < p.settings.P2P.NumWorkers; i++ {
		p.wg.Add(1)

		go func(id int) {
			defer p.wg.Done()
			p.worker(p.runCtx, id)
		}(i)
	}

	return nil
}

// Stop aborts the workers and health monitor, disposes every session and
// waits for the event loop to drain.
func (p *Pool) Stop() {
	if !p.started.CompareAndSwap(true, false) {
		return
	}

	p.runCancel()

	p.mu.Lock()

	sessions := make([]*peer.Session, 0, len(p.pending)+len(p.verified))
	for _, session := range p.pending {
		sessions = append(sessions, session)
	}

	for _, session := range p.verified {
		sessions = append(sessions, session)
	}

	p.mu.Unlock()

	for _, session := range sessions {
		session.Dispose()
	}

	p.wg.Wait()
	p.recentDisconnects.Stop()

	p.logger.Infof("[PeerPool] Stopped")
}

// sessionAddrs returns every address with a pending or verified session.
func (p *Pool) sessionAddrs() map[string]struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	addrs := make(map[string]struct{}, len(p.pending)+len(p.verified))

	for addr := range p.pending {
		addrs[addr] = struct{}{}
	}

	for addr := range p.verified {
		addrs[addr] = struct{}{}
	}

	return addrs
}

// eventLoop is the single consumer of session events; it converts them to
// metric updates and outward notifications. It drains until the run
// context ends and every session has reported its disconnect.
func (p *Pool) eventLoop() {
	for {
		select {
		case event := <-p.events:
			p.handleEvent(event)
		case <-p.runCtx.Done():
			// keep draining so disposing sessions never block on emit
			for {
				select {
				case event := <-p.events:
					p.handleEvent(event)
				case <-time.After(500 * time.Millisecond):
					return
				}
			}
		}
	}
}

func (p *Pool) handleEvent(event peer.Event) {
	switch event.Type {
	case peer.EventConnected:
		p.metrics.AddLastConnect(event.Addr)

	case peer.EventPong:
		p.metrics.AddPing(event.Addr, event.PingDuration)

	case peer.EventNewChainTip:
		p.metrics.AddDataReceived(event.Addr)
		prometheusChainHeight.Set(float64(event.TipHeight))

		select {
		case p.tips <- TipEvent{Height: event.TipHeight, HashHex: event.TipHash}:
		default:
			p.logger.Warnf("[PeerPool] Tip subscriber is slow, dropping tip %d", event.TipHeight)
		}

	case peer.EventInvalidBlocks:
		p.logger.Warnf("[PeerPool] %s advertised %d invalid headers", event.Addr, len(event.Invalidated))
		p.metrics.AddInvalidChain(event.Addr)

	case peer.EventOutOfSync:
		p.metrics.AddOutOfSync(event.Addr)

	case peer.EventAddr:
		addrs := make([]string, 0, len(event.Addresses))
		for _, na := range event.Addresses {
			addrs = append(addrs, canonicalAddr(na))
		}

		p.metrics.AddSeenBatch(addrs)

	case peer.EventBlockHashes:
		// a block announcement is a chance to sync opportunistically
		p.mu.Lock()
		session, verified := p.verified[event.Addr]
		p.mu.Unlock()

		if verified {
			go func() {
				if err := session.SyncHeaders(p.runCtx); err != nil {
					p.logger.Debugf("[PeerPool] Opportunistic sync with %s failed: %v", event.Addr, err)
				}
			}()
		}

	case peer.EventDisconnected:
		p.handleDisconnect(event)
	}
}

func (p *Pool) handleDisconnect(event peer.Event) {
	p.removeSession(event.Addr)

	switch event.Reason {
	case peer.DisconnectIntentional:
		// never penalized

	case peer.DisconnectBeforeConnect:
		p.metrics.AddUnintentionalDisconnect(event.Addr)

	case peer.DisconnectAfterConnect:
		p.recentDisconnects.Set(event.Addr, time.Now(), ttlcache.DefaultTTL)

		// defer the penalty decision until the mass disconnect window has
		// passed
		p.wg.Add(1)

		go func() {
			defer p.wg.Done()
			p.penalizeUnlessMassDisconnect(event.Addr, time.Now())
		}()
	}
}

// penalizeUnlessMassDisconnect waits out the disconnect window and skips
// the penalty when at least half (rounded down) of the previously connected
// sessions, this one included, dropped within the window: that is a network
// blip or a coordinated upstream
// failure, not this peer misbehaving.
func (p *Pool) penalizeUnlessMassDisconnect(addr string, at time.Time) {
	window := p.settings.P2P.RecentDisconnectWindow

	select {
	case <-time.After(window):
	case <-p.runCtx.Done():
		// shutting down; the disconnect was collateral, never penalize
		return
	}

	dropped := 0

	p.recentDisconnects.Range(func(item *ttlcache.Item[string, time.Time]) bool {
		delta := item.Value().Sub(at)
		if delta < 0 {
			delta = -delta
		}

		if delta <= window {
			dropped++
		}

		return true
	})

	remaining := p.VerifiedCount()
	before := remaining + dropped

	if remaining+before/2-1 < before {
		p.logger.Warnf("[PeerPool] %d of %d sessions dropped together, not penalizing %s", dropped, before, addr)
		return
	}

	p.metrics.AddUnintentionalDisconnect(addr)
}

// removeSession drops the session for addr from both maps.
func (p *Pool) removeSession(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.pending, addr)

	if _, exists := p.verified[addr]; exists {
		delete(p.verified, addr)
		prometheusVerifiedPeers.Set(float64(len(p.verified)))
	}
}
