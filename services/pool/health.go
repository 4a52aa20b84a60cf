package pool

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bsv-blockchain/go-headers-client/services/peer"
)

// healthMonitor runs once the pool first reaches its connection target. On
// every cycle it refreshes the address database through one extra getaddr
// connection, evicts the oldest-seen surplus addresses, re-syncs every
// verified session in parallel and, when no session is left syncing,
// prunes the losing branches out of the graph.
func (p *Pool) healthMonitor(ctx context.Context) {
	p.logger.Infof("[HealthMonitor] Started, cycling every %v", p.settings.P2P.HealthCheckInterval)

	ticker := time.NewTicker(p.settings.P2P.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Infof("[HealthMonitor] Stopping")
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *Pool) cycle(ctx context.Context) {
	p.refreshAddressDatabase(ctx)

	if evicted := p.metrics.EvictOldest(p.settings.P2P.MaxKnownAddresses, p.sessionAddrs()); evicted > 0 {
		prometheusKnownAddresses.Set(float64(p.metrics.Count()))
	}

	p.syncAllSessions(ctx)

	if !p.AnySessionSyncing() {
		p.chain.PruneBranches()
	}
}

// refreshAddressDatabase opens one extra connection purely to getaddr.
func (p *Pool) refreshAddressDatabase(ctx context.Context) {
	addr := p.metrics.PickCandidate(candidateTopN, p.sessionAddrs())
	if addr == "" {
		return
	}

	session := peer.NewSession(p.logger, &peer.Config{
		Address:  addr,
		Settings: p.settings,
		Chain:    p.chain,
		Liveness: p.liveness,
		Events:   p.events,
	})

	defer session.Dispose()

	if err := session.Connect(ctx); err != nil {
		p.logger.Debugf("[HealthMonitor] Address refresh connection to %s failed: %v", addr, err)
		return
	}

	addrs, err := session.GetAddr(ctx)
	if err != nil {
		p.logger.Debugf("[HealthMonitor] getaddr to %s failed: %v", addr, err)
		return
	}

	p.ingestNetAddresses(addrs)
}

// syncAllSessions runs SyncHeaders on every verified session in parallel.
// Lagging peers surface out_of_sync here.
func (p *Pool) syncAllSessions(ctx context.Context) {
	p.mu.Lock()

	sessions := make([]*peer.Session, 0, len(p.verified))
	for _, session := range p.verified {
		sessions = append(sessions, session)
	}

	p.mu.Unlock()

	g, syncCtx := errgroup.WithContext(ctx)

	for _, session := range sessions {
		session := session

		g.Go(func() error {
			if err := session.SyncHeaders(syncCtx); err != nil {
				p.logger.Debugf("[HealthMonitor] Sync with %s failed: %v", session.Addr(), err)
			}

			// individual sync failures never abort the cycle
			return nil
		})
	}

	_ = g.Wait()
}
