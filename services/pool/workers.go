package pool

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bsv-blockchain/go-headers-client/errors"
	"github.com/bsv-blockchain/go-headers-client/services/peer"
	"github.com/bsv-blockchain/go-headers-client/wire"
)

const (
	workerIdleSleep = time.Second

	// top-N pool for the rating-based candidate pick
	candidateTopN = 1

	bootstrapFetchTimeout = 15 * time.Second
)

// worker is one connection establishment loop. Workers idle while the
// verified target is met and race to replace sessions when it is not.
func (p *Pool) worker(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		if p.VerifiedCount() >= p.settings.P2P.TargetConnections {
			select {
			case <-ctx.Done():
				return
			case <-time.After(workerIdleSleep):
			}

			continue
		}

		addr := p.nextCandidate()
		if addr == "" {
			p.maybeBootstrap(ctx)

			select {
			case <-ctx.Done():
				return
			case <-time.After(workerIdleSleep):
			}

			continue
		}

		p.connectAndVerify(ctx, addr)
	}
}

// nextCandidate prefers an explicitly requested priority address, then
// falls back to a random pick from the top rated known addresses that are
// not already in a session.
func (p *Pool) nextCandidate() string {
	select {
	case addr := <-p.priority:
		return addr
	default:
	}

	return p.metrics.PickCandidate(candidateTopN, p.sessionAddrs())
}

// connectAndVerify runs the composite verification on one candidate:
// connect, ping, onValidChain, syncHeaders, and opportunistically getaddr
// when the address database is short. On success the session is installed
// as verified; any failure destroys it and the worker moves on.
func (p *Pool) connectAndVerify(ctx context.Context, addr string) {
	p.mu.Lock()

	if _, exists := p.pending[addr]; exists {
		p.mu.Unlock()
		return
	}

	if _, exists := p.verified[addr]; exists {
		p.mu.Unlock()
		return
	}

	session := peer.NewSession(p.logger, &peer.Config{
		Address:  addr,
		Settings: p.settings,
		Chain:    p.chain,
		Liveness: p.liveness,
		Events:   p.events,
	})

	p.pending[addr] = session
	p.mu.Unlock()

	err := p.verifySession(ctx, session)
	if err != nil {
		p.logger.Debugf("[PeerPool] Verification of %s failed: %v", addr, err)
		session.Dispose()

		// if we are offline this was not the peer's fault and there is no
		// point hammering the next candidate immediately
		if !p.liveness.IsOnline(ctx) {
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}

		return
	}

	p.metrics.AddLastConnectAndTest(addr)

	p.mu.Lock()
	delete(p.pending, addr)

	if ctx.Err() != nil || len(p.verified) >= p.settings.P2P.TargetConnections {
		p.mu.Unlock()

		// the target filled while this session was verifying; tear down
		// the excess rather than exceed it
		session.Dispose()

		return
	}

	p.verified[addr] = session
	count := len(p.verified)
	p.mu.Unlock()

	prometheusVerifiedPeers.Set(float64(count))

	p.logger.Infof("[PeerPool] Verified session %s installed (%d/%d)", addr, count, p.settings.P2P.TargetConnections)

	if count >= p.settings.P2P.TargetConnections {
		p.healthOnce.Do(func() {
			p.wg.Add(1)

			go func() {
				defer p.wg.Done()
				p.healthMonitor(p.runCtx)
			}()
		})
	}
}

func (p *Pool) verifySession(ctx context.Context, session *peer.Session) error {
	if err := session.Connect(ctx); err != nil {
		return err
	}

	if _, err := session.Ping(ctx); err != nil {
		return err
	}

	valid, err := session.OnValidChain(ctx)
	if err != nil {
		return err
	}

	if !valid {
		return errors.NewInvalidChainError("%s follows an invalid chain", session.Addr())
	}

	if err = session.SyncHeaders(ctx); err != nil {
		return err
	}

	if p.metrics.Count() < p.settings.P2P.MinKnownAddresses {
		addrs, err := session.GetAddr(ctx)
		if err != nil {
			return err
		}

		p.ingestNetAddresses(addrs)
	}

	return nil
}

func (p *Pool) ingestNetAddresses(addrs []*wire.NetAddress) {
	if len(addrs) == 0 {
		return
	}

	keys := make([]string, 0, len(addrs))
	for _, na := range addrs {
		keys = append(keys, canonicalAddr(na))
	}

	p.metrics.AddSeenBatch(keys)
	prometheusKnownAddresses.Set(float64(p.metrics.Count()))
}

// canonicalAddr converts a wire address record to the "ip:port" map key
// used throughout the pool.
func canonicalAddr(na *wire.NetAddress) string {
	return net.JoinHostPort(na.IP.String(), strconv.Itoa(int(na.Port)))
}

// bootstrapPeer is one entry of the HTTPS bootstrap list.
type bootstrapPeer struct {
	Addr     string `json:"addr"`
	Banscore int    `json:"banscore"`
}

// maybeBootstrap refills the address database when it is too small to feed
// the selector: first from the one-shot HTTPS list, then from configured
// and hard-coded seed addresses.
func (p *Pool) maybeBootstrap(ctx context.Context) {
	if p.VerifiedCount() >= p.settings.P2P.TargetConnections {
		return
	}

	if p.metrics.NonBlacklistedCount() >= p.settings.P2P.MinKnownAddresses {
		return
	}

	p.bootstrapOnce.Do(func() {
		if p.settings.P2P.BootstrapURL == "" {
			return
		}

		addrs, err := fetchBootstrapList(ctx, p.settings.P2P.BootstrapURL)
		if err != nil {
			p.logger.Warnf("[PeerPool] Bootstrap fetch failed, falling back to seeds: %v", err)
			return
		}

		p.logger.Infof("[PeerPool] Bootstrap list contributed %d addresses", len(addrs))
		p.metrics.AddSeenBatch(addrs)
	})

	seeds := make([]string, 0, len(p.settings.P2P.SeedNodes)+len(p.settings.ChainCfgParams.SeedAddresses))
	seeds = append(seeds, p.settings.P2P.SeedNodes...)
	seeds = append(seeds, p.settings.ChainCfgParams.SeedAddresses...)

	if len(seeds) > 0 {
		p.metrics.AddSeenBatch(seeds)
	}

	prometheusKnownAddresses.Set(float64(p.metrics.Count()))
}

// fetchBootstrapList does the one-shot HTTPS fetch of the JSON peer list.
// Peers carrying a ban score are dropped before they ever enter the
// database.
func fetchBootstrapList(ctx context.Context, url string) ([]string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, bootstrapFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewBootstrapError("building bootstrap request", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.NewBootstrapError("fetching bootstrap list", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewBootstrapError("bootstrap list returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, errors.NewBootstrapError("reading bootstrap list", err)
	}

	var entries []bootstrapPeer
	if err = json.Unmarshal(body, &entries); err != nil {
		return nil, errors.NewBootstrapError("parsing bootstrap list", err)
	}

	addrs := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.Banscore != 0 {
			continue
		}

		if _, _, err := net.SplitHostPort(entry.Addr); err != nil {
			continue
		}

		addrs = append(addrs, entry.Addr)
	}

	return addrs, nil
}
