package peer

import (
	"context"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"

	"github.com/bsv-blockchain/go-headers-client/errors"
)

const (
	// slowPeerBehindFactor decides when a peer is too far behind to be
	// worth chasing batch by batch during parallel initial sync.
	slowPeerBehindFactor = 4

	// tipQuiescence is how long the graph tip must sit still before a slow
	// peer's sync restarts from a fresh locator.
	tipQuiescence = 5 * time.Second

	tipPollInterval = 250 * time.Millisecond
)

// SyncHeaders repeatedly requests headers forward of the graph and links
// them in, until the peer has nothing more to give. Calls are serialized
// per session: a second caller waits for the first loop to finish.
func (s *Session) SyncHeaders(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.syncing.Store(true)
	defer s.syncing.Store(false)

	locator := s.chain.BlockLocator()
	slowGuardFired := false

	var (
		zeroHash    chainhash.Hash
		prevPeerTip string
	)

	for {
		if ctx.Err() != nil {
			return errors.NewContextCanceledError("sync with %s cancelled", s.addr)
		}

		headers, err := s.GetHeaders(ctx, locator, &zeroHash)
		if err != nil {
			return err
		}

		if len(headers) == 0 {
			return s.checkOutOfSync()
		}

		peerTip := headers[len(headers)-1].Hash()
		s.setPeerTipHash(peerTip.String())

		result := s.chain.AddHeaders(headers)

		if len(result.Invalidated) > 0 {
			s.emit(Event{Type: EventInvalidBlocks, Addr: s.addr, Invalidated: result.Invalidated})
			return errors.NewInvalidChainError("%s sent %d headers descending from an invalid block", s.addr, len(result.Invalidated))
		}

		if !s.chain.HaveHeader(peerTip) {
			// the batch did not connect to anything we know
			s.dispose(DisconnectAfterConnect)
			return errors.NewProtocolViolationError("%s sent non-contiguous headers", s.addr)
		}

		if len(result.Added) > 0 {
			tip := s.chain.Tip()
			s.emit(Event{Type: EventNewChainTip, Addr: s.addr, TipHeight: tip.Height, TipHash: tip.Hash.String()})
		}

		// Slow-peer guard: when several sessions sync in parallel, a peer
		// serving tiny batches far behind the shared tip would re-download
		// headers the fast peers already delivered. Wait for the tip to go
		// quiet once, then restart from a fresh locator.
		if !slowGuardFired && s.isSlowPeer(peerTip, len(headers)) {
			slowGuardFired = true

			s.logger.Debugf("[Session %s] Slow peer guard: waiting for tip to settle", s.addr)

			if err = s.waitForTipQuiescence(ctx); err != nil {
				return err
			}

			locator = s.chain.BlockLocator()
			prevPeerTip = ""

			s.setPeerTipHash("")

			continue
		}

		// a server that keeps returning the same batch against a
		// single-hash locator would loop forever
		if len(result.Added) == 0 && peerTip.String() == prevPeerTip && len(locator) == 1 {
			s.logger.Warnf("[Session %s] Peer keeps returning the same batch, stopping sync", s.addr)
			return nil
		}

		prevPeerTip = peerTip.String()
		locator = []*chainhash.Hash{peerTip}
	}
}

// isSlowPeer reports whether the peer's latest header sits on the longest
// chain but more than four batch-lengths behind its tip.
func (s *Session) isSlowPeer(peerTip *chainhash.Hash, batchLen int) bool {
	if !s.chain.OnLongestChain(peerTip) {
		return false
	}

	node, exists := s.chain.HeaderByHash(peerTip)
	if !exists {
		return false
	}

	return s.chain.Height() > node.Height+uint32(slowPeerBehindFactor*batchLen)
}

// waitForTipQuiescence blocks until the graph tip has not advanced for five
// continuous seconds.
func (s *Session) waitForTipQuiescence(ctx context.Context) error {
	lastTip := s.chain.Tip().Hash
	lastChange := time.Now()

	ticker := time.NewTicker(tipPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return errors.NewContextCanceledError("sync with %s cancelled", s.addr)
		case <-s.disposed:
			return errors.NewConnectionClosedError("session %s closed", s.addr)
		case <-ticker.C:
			tip := s.chain.Tip().Hash
			if tip != lastTip {
				lastTip = tip
				lastChange = time.Now()

				continue
			}

			if time.Since(lastChange) >= tipQuiescence {
				return nil
			}
		}
	}
}

// checkOutOfSync runs when the peer stops returning headers. If the peer's
// tip is neither where we started nor where the graph is now, and it lags
// the graph by at least the configured threshold, the peer is reported out
// of sync.
func (s *Session) checkOutOfSync() error {
	peerTipHex := s.PeerTipHash()
	if peerTipHex == "" || peerTipHex == s.startTipHash {
		return nil
	}

	graphTip := s.chain.Tip()
	if peerTipHex == graphTip.Hash.String() {
		return nil
	}

	peerTip, err := chainhash.NewHashFromStr(peerTipHex)
	if err != nil {
		return nil
	}

	node, exists := s.chain.HeaderByHash(peerTip)
	if !exists {
		return nil
	}

	if node.Height+s.settings.P2P.OutOfSyncThreshold > graphTip.Height {
		return nil
	}

	s.emit(Event{Type: EventOutOfSync, Addr: s.addr})

	return errors.NewOutOfSyncError("%s is %d blocks behind the longest chain", s.addr, graphTip.Height-node.Height)
}

// OnValidChain probes whether the peer follows any known invalid block by
// requesting headers forward of each invalid hash. A peer that can extend
// an invalid block is on the wrong chain.
func (s *Session) OnValidChain(ctx context.Context) (bool, error) {
	var zeroHash chainhash.Hash

	for _, invalidHash := range s.chain.InvalidHashes() {
		headers, err := s.GetHeaders(ctx, []*chainhash.Hash{invalidHash}, &zeroHash)
		if err != nil {
			return false, err
		}

		if len(headers) > 0 && headers[0].HashPrevBlock.IsEqual(invalidHash) {
			s.emit(Event{Type: EventInvalidBlocks, Addr: s.addr, Invalidated: headers[:1]})

			return false, errors.NewInvalidChainError("%s extends invalid block %s", s.addr, invalidHash)
		}
	}

	return true, nil
}
