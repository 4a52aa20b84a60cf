package peer

import (
	"context"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"

	"github.com/bsv-blockchain/go-headers-client/errors"
	"github.com/bsv-blockchain/go-headers-client/model"
	"github.com/bsv-blockchain/go-headers-client/wire"
)

// Ping sends a ping and waits for the matching pong, returning the measured
// round trip. Pings are nonce-keyed, so any number may be in flight at once.
// A timeout disconnects the session; a context cancellation only abandons
// the request.
func (s *Session) Ping(ctx context.Context) (time.Duration, error) {
	if s.State() != StateReady {
		return 0, errors.NewConnectionClosedError("session %s is not ready", s.addr)
	}

	nonce := randomNonce()
	w := newWaiter()

	s.mu.Lock()
	s.pingWaiters[nonce] = w
	s.lastPing = time.Now()
	s.mu.Unlock()

	removeWaiter := func() {
		s.mu.Lock()
		delete(s.pingWaiters, nonce)
		s.mu.Unlock()
	}

	if err := s.writeMessage(wire.CmdPing, wire.NewMsgPing(nonce).Encode()); err != nil {
		removeWaiter()
		return 0, err
	}

	select {
	case <-w.done:
		return w.result.duration, w.result.err
	case <-time.After(s.settings.P2P.RequestTimeout):
		removeWaiter()
		s.dispose(DisconnectAfterConnect)

		return 0, errors.NewTimeoutError("ping to %s timed out", s.addr)
	case <-ctx.Done():
		removeWaiter()
		return 0, errors.NewContextCanceledError("ping to %s cancelled", s.addr)
	case <-s.disposed:
		return 0, errors.NewConnectionClosedError("session %s closed", s.addr)
	}
}

// GetHeaders requests headers forward of the locator. Exactly one request
// may be in flight; a concurrent duplicate fails immediately. A timeout
// disconnects the session; cancellation only removes the correlator.
func (s *Session) GetHeaders(ctx context.Context, locator []*chainhash.Hash, stop *chainhash.Hash) ([]*model.BlockHeader, error) {
	if s.State() != StateReady {
		return nil, errors.NewConnectionClosedError("session %s is not ready", s.addr)
	}

	w := newWaiter()

	s.mu.Lock()
	if s.getHeadersSlot != nil {
		s.mu.Unlock()
		return nil, errors.NewRequestInFlightError("getheaders to %s already in flight", s.addr)
	}

	s.getHeadersSlot = w
	s.mu.Unlock()

	removeSlot := func() {
		s.mu.Lock()
		if s.getHeadersSlot == w {
			s.getHeadersSlot = nil
		}
		s.mu.Unlock()
	}

	msg := wire.NewMsgGetHeaders()
	msg.ProtocolVersion = s.settings.ChainCfgParams.ProtocolVersion

	for _, hash := range locator {
		if err := msg.AddBlockLocatorHash(hash); err != nil {
			removeSlot()
			return nil, err
		}
	}

	if stop != nil {
		msg.HashStop = *stop
	}

	if err := s.writeMessage(msg.Command(), msg.Encode()); err != nil {
		removeSlot()
		return nil, err
	}

	select {
	case <-w.done:
		return w.result.headers, w.result.err
	case <-time.After(s.settings.P2P.RequestTimeout):
		removeSlot()
		s.dispose(DisconnectAfterConnect)

		return nil, errors.NewTimeoutError("getheaders to %s timed out", s.addr)
	case <-ctx.Done():
		w.reject(errors.NewContextCanceledError("getheaders to %s cancelled", s.addr))
		removeSlot()

		return nil, errors.NewContextCanceledError("getheaders to %s cancelled", s.addr)
	case <-s.disposed:
		return nil, errors.NewConnectionClosedError("session %s closed", s.addr)
	}
}

// GetAddr asks the peer for known addresses. Concurrent calls coalesce onto
// the same in-flight request. The default timeout is far longer than other
// requests because many implementations trickle addr replies.
func (s *Session) GetAddr(ctx context.Context) ([]*wire.NetAddress, error) {
	if s.State() != StateReady {
		return nil, errors.NewConnectionClosedError("session %s is not ready", s.addr)
	}

	s.mu.Lock()

	w := s.getAddrSlot
	coalesced := w != nil

	if !coalesced {
		w = newWaiter()
		s.getAddrSlot = w
	}

	s.mu.Unlock()

	if !coalesced {
		if err := s.writeMessage(wire.CmdGetAddr, nil); err != nil {
			s.mu.Lock()
			if s.getAddrSlot == w {
				s.getAddrSlot = nil
			}
			s.mu.Unlock()

			return nil, err
		}
	}

	removeSlot := func() {
		s.mu.Lock()
		if s.getAddrSlot == w {
			s.getAddrSlot = nil
		}
		s.mu.Unlock()
	}

	select {
	case <-w.done:
		return w.result.addrs, w.result.err
	case <-time.After(s.settings.P2P.GetAddrTimeout):
		removeSlot()
		s.dispose(DisconnectAfterConnect)

		return nil, errors.NewTimeoutError("getaddr to %s timed out", s.addr)
	case <-ctx.Done():
		cancelErr := errors.NewContextCanceledError("getaddr to %s cancelled", s.addr)

		w.reject(cancelErr)
		removeSlot()

		return nil, cancelErr
	case <-s.disposed:
		return nil, errors.NewConnectionClosedError("session %s closed", s.addr)
	}
}
