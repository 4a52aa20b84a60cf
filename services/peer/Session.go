// Package peer drives a single TCP connection to one untrusted peer: the
// version/verack handshake, message framing, correlated request/response
// slots, keepalive pings and the header sync loop. Sessions report
// everything of interest to their pool through a typed event channel.
package peer

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bsv-blockchain/go-headers-client/errors"
	"github.com/bsv-blockchain/go-headers-client/settings"
	"github.com/bsv-blockchain/go-headers-client/ulogger"
	"github.com/bsv-blockchain/go-headers-client/util/liveness"
	"github.com/bsv-blockchain/go-headers-client/wire"
)

// State is the lifecycle phase of a session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateHandshakePending
	StateReady
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshakePending:
		return "handshake_pending"
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// maxPingSilence is how long a session may go without pinging before the
// keepalive skip rule no longer applies.
const maxPingSilence = 10 * time.Minute

// Config carries everything a session needs from its owner.
type Config struct {
	Address  string
	Settings *settings.Settings
	Chain    HeaderChain
	Liveness *liveness.Monitor
	Events   chan<- Event
}

// Session is the per-peer protocol engine. All inbound messages are
// dispatched in arrival order by the single read loop goroutine.
type Session struct {
	logger   ulogger.Logger
	settings *settings.Settings
	chain    HeaderChain
	liveness *liveness.Monitor
	events   chan<- Event

	addr string
	conn net.Conn

	state atomic.Int32

	mu              sync.Mutex
	handshakeWaiter *waiter
	pingWaiters     map[uint64]*waiter
	getHeadersSlot  *waiter
	getAddrSlot     *waiter

	versionReceived bool
	verackReceived  bool
	verackSent      bool

	// startTipHash is the graph tip at construction; peerTipHash is the
	// last header hash this peer returned. Both are display hex.
	startTipHash string
	peerTipHash  string

	lastPing time.Time

	// syncMu serializes SyncHeaders; syncing lets the pool check whether a
	// sync loop is running before pruning the graph.
	syncMu  sync.Mutex
	syncing atomic.Bool

	writeMu sync.Mutex

	disposeOnce sync.Once
	disposed    chan struct{}
	readDone    chan struct{}
}

// NewSession creates a session in the Idle state.
func NewSession(logger ulogger.Logger, cfg *Config) *Session {
	s := &Session{
		logger:       logger,
		settings:     cfg.Settings,
		chain:        cfg.Chain,
		liveness:     cfg.Liveness,
		events:       cfg.Events,
		addr:         cfg.Address,
		pingWaiters:  make(map[uint64]*waiter),
		startTipHash: cfg.Chain.Tip().Hash.String(),
		disposed:     make(chan struct{}),
		readDone:     make(chan struct{}),
	}

	s.state.Store(int32(StateIdle))

	return s
}

// Addr returns the session's peer address.
func (s *Session) Addr() string {
	return s.addr
}

// State returns the session's current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Syncing reports whether the header sync loop is currently running.
func (s *Session) Syncing() bool {
	return s.syncing.Load()
}

// PeerTipHash returns the last header hash received from this peer.
func (s *Session) PeerTipHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.peerTipHash
}

func (s *Session) setPeerTipHash(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.peerTipHash = hash
}

// Connect dials the peer and runs the handshake, after which the session is
// either Ready or Disposed. Only a call on an Idle session dials; a call in
// any other state fails at once with a processing error and does not wait
// for a handshake already in progress.
func (s *Session) Connect(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return errors.NewProcessingError("session %s is not idle", s.addr)
	}

	dialer := &net.Dialer{Timeout: s.settings.P2P.ConnectTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		if ctx.Err() != nil {
			s.dispose(DisconnectIntentional)
			return errors.NewContextCanceledError("connect to %s cancelled", s.addr, err)
		}

		s.dispose(DisconnectBeforeConnect)

		return errors.NewConnectionClosedError("failed to connect to %s", s.addr, err)
	}

	s.conn = conn
	s.state.Store(int32(StateHandshakePending))

	// the waiter must exist before the read loop can complete the handshake
	s.mu.Lock()
	w := s.handshakeWaiter
	if w == nil {
		w = newWaiter()
		s.handshakeWaiter = w
	}
	s.mu.Unlock()

	go s.readLoop()

	version := wire.NewMsgVersion(randomNonce(), s.settings.ChainCfgParams.UserAgent, int32(s.chain.Height()))

	if err = s.writeMessage(version.Command(), version.Encode(time.Now().Unix())); err != nil {
		s.dispose(DisconnectBeforeConnect)
		return err
	}

	select {
	case <-w.done:
		if w.result.err != nil {
			return w.result.err
		}

		s.logger.Debugf("[Session %s] Handshake complete", s.addr)

		return nil
	case <-time.After(s.settings.P2P.RequestTimeout):
		s.dispose(DisconnectBeforeConnect)
		return errors.NewTimeoutError("handshake with %s timed out", s.addr)
	case <-ctx.Done():
		cancelErr := errors.NewContextCanceledError("handshake with %s cancelled", s.addr)

		s.mu.Lock()
		if s.handshakeWaiter != nil {
			s.handshakeWaiter.reject(cancelErr)
			s.handshakeWaiter = nil
		}
		s.mu.Unlock()

		return cancelErr
	case <-s.disposed:
		return errors.NewConnectionClosedError("session %s closed during handshake", s.addr)
	}
}

// Dispose tears the session down intentionally. It is safe to call from any
// goroutine and more than once.
func (s *Session) Dispose() {
	s.dispose(DisconnectIntentional)
}

// Disposed returns a channel closed when the session is torn down.
func (s *Session) Disposed() <-chan struct{} {
	return s.disposed
}

func (s *Session) dispose(reason DisconnectReason) {
	s.disposeOnce.Do(func() {
		s.state.Store(int32(StateDisposed))
		close(s.disposed)

		if s.conn != nil {
			_ = s.conn.Close()
		}

		// flush every pending correlator with a connection closed error
		s.mu.Lock()

		closedErr := errors.NewConnectionClosedError("session %s closed", s.addr)

		if s.handshakeWaiter != nil {
			s.handshakeWaiter.reject(closedErr)
			s.handshakeWaiter = nil
		}

		for nonce, w := range s.pingWaiters {
			w.reject(closedErr)
			delete(s.pingWaiters, nonce)
		}

		if s.getHeadersSlot != nil {
			s.getHeadersSlot.reject(closedErr)
			s.getHeadersSlot = nil
		}

		if s.getAddrSlot != nil {
			s.getAddrSlot.reject(closedErr)
			s.getAddrSlot = nil
		}

		s.mu.Unlock()

		s.logger.Infof("[Session %s] Disposed (%s)", s.addr, reason)

		s.emit(Event{Type: EventDisconnected, Addr: s.addr, Reason: reason})
	})
}

// disconnectReason classifies an unintentional transport failure by the
// session's handshake progress.
func (s *Session) disconnectReason() DisconnectReason {
	if s.State() == StateReady {
		return DisconnectAfterConnect
	}

	return DisconnectBeforeConnect
}

// emit delivers an event to the pool. The disposed guard keeps a session
// from blocking forever if the pool is gone.
func (s *Session) emit(event Event) {
	if event.Type == EventDisconnected {
		// the disconnect event must always get through; the pool drains
		// the channel until every session has reported it
		s.events <- event
		return
	}

	select {
	case s.events <- event:
	case <-s.disposed:
	}
}

func (s *Session) writeMessage(command string, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.State() == StateDisposed {
		return errors.NewConnectionClosedError("session %s closed", s.addr)
	}

	framed := wire.Frame(command, payload, s.settings.ChainCfgParams.Net)

	if _, err := s.conn.Write(framed); err != nil {
		return errors.NewConnectionClosedError("write %s to %s failed", command, s.addr, err)
	}

	return nil
}

// readLoop reads, deframes and dispatches inbound messages until the
// transport fails or the session is disposed.
func (s *Session) readLoop() {
	defer close(s.readDone)

	buf := make([]byte, 64*1024)

	var remaining []byte

	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.liveness.MarkOnline()

			remaining = append(remaining, buf[:n]...)

			result := wire.Deframe(remaining, s.settings.ChainCfgParams.Net)

			for _, frameErr := range result.Errors {
				s.handleFrameError(frameErr)
			}

			for _, msg := range result.Messages {
				s.handleMessage(msg)
			}

			remaining = append(remaining[:0:0], result.Remaining...)
		}

		if err != nil {
			if s.State() != StateDisposed {
				s.logger.Debugf("[Session %s] Transport closed: %v", s.addr, err)
				s.dispose(s.disconnectReason())
			}

			return
		}
	}
}

// handleFrameError logs a corrupt frame. The session keeps running, but a
// correlated request waiting on that command is rejected.
func (s *Session) handleFrameError(frameErr wire.DeframeError) {
	s.logger.Warnf("[Session %s] Dropped %s frame: %s", s.addr, frameErr.Command, frameErr.Reason)

	malformed := errors.NewWireBadChecksumError("%s frame from %s: %s", frameErr.Command, s.addr, frameErr.Reason)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch frameErr.Command {
	case wire.CmdHeaders:
		if s.getHeadersSlot != nil {
			s.getHeadersSlot.reject(malformed)
			s.getHeadersSlot = nil
		}
	case wire.CmdAddr:
		if s.getAddrSlot != nil {
			s.getAddrSlot.reject(malformed)
			s.getAddrSlot = nil
		}
	}
}

// handleMessage dispatches one inbound message. Called only from the read
// loop, so messages are handled strictly in arrival order.
func (s *Session) handleMessage(msg wire.Message) {
	switch msg.Command {
	case wire.CmdVersion:
		s.handleVersion(msg.Payload)
	case wire.CmdVerAck:
		s.handleVerAck()
	case wire.CmdPing:
		s.handlePing(msg.Payload)
	case wire.CmdPong:
		s.handlePong(msg.Payload)
	case wire.CmdHeaders:
		s.handleHeaders(msg.Payload)
	case wire.CmdAddr:
		s.handleAddr(msg.Payload)
	case wire.CmdInv:
		s.handleInv(msg.Payload)
	default:
		// anything else is ignored
	}
}

func (s *Session) handleVersion(payload []byte) {
	if s.State() != StateHandshakePending {
		return
	}

	remote, err := wire.DecodeVersion(payload)
	if err != nil {
		s.logger.Warnf("[Session %s] Bad version message: %v", s.addr, err)
		return
	}

	s.mu.Lock()
	s.versionReceived = true
	sendVerack := !s.verackSent
	s.verackSent = true
	s.mu.Unlock()

	s.logger.Debugf("[Session %s] Peer version %d agent %s height %d", s.addr, remote.ProtocolVersion, remote.UserAgent, remote.LastBlock)

	if sendVerack {
		if err = s.writeMessage(wire.CmdVerAck, nil); err != nil {
			s.logger.Warnf("[Session %s] Failed to send verack: %v", s.addr, err)
			return
		}
	}

	s.maybeCompleteHandshake()
}

func (s *Session) handleVerAck() {
	if s.State() != StateHandshakePending {
		return
	}

	s.mu.Lock()
	s.verackReceived = true
	s.mu.Unlock()

	s.maybeCompleteHandshake()
}

func (s *Session) maybeCompleteHandshake() {
	s.mu.Lock()

	if !s.versionReceived || !s.verackReceived || s.State() != StateHandshakePending {
		s.mu.Unlock()
		return
	}

	s.state.Store(int32(StateReady))

	w := s.handshakeWaiter
	s.handshakeWaiter = nil

	s.mu.Unlock()

	if w != nil {
		w.resolve(waitResult{})
	}

	go s.pingLoop()

	s.emit(Event{Type: EventConnected, Addr: s.addr})
}

func (s *Session) handlePing(payload []byte) {
	ping, err := wire.DecodePing(payload)
	if err != nil {
		s.logger.Warnf("[Session %s] Bad ping message: %v", s.addr, err)
		return
	}

	// echo the nonce straight back
	if err = s.writeMessage(wire.CmdPong, wire.NewMsgPong(ping.Nonce).Encode()); err != nil {
		s.logger.Debugf("[Session %s] Failed to send pong: %v", s.addr, err)
	}
}

func (s *Session) handlePong(payload []byte) {
	pong, err := wire.DecodePong(payload)
	if err != nil {
		s.logger.Warnf("[Session %s] Bad pong message: %v", s.addr, err)
		return
	}

	s.mu.Lock()
	w, exists := s.pingWaiters[pong.Nonce]
	if exists {
		delete(s.pingWaiters, pong.Nonce)
	}
	s.mu.Unlock()

	if !exists {
		return
	}

	duration := time.Since(w.sentAt)
	w.resolve(waitResult{duration: duration})

	s.emit(Event{Type: EventPong, Addr: s.addr, PingDuration: duration, PingNonce: pong.Nonce})
}

func (s *Session) handleHeaders(payload []byte) {
	s.mu.Lock()
	w := s.getHeadersSlot
	s.getHeadersSlot = nil
	s.mu.Unlock()

	if w == nil {
		// headers without a correlated getheaders request
		s.logger.Warnf("[Session %s] Unsolicited headers message", s.addr)
		s.dispose(DisconnectAfterConnect)

		return
	}

	msg, err := wire.DecodeHeaders(payload)
	if err != nil {
		w.reject(err)
		return
	}

	w.resolve(waitResult{headers: msg.Headers})
}

func (s *Session) handleAddr(payload []byte) {
	msg, err := wire.DecodeAddr(payload)
	if err != nil {
		s.logger.Warnf("[Session %s] Bad addr message: %v", s.addr, err)

		s.mu.Lock()
		if s.getAddrSlot != nil {
			s.getAddrSlot.reject(err)
			s.getAddrSlot = nil
		}
		s.mu.Unlock()

		return
	}

	s.mu.Lock()
	w := s.getAddrSlot
	s.getAddrSlot = nil
	s.mu.Unlock()

	if w != nil {
		w.resolve(waitResult{addrs: msg.AddrList})
		return
	}

	s.emit(Event{Type: EventAddr, Addr: s.addr, Addresses: msg.AddrList})
}

func (s *Session) handleInv(payload []byte) {
	msg, err := wire.DecodeInv(payload)
	if err != nil {
		s.logger.Warnf("[Session %s] Bad inv message: %v", s.addr, err)
		return
	}

	event := Event{Type: EventBlockHashes, Addr: s.addr}

	for _, iv := range msg.InvList {
		if iv.Type == wire.InvTypeBlock {
			hash := iv.Hash
			event.BlockHashes = append(event.BlockHashes, &hash)
		}
	}

	if len(event.BlockHashes) > 0 {
		s.emit(event)
	}
}

// pingLoop keeps the connection alive. The tick interval equals the
// liveness monitor's poll interval, so active sessions double as liveness
// evidence. A tick is skipped when the process has seen inbound traffic
// within the last second and this session pinged within the last ten
// minutes.
func (s *Session) pingLoop() {
	ticker := time.NewTicker(s.liveness.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-s.disposed:
			return
		case <-ticker.C:
			s.mu.Lock()
			lastPing := s.lastPing
			s.mu.Unlock()

			if time.Since(s.liveness.LastOnline()) < time.Second && time.Since(lastPing) < maxPingSilence {
				continue
			}

			// Ping applies the request timeout itself and disconnects on
			// expiry, so no context deadline here
			if _, err := s.Ping(context.Background()); err != nil {
				s.logger.Debugf("[Session %s] Keepalive ping failed: %v", s.addr, err)
			}
		}
	}
}

func randomNonce() uint64 {
	var b [8]byte

	_, _ = crand.Read(b[:])

	return binary.LittleEndian.Uint64(b[:])
}
