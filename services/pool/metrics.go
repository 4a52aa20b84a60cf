package pool

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/bsv-blockchain/go-headers-client/stores/peers"
	"github.com/bsv-blockchain/go-headers-client/ulogger"
)

const (
	// deque capacity for pings and disconnect histories
	maxSamples = 10

	// a disconnect within this window of connect or ping evidence counts
	// against the after-connect history, otherwise before-connect
	afterConnectEvidenceWindow = 4 * 7 * 24 * time.Hour

	// ratings older than this are recomputed on demand
	ratingRebuildCooldown = 10 * time.Second
)

// PingSample is one ping measurement.
type PingSample struct {
	DurationMs  int64 `json:"durationMs"`
	TimestampMs int64 `json:"timestampMs"`
}

// PeerMetrics is the persisted per-address behavior record every rating is
// derived from. Timestamps are unix milliseconds; zero means never.
type PeerMetrics struct {
	Addr string `json:"addr"`

	LastSeenMs int64 `json:"lastSeenMs"`

	RecentPings []PingSample `json:"recentPings,omitempty"`

	DisconnectsBeforeConnectMs []int64 `json:"disconnectsBeforeConnectMs,omitempty"`
	DisconnectsAfterConnectMs  []int64 `json:"disconnectsAfterConnectMs,omitempty"`

	LastConnectMs        int64 `json:"lastConnectMs,omitempty"`
	LastConnectAndTestMs int64 `json:"lastConnectAndTestMs,omitempty"`
	LastDataReceivedMs   int64 `json:"lastDataReceivedMs,omitempty"`
	LastOutOfSyncMs      int64 `json:"lastOutOfSyncMs,omitempty"`
	LastInvalidChainMs   int64 `json:"lastInvalidChainMs,omitempty"`
}

type cachedRating struct {
	rating     float64
	computedAt time.Time
}

// metricsStore owns every PeerMetrics record, the rating cache over them
// and the persistence queue. It is the single writer for peer metrics.
type metricsStore struct {
	mu     sync.Mutex
	logger ulogger.Logger

	// store is nil in tests that do not exercise persistence
	store *peers.Store

	metrics map[string]*PeerMetrics
	ratings map[string]cachedRating

	blacklistThreshold float64
}

func newMetricsStore(logger ulogger.Logger, store *peers.Store) *metricsStore {
	ms := &metricsStore{
		logger:  logger,
		store:   store,
		metrics: make(map[string]*PeerMetrics),
		ratings: make(map[string]cachedRating),
	}

	ms.blacklistThreshold = blacklistThreshold(time.Now())

	return ms
}

// load reads every persisted record into memory.
func (ms *metricsStore) load(ctx context.Context) error {
	if ms.store == nil {
		return nil
	}

	count := 0

	err := ms.store.Iter(ctx, func(addr string, data []byte) error {
		m := &PeerMetrics{}
		if err := json.Unmarshal(data, m); err != nil {
			ms.logger.Warnf("[PeerMetrics] Dropping unreadable record for %s: %v", addr, err)
			return nil
		}

		m.Addr = addr
		ms.metrics[addr] = m
		count++

		return nil
	})
	if err != nil {
		return err
	}

	ms.logger.Infof("[PeerMetrics] Loaded %d peer records", count)

	return nil
}

// get returns the record for addr, creating it if needed. Callers must hold
// the lock.
func (ms *metricsStore) get(addr string) *PeerMetrics {
	m, exists := ms.metrics[addr]
	if !exists {
		m = &PeerMetrics{Addr: addr}
		ms.metrics[addr] = m
	}

	return m
}

// touch bumps last seen, invalidates the cached rating and queues a
// persistence write. Every metric update is also a "seen" signal. Callers
// must hold the lock.
func (ms *metricsStore) touch(m *PeerMetrics, now time.Time) {
	m.LastSeenMs = now.UnixMilli()

	delete(ms.ratings, m.Addr)

	if ms.store != nil {
		data, err := json.Marshal(m)
		if err == nil {
			ms.store.Put(m.Addr, data)
		}
	}
}

// AddPing records a ping round trip.
func (ms *metricsStore) AddPing(addr string, duration time.Duration) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	m := ms.get(addr)

	m.RecentPings = append(m.RecentPings, PingSample{
		DurationMs:  duration.Milliseconds(),
		TimestampMs: now.UnixMilli(),
	})
	if len(m.RecentPings) > maxSamples {
		m.RecentPings = m.RecentPings[len(m.RecentPings)-maxSamples:]
	}

	ms.touch(m, now)
}

// AddLastConnect records a completed handshake.
func (ms *metricsStore) AddLastConnect(addr string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	m := ms.get(addr)
	m.LastConnectMs = now.UnixMilli()

	ms.touch(m, now)
}

// AddLastConnectAndTest records a fully verified connection.
func (ms *metricsStore) AddLastConnectAndTest(addr string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	m := ms.get(addr)
	m.LastConnectAndTestMs = now.UnixMilli()

	ms.touch(m, now)
}

// AddDataReceived records useful data arriving from the peer.
func (ms *metricsStore) AddDataReceived(addr string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	m := ms.get(addr)
	m.LastDataReceivedMs = now.UnixMilli()

	ms.touch(m, now)
}

// AddOutOfSync records that the peer was significantly behind the chain.
func (ms *metricsStore) AddOutOfSync(addr string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	m := ms.get(addr)
	m.LastOutOfSyncMs = now.UnixMilli()

	ms.touch(m, now)
}

// AddInvalidChain records that the peer advertised an invalid chain.
func (ms *metricsStore) AddInvalidChain(addr string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	m := ms.get(addr)
	m.LastInvalidChainMs = now.UnixMilli()

	ms.touch(m, now)
}

// AddSeen records that the address was observed on the network.
func (ms *metricsStore) AddSeen(addr string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.touch(ms.get(addr), time.Now())
}

// AddSeenBatch records a batch of observed addresses.
func (ms *metricsStore) AddSeenBatch(addrs []string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()

	for _, addr := range addrs {
		ms.touch(ms.get(addr), now)
	}
}

// AddUnintentionalDisconnect records a drop and routes it to the
// after-connect history when it falls within four weeks of the most recent
// connect or ping evidence, otherwise to the before-connect history.
func (ms *metricsStore) AddUnintentionalDisconnect(addr string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	m := ms.get(addr)

	evidence := m.LastConnectMs
	for _, sample := range m.RecentPings {
		if sample.TimestampMs > evidence {
			evidence = sample.TimestampMs
		}
	}

	nowMs := now.UnixMilli()

	if evidence > 0 && nowMs-evidence < afterConnectEvidenceWindow.Milliseconds() {
		m.DisconnectsAfterConnectMs = append(m.DisconnectsAfterConnectMs, nowMs)
		if len(m.DisconnectsAfterConnectMs) > maxSamples {
			m.DisconnectsAfterConnectMs = m.DisconnectsAfterConnectMs[len(m.DisconnectsAfterConnectMs)-maxSamples:]
		}
	} else {
		m.DisconnectsBeforeConnectMs = append(m.DisconnectsBeforeConnectMs, nowMs)
		if len(m.DisconnectsBeforeConnectMs) > maxSamples {
			m.DisconnectsBeforeConnectMs = m.DisconnectsBeforeConnectMs[len(m.DisconnectsBeforeConnectMs)-maxSamples:]
		}
	}

	ms.touch(m, now)
}

// ratingFor returns the cached rating for addr, recomputing it when stale.
// Callers must hold the lock.
func (ms *metricsStore) ratingFor(addr string, now time.Time) float64 {
	cached, exists := ms.ratings[addr]
	if exists && now.Sub(cached.computedAt) < ratingRebuildCooldown {
		return cached.rating
	}

	m, exists := ms.metrics[addr]
	if !exists {
		return 0
	}

	rating := Rating(m, now)
	ms.ratings[addr] = cachedRating{rating: rating, computedAt: now}

	return rating
}

// Blacklisted reports whether the address rates strictly below the startup
// threshold.
func (ms *metricsStore) Blacklisted(addr string) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return ms.ratingFor(addr, time.Now()) < ms.blacklistThreshold
}

// Threshold returns the blacklist cutoff computed at startup.
func (ms *metricsStore) Threshold() float64 {
	return ms.blacklistThreshold
}

// Count returns the number of known addresses.
func (ms *metricsStore) Count() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return len(ms.metrics)
}

// NonBlacklistedCount returns how many known addresses are selectable.
func (ms *metricsStore) NonBlacklistedCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	count := 0

	for addr := range ms.metrics {
		if ms.ratingFor(addr, now) >= ms.blacklistThreshold {
			count++
		}
	}

	return count
}

// PickCandidate returns a random address from the topN non-blacklisted
// addresses by rating, excluding any in the exclude set. Empty when nothing
// is selectable.
func (ms *metricsStore) PickCandidate(topN int, exclude map[string]struct{}) string {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()

	type rated struct {
		addr   string
		rating float64
	}

	candidates := make([]rated, 0, len(ms.metrics))

	for addr := range ms.metrics {
		if _, excluded := exclude[addr]; excluded {
			continue
		}

		rating := ms.ratingFor(addr, now)
		if rating < ms.blacklistThreshold {
			continue
		}

		candidates = append(candidates, rated{addr: addr, rating: rating})
	}

	if len(candidates) == 0 {
		return ""
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].rating != candidates[j].rating {
			return candidates[i].rating > candidates[j].rating
		}

		// stable order when ratings tie
		return candidates[i].addr < candidates[j].addr
	})

	if topN < 1 {
		topN = 1
	}

	if topN > len(candidates) {
		topN = len(candidates)
	}

	return candidates[rand.Intn(topN)].addr
}

// EvictOldest removes addresses beyond max, oldest seen first, skipping
// addresses in the exclude set. Returns the number evicted.
func (ms *metricsStore) EvictOldest(max int, exclude map[string]struct{}) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if len(ms.metrics) <= max {
		return 0
	}

	type seen struct {
		addr   string
		seenMs int64
	}

	all := make([]seen, 0, len(ms.metrics))
	for addr, m := range ms.metrics {
		all = append(all, seen{addr: addr, seenMs: m.LastSeenMs})
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].seenMs < all[j].seenMs
	})

	evicted := 0
	surplus := len(ms.metrics) - max

	for _, entry := range all {
		if evicted >= surplus {
			break
		}

		if _, excluded := exclude[entry.addr]; excluded {
			continue
		}

		delete(ms.metrics, entry.addr)
		delete(ms.ratings, entry.addr)

		if ms.store != nil {
			ms.store.Delete(entry.addr)
		}

		evicted++
	}

	if evicted > 0 {
		ms.logger.Infof("[PeerMetrics] Evicted %d oldest-seen addresses (%d remain)", evicted, len(ms.metrics))
	}

	return evicted
}

// snapshot returns a copy of the record for addr, for tests and debugging.
func (ms *metricsStore) snapshot(addr string) (PeerMetrics, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	m, exists := ms.metrics[addr]
	if !exists {
		return PeerMetrics{}, false
	}

	return *m, true
}
