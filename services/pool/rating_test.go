package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(t time.Time) int64 {
	return t.UnixMilli()
}

func TestPingScore(t *testing.T) {
	now := time.Now()

	t.Run("empty history scores the default", func(t *testing.T) {
		assert.InDelta(t, 0.25, pingScore(&PeerMetrics{}, now), 1e-9)
	})

	t.Run("fast pings score high", func(t *testing.T) {
		m := &PeerMetrics{RecentPings: []PingSample{
			{DurationMs: 100, TimestampMs: ms(now.Add(-time.Hour))},
			{DurationMs: 120, TimestampMs: ms(now.Add(-30 * time.Minute))},
		}}

		assert.Greater(t, pingScore(m, now), 0.95)
	})

	t.Run("terrible pings hit the floor", func(t *testing.T) {
		m := &PeerMetrics{RecentPings: []PingSample{
			{DurationMs: 30000, TimestampMs: ms(now.Add(-time.Hour))},
		}}

		assert.InDelta(t, 0.1, pingScore(m, now), 1e-9)
	})

	t.Run("recent pings dominate old ones", func(t *testing.T) {
		m := &PeerMetrics{RecentPings: []PingSample{
			{DurationMs: 30000, TimestampMs: ms(now.Add(-60 * 24 * time.Hour))},
			{DurationMs: 100, TimestampMs: ms(now.Add(-time.Minute))},
		}}

		assert.Greater(t, pingScore(m, now), 0.9)
	})
}

func TestDisconnectAfterConnectScore(t *testing.T) {
	now := time.Now()

	t.Run("no events is perfect", func(t *testing.T) {
		assert.Equal(t, 1.0, disconnectAfterConnectScore(&PeerMetrics{}, now))
	})

	t.Run("clustered recent disconnects crash the score", func(t *testing.T) {
		m := &PeerMetrics{DisconnectsAfterConnectMs: []int64{
			ms(now.Add(-3 * time.Hour)),
			ms(now.Add(-2 * time.Hour)),
			ms(now.Add(-time.Hour)),
		}}

		assert.Less(t, disconnectAfterConnectScore(m, now), 0.01)
	})

	t.Run("a single old disconnect barely matters", func(t *testing.T) {
		m := &PeerMetrics{DisconnectsAfterConnectMs: []int64{
			ms(now.Add(-40 * 24 * time.Hour)),
		}}

		assert.Greater(t, disconnectAfterConnectScore(m, now), 0.9)
	})
}

func TestDisconnectBeforeConnectScore(t *testing.T) {
	now := time.Now()

	t.Run("recovers with age", func(t *testing.T) {
		recent := &PeerMetrics{DisconnectsBeforeConnectMs: []int64{ms(now.Add(-24 * time.Hour))}}
		old := &PeerMetrics{DisconnectsBeforeConnectMs: []int64{ms(now.Add(-50 * 24 * time.Hour))}}

		assert.Less(t, disconnectBeforeConnectScore(recent, now), 0.01)
		assert.Greater(t, disconnectBeforeConnectScore(old, now), 0.99)
	})

	t.Run("seen since the event earns a ten day head start", func(t *testing.T) {
		event := ms(now.Add(-15 * 24 * time.Hour))

		plain := &PeerMetrics{DisconnectsBeforeConnectMs: []int64{event}, LastSeenMs: event}
		seenSince := &PeerMetrics{DisconnectsBeforeConnectMs: []int64{event}, LastSeenMs: ms(now)}

		assert.Greater(t, disconnectBeforeConnectScore(seenSince, now), disconnectBeforeConnectScore(plain, now))
	})
}

func TestRatingAndThreshold(t *testing.T) {
	now := time.Now()
	threshold := blacklistThreshold(now)

	t.Run("threshold is sane", func(t *testing.T) {
		assert.Greater(t, threshold, 0.05)
		assert.Less(t, threshold, 0.35)
	})

	t.Run("a fresh address rates above the threshold", func(t *testing.T) {
		fresh := &PeerMetrics{LastSeenMs: ms(now)}
		assert.Greater(t, Rating(fresh, now), threshold)
	})

	t.Run("a healthy connected peer rates well above the threshold", func(t *testing.T) {
		healthy := &PeerMetrics{
			LastSeenMs: ms(now),
			RecentPings: []PingSample{
				{DurationMs: 90, TimestampMs: ms(now.Add(-time.Minute))},
				{DurationMs: 110, TimestampMs: ms(now.Add(-30 * time.Second))},
			},
			LastConnectMs:        ms(now.Add(-time.Minute)),
			LastConnectAndTestMs: ms(now.Add(-time.Minute)),
		}

		assert.Greater(t, Rating(healthy, now), 2*threshold)
	})

	t.Run("an out of sync peer drops below the threshold and recovers", func(t *testing.T) {
		m := &PeerMetrics{
			LastSeenMs:      ms(now),
			LastOutOfSyncMs: ms(now),
		}

		assert.Less(t, Rating(m, now), threshold)

		// a month later the event has decayed
		later := now.Add(30 * 24 * time.Hour)
		assert.Greater(t, Rating(m, later), threshold)
	})

	t.Run("an invalid chain peer stays blacklisted for months", func(t *testing.T) {
		m := &PeerMetrics{
			LastSeenMs:         ms(now),
			LastInvalidChainMs: ms(now),
		}

		assert.Less(t, Rating(m, now), threshold)
		assert.Less(t, Rating(m, now.Add(30*24*time.Hour)), threshold)
		assert.Greater(t, Rating(m, now.Add(200*24*time.Hour)), threshold)
	})
}

func TestRatingMonotonicWeights(t *testing.T) {
	// every subscore in (0,1] keeps the product in (0,1]
	now := time.Now()

	m := &PeerMetrics{
		LastSeenMs: ms(now),
		RecentPings: []PingSample{
			{DurationMs: 50, TimestampMs: ms(now)},
		},
		LastConnectMs: ms(now),
	}

	rating := Rating(m, now)
	require.Greater(t, rating, 0.0)
	require.LessOrEqual(t, rating, 1.0)
}
