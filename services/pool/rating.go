package pool

import (
	"math"
	"time"
)

// The rating is a weighted geometric product of six subscores in (0, 1],
// each derived from one aspect of a peer's observed behavior. Weights are
// exponents, so a low score on a heavily weighted aspect drags the product
// down hard while a single good aspect cannot rescue a bad peer.
const (
	weightPing             = 0.60
	weightDisconnectBefore = 0.30
	weightDisconnectAfter  = 0.30
	weightOutOfSync        = 0.38
	weightInvalidChain     = 0.50
	weightConnectRecency   = 0.20

	subscoreEpsilon = 1e-6

	msPerDay  = float64(24 * time.Hour / time.Millisecond)
	msPerWeek = 7 * msPerDay
	msPer4h   = float64(4 * time.Hour / time.Millisecond)
)

// sigmoid maps x (days) to (0,1), crossing 0.5 at the midpoint.
func sigmoid(x, steepness, midpoint float64) float64 {
	return 1 / (1 + math.Exp(-steepness*(x-midpoint)))
}

// pingScore is a recency-weighted average of the last pings, each mapped
// through an inverted sigmoid around two seconds and floored at 0.1. An
// empty history scores the 0.25 default.
func pingScore(m *PeerMetrics, now time.Time) float64 {
	if len(m.RecentPings) == 0 {
		return 0.25
	}

	nowMs := float64(now.UnixMilli())

	var num, den float64

	for _, sample := range m.RecentPings {
		score := 1 / (1 + math.Exp(0.0022*(float64(sample.DurationMs)-2000)))
		if score < 0.1 {
			score = 0.1
		}

		weight := math.Exp(-(nowMs - float64(sample.TimestampMs)) / msPerWeek)

		num += score * weight
		den += weight
	}

	if den == 0 {
		return 0.25
	}

	return num / den
}

// disconnectBeforeConnectScore recovers with age: a sigmoid over days since
// the most recent failed connection attempt. When the peer has been seen on
// the network after the event (through other peers), ten days are added to
// the effective age since the peer is likely reputable.
func disconnectBeforeConnectScore(m *PeerMetrics, now time.Time) float64 {
	if len(m.DisconnectsBeforeConnectMs) == 0 {
		return 1
	}

	latest := m.DisconnectsBeforeConnectMs[len(m.DisconnectsBeforeConnectMs)-1]

	ageDays := (float64(now.UnixMilli()) - float64(latest)) / msPerDay

	if m.LastSeenMs > latest {
		ageDays += 10
	}

	return sigmoid(ageDays, 0.4, 22)
}

// disconnectAfterConnectScore punishes clusters of recent drops. Each event
// gets a recency factor and an amplification factor summing how many other
// events sit within a few hours of it; the worst event drives the score.
func disconnectAfterConnectScore(m *PeerMetrics, now time.Time) float64 {
	if len(m.DisconnectsAfterConnectMs) == 0 {
		return 1
	}

	nowMs := float64(now.UnixMilli())

	var worst float64

	for _, ti := range m.DisconnectsAfterConnectMs {
		recency := math.Exp(-(nowMs - float64(ti)) / msPerWeek)

		var amplification float64
		for _, tj := range m.DisconnectsAfterConnectMs {
			amplification += math.Exp(-math.Abs(float64(ti)-float64(tj)) / msPer4h)
		}

		if v := recency * amplification; v > worst {
			worst = v
		}
	}

	return 1 / (1 + 0.5*math.Pow(2.7*worst, 5))
}

// outOfSyncScore recovers over a few days.
func outOfSyncScore(m *PeerMetrics, now time.Time) float64 {
	if m.LastOutOfSyncMs == 0 {
		return 1
	}

	ageDays := (float64(now.UnixMilli()) - float64(m.LastOutOfSyncMs)) / msPerDay

	return sigmoid(ageDays, 0.98, 3)
}

// invalidChainScore recovers only over months: following the wrong chain is
// the strongest signal of a hostile or misconfigured peer.
func invalidChainScore(m *PeerMetrics, now time.Time) float64 {
	if m.LastInvalidChainMs == 0 {
		return 1
	}

	ageDays := (float64(now.UnixMilli()) - float64(m.LastInvalidChainMs)) / msPerDay

	return sigmoid(ageDays, 0.049, 70)
}

// connectRecencyScore mildly prefers peers connected recently, rescaled
// into [0.8, 1] so it can only nudge the rating. Never-connected peers get
// a neutral 0.5 before rescaling is skipped.
func connectRecencyScore(m *PeerMetrics, now time.Time) float64 {
	latest := m.LastConnectMs
	if m.LastConnectAndTestMs > latest {
		latest = m.LastConnectAndTestMs
	}

	if m.LastDataReceivedMs > latest {
		latest = m.LastDataReceivedMs
	}

	if latest == 0 {
		return 0.5
	}

	ageDays := (float64(now.UnixMilli()) - float64(latest)) / msPerDay

	// recent is better: invert the sigmoid
	s := 1 - sigmoid(ageDays, 0.25, 30)

	return 0.8 + 0.2*s
}

// Rating combines the six subscores into the weighted geometric product
// used for peer selection and blacklisting.
func Rating(m *PeerMetrics, now time.Time) float64 {
	product := 1.0

	for _, part := range []struct {
		score  float64
		weight float64
	}{
		{pingScore(m, now), weightPing},
		{disconnectBeforeConnectScore(m, now), weightDisconnectBefore},
		{disconnectAfterConnectScore(m, now), weightDisconnectAfter},
		{outOfSyncScore(m, now), weightOutOfSync},
		{invalidChainScore(m, now), weightInvalidChain},
		{connectRecencyScore(m, now), weightConnectRecency},
	} {
		score := part.score
		if score < subscoreEpsilon {
			score = subscoreEpsilon
		} else if score > 1 {
			score = 1
		}

		product *= math.Pow(score, part.weight)
	}

	return product
}

// blacklistThreshold evaluates the rating on five canonical borderline
// profiles and returns the maximum. Deriving the cutoff from the rating
// function itself means retuning any subscore automatically re-centers the
// decision boundary.
func blacklistThreshold(now time.Time) float64 {
	nowMs := now.UnixMilli()

	goodPings := []PingSample{
		{DurationMs: 120, TimestampMs: nowMs - 2*int64(time.Hour/time.Millisecond)},
		{DurationMs: 150, TimestampMs: nowMs - int64(time.Hour/time.Millisecond)},
		{DurationMs: 110, TimestampMs: nowMs - int64(30*time.Minute/time.Millisecond)},
	}

	profiles := []*PeerMetrics{
		// disconnected three times after connecting in the last 24 hours,
		// with a good ping
		{
			RecentPings: goodPings,
			DisconnectsAfterConnectMs: []int64{
				nowMs - 20*int64(time.Hour/time.Millisecond),
				nowMs - 10*int64(time.Hour/time.Millisecond),
				nowMs - 2*int64(time.Hour/time.Millisecond),
			},
			LastConnectMs: nowMs - 2*int64(time.Hour/time.Millisecond),
			LastSeenMs:    nowMs,
		},
		// out of sync two days ago, nothing else known
		{
			LastOutOfSyncMs: nowMs - 2*int64(24*time.Hour/time.Millisecond),
			LastSeenMs:      nowMs,
		},
		// invalid chain detected 60 days ago, nothing else known
		{
			LastInvalidChainMs: nowMs - 60*int64(24*time.Hour/time.Millisecond),
			LastSeenMs:         nowMs,
		},
		// refused the connection yesterday and not seen since
		{
			DisconnectsBeforeConnectMs: []int64{nowMs - int64(24*time.Hour/time.Millisecond)},
			LastSeenMs:                 nowMs - int64(24*time.Hour/time.Millisecond),
		},
		// reachable but unusably slow
		{
			RecentPings: []PingSample{
				{DurationMs: 10000, TimestampMs: nowMs - int64(time.Hour/time.Millisecond)},
				{DurationMs: 12000, TimestampMs: nowMs - int64(30*time.Minute/time.Millisecond)},
				{DurationMs: 11000, TimestampMs: nowMs - int64(10*time.Minute/time.Millisecond)},
			},
			LastSeenMs: nowMs,
		},
	}

	var threshold float64

	for _, profile := range profiles {
		if rating := Rating(profile, now); rating > threshold {
			threshold = rating
		}
	}

	return threshold
}
