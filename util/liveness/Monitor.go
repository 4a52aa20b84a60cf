// Package liveness distinguishes "the peer dropped us" from "we are
// offline". It keeps a process-wide last-known-online time, fed both by
// periodic probes of well-known URLs and by inbound peer traffic.
package liveness

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bsv-blockchain/go-headers-client/ulogger"
)

var defaultProbeURLs = []string{
	"https://www.google.com/generate_204",
	"https://www.cloudflare.com",
	"https://1.1.1.1",
}

const probeTimeout = 3 * time.Second

type Monitor struct {
	logger   ulogger.Logger
	interval time.Duration
	urls     []string

	httpClient *http.Client

	mu         sync.RWMutex
	lastOnline time.Time

	wg sync.WaitGroup
}

func NewMonitor(logger ulogger.Logger, interval time.Duration) *Monitor {
	return &Monitor{
		logger:   logger,
		interval: interval,
		urls:     defaultProbeURLs,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
		},
	}
}

// Interval returns the monitor's poll interval. Sessions use it as their
// keepalive ping interval so active sessions double as liveness evidence.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Start begins probing in the background until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.Probe(ctx)

		for {
			select {
			case <-ctx.Done():
				m.logger.Infof("[Liveness] Stopping monitor")
				return
			case <-ticker.C:
				// inbound peer traffic already proves we are online; only
				// probe when nothing has been heard for a full interval
				if time.Since(m.LastOnline()) < m.interval {
					continue
				}

				m.Probe(ctx)
			}
		}
	}()
}

// Wait blocks until the background prober has exited.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Probe checks the probe URLs, one at a time with a per-URL timeout, and
// returns whether any responded.
func (m *Monitor) Probe(ctx context.Context) bool {
	for _, url := range m.urls {
		if m.probeURL(ctx, url) {
			m.MarkOnline()
			return true
		}

		if ctx.Err() != nil {
			return false
		}
	}

	m.logger.Warnf("[Liveness] No probe URL reachable, assuming offline")

	return false
}

func (m *Monitor) probeURL(ctx context.Context, url string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false
	}

	defer resp.Body.Close()

	return true
}

// MarkOnline records evidence of a working internet connection. Sessions
// call this on every inbound message.
func (m *Monitor) MarkOnline() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastOnline = time.Now()
}

// LastOnline returns the last time the process knew it was online.
func (m *Monitor) LastOnline() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.lastOnline
}

// IsOnline reports whether the process has seen evidence of connectivity
// within the last interval, probing if it has not.
func (m *Monitor) IsOnline(ctx context.Context) bool {
	if time.Since(m.LastOnline()) < m.interval {
		return true
	}

	return m.Probe(ctx)
}
