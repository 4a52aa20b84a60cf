package peer

import (
	"sync"
	"time"

	"github.com/bsv-blockchain/go-headers-client/model"
	"github.com/bsv-blockchain/go-headers-client/wire"
)

// waitResult carries the outcome of a correlated request. Only the field
// matching the request kind is set.
type waitResult struct {
	headers  []*model.BlockHeader
	addrs    []*wire.NetAddress
	duration time.Duration
	err      error
}

// waiter is the explicit state record for one in-flight correlated request.
// Each request kind holds either a single slot or a nonce-keyed map of
// these. Resolution closes the done channel, so coalesced callers all
// observe the same result; only the first resolve or reject wins.
type waiter struct {
	once   sync.Once
	done   chan struct{}
	result waitResult
	sentAt time.Time
}

func newWaiter() *waiter {
	return &waiter{
		done:   make(chan struct{}),
		sentAt: time.Now(),
	}
}

func (w *waiter) resolve(result waitResult) {
	w.once.Do(func() {
		w.result = result
		close(w.done)
	})
}

func (w *waiter) reject(err error) {
	w.resolve(waitResult{err: err})
}
