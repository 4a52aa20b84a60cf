// Package peers persists peer metrics records keyed by the canonical
// "ip:port" address. Like the header store, writes are queued and drained by
// a single background writer.
package peers

import (
	"context"
	"sync"

	"github.com/bsv-blockchain/go-headers-client/stores/kv"
	"github.com/bsv-blockchain/go-headers-client/ulogger"
)

const writeQueueSize = 4096

type writeOp struct {
	del  bool
	addr string
	data []byte
}

type Store struct {
	logger ulogger.Logger
	kv     *kv.Badger

	queue chan writeOp
	wg    sync.WaitGroup

	closeOnce sync.Once
}

func New(logger ulogger.Logger, dir string) (*Store, error) {
	db, err := kv.New(logger, dir)
	if err != nil {
		return nil, err
	}

	s := &Store{
		logger: logger,
		kv:     db,
		queue:  make(chan writeOp, writeQueueSize),
	}

	s.wg.Add(1)
	go s.writer()

	return s, nil
}

func (s *Store) writer() {
	defer s.wg.Done()

	for op := range s.queue {
		puts := map[string][]byte{}

		var dels [][]byte

		apply := func(op writeOp) {
			if op.del {
				dels = append(dels, []byte(op.addr))
			} else {
				puts[op.addr] = op.data
			}
		}

		apply(op)

	drain:
		for len(puts)+len(dels) < 512 {
			select {
			case next, ok := <-s.queue:
				if !ok {
					break drain
				}

				apply(next)
			default:
				break drain
			}
		}

		if err := s.kv.WriteBatch(context.Background(), puts, dels); err != nil {
			s.logger.Errorf("[PeerStore] Failed to persist batch of %d writes: %v", len(puts)+len(dels), err)
		}
	}
}

// Put queues a metrics record write for the given address.
func (s *Store) Put(addr string, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	s.queue <- writeOp{addr: addr, data: buf}
}

// Delete queues the removal of an address.
func (s *Store) Delete(addr string) {
	s.queue <- writeOp{del: true, addr: addr}
}

// Iter calls fn for every persisted metrics record.
func (s *Store) Iter(ctx context.Context, fn func(addr string, data []byte) error) error {
	return s.kv.Iter(ctx, func(key []byte, value []byte) error {
		return fn(string(key), value)
	})
}

// Close drains the write queue and closes the underlying store.
func (s *Store) Close(ctx context.Context) error {
	var err error

	s.closeOnce.Do(func() {
		close(s.queue)
		s.wg.Wait()

		err = s.kv.Close(ctx)
	})

	return err
}
