// Package headers persists the longest chain as height -> 80 byte header
// records. Writes are queued and drained by a single background writer: the
// in-memory graph is authoritative from the moment a header is accepted, and
// a write lost in a crash is simply re-downloaded on the next start.
package headers

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/bsv-blockchain/go-headers-client/errors"
	"github.com/bsv-blockchain/go-headers-client/headergraph"
	"github.com/bsv-blockchain/go-headers-client/model"
	"github.com/bsv-blockchain/go-headers-client/stores/kv"
	"github.com/bsv-blockchain/go-headers-client/ulogger"
)

const writeQueueSize = 4096

type writeOp struct {
	del    bool
	height uint32
	header []byte
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

// writer is the single goroutine draining the write queue. Failed writes are
// logged and dropped; the in-memory state is never rolled back.
func (s *Store) writer() {
	defer s.wg.Done()

	for op := range s.queue {
		puts := map[string][]byte{}

		var dels [][]byte

		apply := func(op writeOp) {
			if op.del {
				dels = append(dels, heightKey(op.height))
			} else {
				puts[string(heightKey(op.height))] = op.header
			}
		}

		apply(op)

		// opportunistically batch whatever else is already queued
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
			s.logger.Errorf("[HeaderStore] Failed to persist batch of %d writes: %v", len(puts)+len(dels), err)
		}
	}
}

// Put queues a height -> header write.
func (s *Store) Put(height uint32, header []byte) {
	buf := make([]byte, len(header))
	copy(buf, header)

	s.queue <- writeOp{height: height, header: buf}
}

// Delete queues the removal of a height.
func (s *Store) Delete(height uint32) {
	s.queue <- writeOp{del: true, height: height}
}

// ApplyChangeset queues the writes needed to keep the store in step with a
// graph changeset: every added node is written under its height, and removed
// heights above the new tip are deleted.
func (s *Store) ApplyChangeset(changeset *headergraph.Changeset) {
	if changeset.IsNoOp() {
		return
	}

	newTipHeight := changeset.Added[len(changeset.Added)-1].Height

	for _, node := range changeset.Added {
		s.Put(node.Height, node.Header.Bytes())
	}

	for _, node := range changeset.Removed {
		if node.Height > newTipHeight {
			s.Delete(node.Height)
		}
	}
}

// Iter calls fn for every persisted header in ascending height order.
func (s *Store) Iter(ctx context.Context, fn func(height uint32, header []byte) error) error {
	return s.kv.Iter(ctx, func(key []byte, value []byte) error {
		if len(key) != 4 {
			return errors.NewStorageError("unexpected key length %d in header store", len(key))
		}

		if len(value) != model.BlockHeaderSize {
			return errors.NewStorageError("unexpected value length %d in header store", len(value))
		}

		return fn(binary.BigEndian.Uint32(key), value)
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

func heightKey(height uint32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, height)

	return key
}
