// Package kv wraps badger as the embedded key-value store backing the
// header and peer databases.
package kv

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/ordishs/gocore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/bsv-blockchain/go-headers-client/errors"
	"github.com/bsv-blockchain/go-headers-client/ulogger"
)

func init() {
	badgerExpvarCollector := collectors.NewExpvarCollector(map[string]*prometheus.Desc{
		"badger_blocked_puts_total":   prometheus.NewDesc("badger_blocked_puts_total", "Blocked Puts", nil, nil),
		"badger_disk_reads_total":     prometheus.NewDesc("badger_disk_reads_total", "Disk Reads", nil, nil),
		"badger_disk_writes_total":    prometheus.NewDesc("badger_disk_writes_total", "Disk Writes", nil, nil),
		"badger_gets_total":           prometheus.NewDesc("badger_gets_total", "Gets", nil, nil),
		"badger_puts_total":           prometheus.NewDesc("badger_puts_total", "Puts", nil, nil),
		"badger_memtable_gets_total":  prometheus.NewDesc("badger_memtable_gets_total", "Memtable gets", nil, nil),
		"badger_lsm_size_bytes":       prometheus.NewDesc("badger_lsm_size_bytes", "LSM Size in bytes", []string{"database"}, nil),
		"badger_vlog_size_bytes":      prometheus.NewDesc("badger_vlog_size_bytes", "Value Log Size in bytes", []string{"database"}, nil),
		"badger_pending_writes_total": prometheus.NewDesc("badger_pending_writes_total", "Pending Writes", []string{"database"}, nil),
		"badger_read_bytes":           prometheus.NewDesc("badger_read_bytes", "Read bytes", nil, nil),
		"badger_written_bytes":        prometheus.NewDesc("badger_written_bytes", "Written bytes", nil, nil),
	})
	prometheus.MustRegister(badgerExpvarCollector)
}

type Badger struct {
	store  *badger.DB
	logger ulogger.Logger
}

type loggerWrapper struct {
	ulogger.Logger
}

func (l loggerWrapper) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}

func New(logger ulogger.Logger, dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(loggerWrapper{logger}).
		WithLoggingLevel(badger.ERROR).
		WithMetricsEnabled(true)

	s, err := badger.Open(opts)
	if err != nil {
		return nil, errors.NewStorageError("failed to open badger store at %s", dir, err)
	}

	return &Badger{
		store:  s,
		logger: logger,
	}, nil
}

func (s *Badger) Close(_ context.Context) error {
	start := time.Now()
	defer func() {
		gocore.NewStat("kv").NewStat("Close").AddTime(start)
	}()

	return s.store.Close()
}

func (s *Badger) Set(_ context.Context, key []byte, value []byte) error {
	start := time.Now()
	defer func() {
		gocore.NewStat("kv").NewStat("Set").AddTime(start)
	}()

	if err := s.store.Update(func(tx *badger.Txn) error {
		return tx.Set(key, value)
	}); err != nil {
		return errors.NewStorageError("failed to set data", err)
	}

	return nil
}

func (s *Badger) Get(_ context.Context, key []byte) ([]byte, error) {
	start := time.Now()
	defer func() {
		gocore.NewStat("kv").NewStat("Get").AddTime(start)
	}()

	var result []byte

	err := s.store.View(func(tx *badger.Txn) error {
		data, err := tx.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return errors.NewNotFoundError("key not found", err)
			}

			return err
		}

		return data.Value(func(val []byte) error {
			result = append([]byte{}, val...)
			return nil
		})
	})

	return result, err
}

func (s *Badger) Del(_ context.Context, key []byte) error {
	start := time.Now()
	defer func() {
		gocore.NewStat("kv").NewStat("Del").AddTime(start)
	}()

	return s.store.Update(func(tx *badger.Txn) error {
		return tx.Delete(key)
	})
}

// WriteBatch applies a set of puts and deletes atomically.
func (s *Badger) WriteBatch(_ context.Context, puts map[string][]byte, dels [][]byte) error {
	start := time.Now()
	defer func() {
		gocore.NewStat("kv").NewStat("WriteBatch").AddTime(start)
	}()

	return s.store.Update(func(tx *badger.Txn) error {
		for key, value := range puts {
			if err := tx.Set([]byte(key), value); err != nil {
				return err
			}
		}

		for _, key := range dels {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}

		return nil
	})
}

// Iter calls fn for every key/value pair in key order. Returning an error
// from fn stops the iteration.
func (s *Badger) Iter(_ context.Context, fn func(key []byte, value []byte) error) error {
	start := time.Now()
	defer func() {
		gocore.NewStat("kv").NewStat("Iter").AddTime(start)
	}()

	return s.store.View(func(tx *badger.Txn) error {
		it := tx.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			key := item.KeyCopy(nil)

			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			if err = fn(key, value); err != nil {
				return err
			}
		}

		return nil
	})
}
