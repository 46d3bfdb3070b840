// Package journal keeps an append-only history of captured instrument states.
//
// Entries are stored in Badger under ULID keys, so key order is capture order
// and listing newest-first is a reverse prefix scan.
package journal

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/beamcal/internal/core/domain"
)

var keyPrefix = []byte("state/")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("journal closed")

// Config configures the journal store.
type Config struct {
	// Dir is the Badger directory. Ignored when InMemory is set.
	Dir string
	// InMemory keeps the journal in memory only.
	InMemory bool
	// Retention keeps the newest N entries after every append. 0 keeps everything.
	Retention int
	// SyncWrites fsyncs after each write.
	SyncWrites bool
	// ValueLogFileSize is the max value log file size in bytes.
	ValueLogFileSize int64
	// GCThreshold is the value log GC discard ratio (0.0-1.0).
	GCThreshold float64
}

// DefaultConfig returns the default journal configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		Retention:        200,
		SyncWrites:       true,
		ValueLogFileSize: 64 << 20, // 64MB
		GCThreshold:      0.5,
	}
}

// Entry is one journaled state.
type Entry struct {
	ID    string                  `json:"id"`
	Label string                  `json:"label,omitempty"`
	RunID string                  `json:"run_id,omitempty"`
	State *domain.InstrumentState `json:"state"`
}

// Journal is a Badger-backed state history.
type Journal struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	entropy io.Reader
	closed  bool
}

// Open opens or creates the journal.
func Open(cfg Config, logger *slog.Logger) (*Journal, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("journal: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("journal: open db: %w", err)
	}

	logger.Debug("journal opened", "dir", cfg.Dir, "in_memory", cfg.InMemory, "retention", cfg.Retention)
	return &Journal{
		db:      db,
		cfg:     cfg,
		logger:  logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

func entryKey(id string) []byte {
	return append(append([]byte{}, keyPrefix...), id...)
}

// Append stores state under a new ULID derived from the state timestamp and
// applies retention.
func (j *Journal) Append(ctx context.Context, state *domain.InstrumentState, label, runID string) (*Entry, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}

	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil, ErrClosed
	}
	id, err := ulid.New(ulid.Timestamp(state.Timestamp), j.entropy)
	j.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("journal: new id: %w", err)
	}

	entry := &Entry{ID: id.String(), Label: label, RunID: runID, State: state}
	value, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("journal: encode entry: %w", err)
	}

	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(entry.ID), value)
	})
	if err != nil {
		return nil, fmt.Errorf("journal: write entry: %w", err)
	}
	j.logger.Info("state journaled", "id", entry.ID, "label", label)

	if j.cfg.Retention > 0 {
		if _, err := j.Prune(ctx, j.cfg.Retention); err != nil {
			return entry, err
		}
	}
	return entry, nil
}

// Get returns the entry with the given ID, or domain.ErrStateNotFound.
func (j *Journal) Get(ctx context.Context, id string) (*Entry, error) {
	if _, err := ulid.ParseStrict(id); err != nil {
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("journal id %q", id))
	}

	var entry Entry
	err := j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrStateNotFound.WithDetails(id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Latest returns the newest entry, or domain.ErrStateNotFound when empty.
func (j *Journal) Latest(ctx context.Context) (*Entry, error) {
	entries, err := j.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, domain.ErrStateNotFound.WithDetails("journal is empty")
	}
	return entries[0], nil
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (j *Journal) List(ctx context.Context, limit int) ([]*Entry, error) {
	var entries []*Entry
	err := j.scanNewestFirst(true, func(item *badger.Item) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		var e Entry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		}); err != nil {
			return false, fmt.Errorf("journal: decode %s: %w", item.Key(), err)
		}
		entries = append(entries, &e)
		return limit <= 0 || len(entries) < limit, nil
	})
	return entries, err
}

// Prune deletes all but the newest keep entries and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	var stale [][]byte
	seen := 0
	err := j.scanNewestFirst(false, func(item *badger.Item) (bool, error) {
		seen++
		if seen > keep {
			stale = append(stale, item.KeyCopy(nil))
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := j.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("journal: delete: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("journal: flush deletes: %w", err)
	}

	j.logger.Info("pruned journal entries", "deleted_count", len(stale), "kept", keep)
	return len(stale), nil
}

func (j *Journal) scanNewestFirst(values bool, fn func(item *badger.Item) (bool, error)) error {
	return j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = values
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, keyPrefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(keyPrefix); it.Next() {
			more, err := fn(it.Item())
			if err != nil {
				return err
			}
			if !more {
				break
			}
		}
		return nil
	})
}

// GC reclaims value log space left behind by pruning.
func (j *Journal) GC(ctx context.Context) error {
	if j.cfg.InMemory {
		return nil
	}
	start := time.Now()
	runs := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := j.db.RunValueLogGC(j.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				break
			}
			return fmt.Errorf("journal: gc: %w", err)
		}
		runs++
	}
	j.logger.Debug("journal gc completed", "rewrites", runs, "elapsed", time.Since(start))
	return nil
}

// Collectors returns gauges exposing the on-disk size of the journal.
func (j *Journal) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "beamcal",
			Subsystem: "journal",
			Name:      "lsm_size_bytes",
			Help:      "Journal LSM tree size in bytes.",
		}, func() float64 {
			lsm, _ := j.db.Size()
			return float64(lsm)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "beamcal",
			Subsystem: "journal",
			Name:      "value_log_size_bytes",
			Help:      "Journal value log size in bytes.",
		}, func() float64 {
			_, vlog := j.db.Size()
			return float64(vlog)
		}),
	}
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.mu.Unlock()

	if err := j.db.Close(); err != nil {
		return fmt.Errorf("journal: close db: %w", err)
	}
	return nil
}

// badgerLogger adapts slog.Logger to Badger's Logger interface. Badger's
// informational chatter is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
