package results

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Observer receives store events, typically to export them as metrics.
type Observer interface {
	CacheHit(dir string)
	CacheMiss(dir string)
	LoadCompleted(dir string, elapsed time.Duration, records, skipped int, err error)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)                                      {}
func (nopObserver) CacheMiss(string)                                     {}
func (nopObserver) LoadCompleted(string, time.Duration, int, int, error) {}

type cacheEntry struct {
	snapshot    *Snapshot
	fingerprint uint64
}

// Store is a read-through cache of snapshots keyed by directory path.
//
// A cached snapshot is served as long as the directory fingerprint (name, size
// and mtime of each recognized file) is unchanged.
type Store struct {
	loader   *Loader
	cache    *lru.Cache[string, cacheEntry]
	observer Observer
	logger   *zap.Logger

	mu sync.Mutex
}

// NewStore creates a store holding at most size directories.
func NewStore(loader *Loader, size int, observer Observer, logger *zap.Logger) (*Store, error) {
	if size <= 0 {
		size = 1
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create results cache: %w", err)
	}

	return &Store{
		loader:   loader,
		cache:    cache,
		observer: observer,
		logger:   logger,
	}, nil
}

// Snapshot returns the records of dir, reloading them only if the directory changed.
func (s *Store) Snapshot(dir string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp, err := s.fingerprint(dir)
	if err != nil {
		s.cache.Remove(dir)
		s.observer.LoadCompleted(dir, 0, 0, 0, err)
		return nil, err
	}

	if entry, ok := s.cache.Get(dir); ok && entry.fingerprint == fp {
		s.observer.CacheHit(dir)
		return entry.snapshot, nil
	}
	s.observer.CacheMiss(dir)

	return s.load(dir, fp)
}

// Refresh drops any cached snapshot of dir and loads it again.
func (s *Store) Refresh(dir string) (*Snapshot, error) {
	s.Invalidate(dir)
	return s.Snapshot(dir)
}

// Invalidate drops the cached snapshot of dir.
func (s *Store) Invalidate(dir string) {
	if s.cache.Remove(dir) {
		s.logger.Debug("results cache invalidated", zap.String("dir", dir))
	}
}

// Cached reports whether dir currently has a cached snapshot.
func (s *Store) Cached(dir string) bool {
	return s.cache.Contains(dir)
}

func (s *Store) load(dir string, fp uint64) (*Snapshot, error) {
	start := time.Now()
	snap, err := s.loader.Load(dir)
	elapsed := time.Since(start)

	if err != nil {
		s.observer.LoadCompleted(dir, elapsed, 0, 0, err)
		return nil, err
	}
	s.observer.LoadCompleted(dir, elapsed, snap.Len(), len(snap.Skipped), nil)

	s.cache.Add(dir, cacheEntry{snapshot: snap, fingerprint: fp})
	s.logger.Info("results loaded",
		zap.String("dir", dir),
		zap.Int("records", snap.Len()),
		zap.Int("skipped", len(snap.Skipped)),
		zap.Duration("elapsed", elapsed))
	if warnings := snap.Warnings(); warnings != nil {
		// zap expands multierr values into errorCauses.
		s.logger.Warn("some result files were skipped", zap.String("dir", dir), zap.Error(warnings))
	}

	return snap, nil
}

func (s *Store) fingerprint(dir string) (uint64, error) {
	entries, err := readResultDir(dir)
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	for _, entry := range entries {
		if entry.IsDir() || !s.loader.Recognizes(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between listing and stat; the next call sees the new state.
			continue
		}
		h.Write([]byte(entry.Name()))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(info.Size(), 10)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(info.ModTime().UnixNano(), 10)))
		h.Write([]byte{'\n'})
	}
	return h.Sum64(), nil
}
