package results

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// LoaderOptions controls which files a Loader reads and how failures are handled.
type LoaderOptions struct {
	// Extensions recognized as result files, e.g. ".json". Empty means all supported ones.
	Extensions []string
	// Strict aborts the whole load on the first undecodable file instead of skipping it.
	Strict bool
}

// Loader reads every recognized result file of a directory into a Snapshot.
type Loader struct {
	decoders map[string]Decoder
	strict   bool
	logger   *zap.Logger
}

// NewLoader creates a loader. Unknown extensions are rejected.
func NewLoader(opts LoaderOptions, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = SupportedExtensions()
	}

	selected := make(map[string]Decoder, len(exts))
	for _, ext := range exts {
		ext = normalizeExt(ext)
		dec, ok := decoders[ext]
		if !ok {
			return nil, fmt.Errorf("unsupported result file extension %q", ext)
		}
		selected[ext] = dec
	}

	return &Loader{decoders: selected, strict: opts.Strict, logger: logger}, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Recognizes reports whether name has a recognized extension.
func (l *Loader) Recognizes(name string) bool {
	_, ok := l.decoders[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Load reads dir and returns its records keyed by file name.
//
// A missing directory yields ErrMissingDirectory. Files that fail to decode are
// skipped and listed in Snapshot.Skipped, unless the loader is strict.
func (l *Loader) Load(dir string) (*Snapshot, error) {
	entries, err := readResultDir(dir)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Dir:      dir,
		LoadedAt: time.Now(),
		records:  make(map[string]Record),
	}

	for _, entry := range entries {
		if entry.IsDir() || !l.Recognizes(entry.Name()) {
			continue
		}

		name := entry.Name()
		rec, err := l.loadFile(filepath.Join(dir, name))
		if err != nil {
			decodeErr := &DecodeError{File: name, Err: err}
			if l.strict {
				return nil, decodeErr
			}
			l.logger.Warn("skipping unreadable result file",
				zap.String("dir", dir),
				zap.String("file", name),
				zap.Error(err))
			snap.Skipped = append(snap.Skipped, SkippedFile{File: name, Reason: err.Error()})
			snap.warnings = multierr.Append(snap.warnings, decodeErr)
			continue
		}

		snap.records[name] = rec
		snap.keys = append(snap.keys, name)
	}

	sort.Strings(snap.keys)

	l.logger.Debug("loaded result records",
		zap.String("dir", dir),
		zap.Int("records", len(snap.keys)),
		zap.Int("skipped", len(snap.Skipped)))

	return snap, nil
}

func (l *Loader) loadFile(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	return l.decoders[strings.ToLower(filepath.Ext(path))](data)
}

// readResultDir lists dir, mapping absence (or a non-directory) to ErrMissingDirectory.
func readResultDir(dir string) ([]os.DirEntry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingDirectory, dir)
		}
		return nil, fmt.Errorf("stat results directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrMissingDirectory, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read results directory: %w", err)
	}
	return entries, nil
}

// SkippedFile is a result file left out of a snapshot.
type SkippedFile struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// Snapshot is an immutable view of the records found in a directory at load time.
type Snapshot struct {
	Dir      string
	LoadedAt time.Time
	Skipped  []SkippedFile

	records  map[string]Record
	keys     []string
	warnings error
}

// Len returns the number of loaded records.
func (s *Snapshot) Len() int {
	return len(s.keys)
}

// Keys returns the record keys in lexicographic order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Get returns the record stored under key.
func (s *Snapshot) Get(key string) (Record, error) {
	rec, ok := s.records[key]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return rec, nil
}

// Select resolves a user selection. An empty key picks the first record.
// An empty snapshot yields ErrNoRecords.
func (s *Snapshot) Select(key string) (string, Record, error) {
	if len(s.keys) == 0 {
		return "", Record{}, ErrNoRecords
	}
	if key == "" {
		key = s.keys[0]
	}
	rec, err := s.Get(key)
	if err != nil {
		return "", Record{}, err
	}
	return key, rec, nil
}

// Warnings combines the decode errors of every skipped file, or returns nil.
func (s *Snapshot) Warnings() error {
	return s.warnings
}
