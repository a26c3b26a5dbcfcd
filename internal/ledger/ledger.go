// Package ledger persists per-document failure counts across runs so that
// repeatedly failing documents stop consuming translation attempts.
package ledger

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// DefaultMaxFailures is the breaker threshold: a document with at least this
// many recorded failures is skipped.
const DefaultMaxFailures = 3

// Repository tracks how many times each document has failed.
type Repository interface {
	// Count returns the recorded failure count for path (0 when unknown).
	Count(path string) (int, error)

	// Increment adds one failure for path and persists the result.
	Increment(path string) error

	// All returns every recorded path with its count, sorted by path.
	All() (map[string]int, error)

	// Reset removes the record for path; Reset("") removes everything.
	Reset(path string) error
}

// FileRepository stores counts in a plain text file, one "path,count" line
// per document. Lines that do not parse are ignored rather than failing the
// load: the file may have been hand-edited.
type FileRepository struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewFile returns a Repository backed by the file at path. The file need not
// exist yet.
func NewFile(path string, logger *slog.Logger) *FileRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileRepository{path: path, logger: logger}
}

func (r *FileRepository) load() map[string]int {
	counts := make(map[string]int)
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("failed to read failure ledger", "path", r.path, "error", err)
		}
		return counts
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// The document path may itself contain commas, so split on the
		// last one.
		idx := strings.LastIndex(line, ",")
		if idx <= 0 || idx == len(line)-1 {
			continue
		}
		count, err := strconv.Atoi(line[idx+1:])
		if err != nil || count < 0 {
			continue
		}
		counts[line[:idx]] = count
	}
	return counts
}

func (r *FileRepository) store(counts map[string]int) error {
	paths := make([]string, 0, len(counts))
	for p := range counts {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, "%s,%d\n", p, counts[p])
	}
	if err := os.WriteFile(r.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing failure ledger: %w", err)
	}
	return nil
}

// Count returns the recorded failure count for path.
func (r *FileRepository) Count(path string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()[path], nil
}

// Increment adds one failure for path. A write error is logged but not
// returned: losing one increment must not abort the batch.
func (r *FileRepository) Increment(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := r.load()
	counts[path]++
	if err := r.store(counts); err != nil {
		r.logger.Warn("failed to persist failure ledger", "path", r.path, "error", err)
	}
	return nil
}

// All returns every recorded path and count.
func (r *FileRepository) All() (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(), nil
}

// Reset removes the record for path, or all records when path is empty.
func (r *FileRepository) Reset(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if path == "" {
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing failure ledger: %w", err)
		}
		return nil
	}

	counts := r.load()
	if _, ok := counts[path]; !ok {
		return nil
	}
	delete(counts, path)
	return r.store(counts)
}

// Memory is an in-process Repository for tests.
type Memory struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemory returns an empty in-memory Repository.
func NewMemory() *Memory {
	return &Memory{counts: make(map[string]int)}
}

func (m *Memory) Count(path string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[path], nil
}

func (m *Memory) Increment(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[path]++
	return nil
}

func (m *Memory) All() (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Reset(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if path == "" {
		m.counts = make(map[string]int)
		return nil
	}
	delete(m.counts, path)
	return nil
}
