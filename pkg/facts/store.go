// Package facts is the durable, per-merchant append-only fact log.
//
// Each merchant scope owns one file, merchant_<scope>.metta, holding one
// S-expression per line. Appends and compactions on a scope are serialized
// in-process by a mutex and across processes by an advisory lock on a
// sibling .merchant_<scope>.lock file. Replay is forgiving: blank lines,
// comments, malformed and unknown lines are skipped.
package facts

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	filePrefix = "merchant_"
	fileSuffix = ".metta"
	lockSuffix = ".lock"

	maxLineSize = 1 << 20
)

// ErrEmptyScope is returned when a merchant scope is blank after sanitizing.
var ErrEmptyScope = errors.New("merchant scope is empty")

// Config configures a Store.
type Config struct {
	// Dir holds the merchant fact files.
	Dir string

	Logger *slog.Logger
}

// Store reads and appends merchant fact logs under a directory.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates the fact directory if needed and returns a Store over it.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("facts directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating facts directory: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Store{
		dir:    cfg.Dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the directory holding the fact files.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the fact file for a merchant scope.
func (s *Store) Path(scope string) (string, error) {
	label, err := Label(scope)
	if err != nil {
		return "", err
	}
	return s.path(label), nil
}

func (s *Store) path(label string) string {
	return filepath.Join(s.dir, filePrefix+label+fileSuffix)
}

// lock takes the scope's in-process mutex and then its file lock. The
// returned func releases both.
func (s *Store) lock(label string) (func(), error) {
	s.mu.Lock()
	m, ok := s.locks[label]
	if !ok {
		m = &sync.Mutex{}
		s.locks[label] = m
	}
	s.mu.Unlock()

	m.Lock()

	lockPath := filepath.Join(s.dir, "."+filePrefix+label+lockSuffix)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		m.Unlock()
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		m.Unlock()
		return nil, fmt.Errorf("locking fact log: %w", err)
	}

	return func() {
		if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
			s.logger.Warn("unlocking fact log", "scope", label, "error", err)
		}
		f.Close()
		m.Unlock()
	}, nil
}

// Append writes the lines of every fact to the scope's log in one write.
func (s *Store) Append(ctx context.Context, scope string, facts ...Fact) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	label, err := Label(scope)
	if err != nil {
		return err
	}

	var buf strings.Builder
	for _, f := range facts {
		lines, err := Encode(label, f)
		if err != nil {
			return err
		}
		for _, line := range lines {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	if buf.Len() == 0 {
		return nil
	}

	unlock, err := s.lock(label)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.OpenFile(s.path(label), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening fact log: %w", err)
	}

	if _, err := f.WriteString(buf.String()); err != nil {
		f.Close()
		return fmt.Errorf("appending facts for %s: %w", label, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing fact log: %w", err)
	}

	s.logger.Debug("appended facts", "scope", label, "count", len(facts))
	return nil
}

// Replay reads the scope's log in append order and calls apply for every
// decodable fact. A missing file replays nothing.
func (s *Store) Replay(ctx context.Context, scope string, apply func(Fact)) error {
	label, err := Label(scope)
	if err != nil {
		return err
	}

	f, err := os.Open(s.path(label))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening fact log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fact, ok := Decode(line)
		if !ok {
			s.logger.Debug("skipping fact line", "scope", label, "line", lineNo)
			continue
		}
		apply(fact)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading fact log %s: %w", label, err)
	}
	return nil
}

// CompactSingleton rewrites the scope's log so exactly one fact of the
// singleton kind remains, holding value, at the position of the last one.
// Only KindWallet is a singleton. The rewrite goes through a temporary file
// and a rename.
func (s *Store) CompactSingleton(ctx context.Context, scope string, kind Kind, value string) error {
	if kind != KindWallet {
		return fmt.Errorf("%s is not a singleton fact", kind)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	label, err := Label(scope)
	if err != nil {
		return err
	}

	encoded, err := Encode(label, Fact{Kind: kind, Value: value})
	if err != nil {
		return err
	}

	unlock, err := s.lock(label)
	if err != nil {
		return err
	}
	defer unlock()

	path := s.path(label)
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading fact log: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(data) == 0 {
		lines = nil
	}

	last := -1
	for i, line := range lines {
		if f, ok := Decode(line); ok && f.Kind == kind {
			last = i
		}
	}

	out := make([]string, 0, len(lines)+1)
	for i, line := range lines {
		if i == last {
			out = append(out, encoded...)
			continue
		}
		if f, ok := Decode(line); ok && f.Kind == kind {
			continue
		}
		out = append(out, line)
	}
	if last < 0 {
		out = append(out, encoded...)
	}

	tmp, err := os.CreateTemp(s.dir, "."+filePrefix+label+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating compaction file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(strings.Join(out, "\n") + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("writing compaction file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing compaction file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing compaction file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("setting compaction file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing fact log: %w", err)
	}

	s.logger.Debug("compacted fact log", "scope", label, "kind", kind.String())
	return nil
}

// Scopes lists every merchant scope that has a fact file, sorted.
func (s *Store) Scopes(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing facts directory: %w", err)
	}

	var scopes []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		scope := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		if label, err := Label(scope); err == nil && label == scope {
			scopes = append(scopes, scope)
		}
	}
	sort.Strings(scopes)
	return scopes, nil
}

// ModTime returns the modification time of the scope's log, or the zero time
// when the scope has no file yet.
func (s *Store) ModTime(scope string) (time.Time, error) {
	path, err := s.Path(scope)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("stat fact log: %w", err)
	}
	return info.ModTime(), nil
}
