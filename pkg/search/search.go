// Package search ranks merchants by keyword overlap with a free-text query.
//
// The index is built from each merchant's knowledge graph: visible menu item
// names, the merchant description, and the location contribute keywords. It
// is cached on disk as index.json next to the fact files and rebuilt when any
// fact file changed since the cache was written.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/escrowd/pkg/facts"
	"github.com/papercomputeco/escrowd/pkg/knowledge"
)

const (
	indexFile = "index.json"

	// DefaultTopK is the number of results returned when none is requested.
	DefaultTopK = 5

	maxItemsPerResult = 5
)

var tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)

// Tokenize lowercases text and splits it on runs of non-alphanumerics.
func Tokenize(text string) []string {
	var out []string
	for _, t := range tokenSplit.Split(strings.ToLower(text), -1) {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Entry is the indexed summary of one merchant.
type Entry struct {
	Keywords map[string]int `json:"keywords"`
	Items    []string       `json:"items"`
	Desc     string         `json:"desc,omitempty"`
	Hours    string         `json:"hours,omitempty"`
	Location string         `json:"location,omitempty"`
	Wallet   string         `json:"wallet,omitempty"`
}

// Result is one ranked merchant.
type Result struct {
	MerchantID string   `json:"merchant_id"`
	Score      int      `json:"score"`
	Items      []string `json:"items"`
	Desc       string   `json:"desc,omitempty"`
	Location   string   `json:"location,omitempty"`
}

type indexFileFormat struct {
	BaseDir string            `json:"base_dir"`
	Sources map[string]Source `json:"sources"`
	Index   map[string]Entry  `json:"index"`
}

// Config configures an Index.
type Config struct {
	Registry *knowledge.Registry
	Logger   *slog.Logger
}

// Index is the merchant keyword index.
type Index struct {
	registry *knowledge.Registry
	store    *facts.Store
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]Entry
	sources map[string]Source
	dirty   bool
}

// NewIndex returns an Index over the registry's fact store.
func NewIndex(cfg Config) (*Index, error) {
	if cfg.Registry == nil {
		return nil, errors.New("knowledge registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Index{
		registry: cfg.Registry,
		store:    cfg.Registry.Store(),
		logger:   logger,
		dirty:    true,
	}, nil
}

// Path returns the location of the cached index file.
func (ix *Index) Path() string {
	return filepath.Join(ix.store.Dir(), indexFile)
}

// Build scans every merchant scope and returns a fresh index.
func (ix *Index) Build(ctx context.Context) (map[string]Entry, error) {
	scopes, err := ix.store.Scopes(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[string]Entry, len(scopes))
	for _, scope := range scopes {
		g, err := ix.registry.Graph(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("building index for %s: %w", scope, err)
		}
		index[scope] = entryFor(g)
	}
	return index, nil
}

func entryFor(g *knowledge.Graph) Entry {
	e := Entry{Keywords: make(map[string]int)}
	count := func(text string) {
		for _, t := range Tokenize(text) {
			e.Keywords[t]++
		}
	}

	for _, m := range g.Menu() {
		e.Items = append(e.Items, m.Display)
		count(m.Display)
	}

	e.Desc, _ = g.Field(facts.KindDescription)
	e.Hours, _ = g.Field(facts.KindHours)
	e.Location, _ = g.Field(facts.KindLocation)
	e.Wallet, _ = g.Field(facts.KindWallet)
	count(e.Desc)
	count(e.Location)
	return e
}

// Source fingerprints one fact file at build time.
type Source struct {
	ModTime int64 `json:"mtime_ns"`
	Size    int64 `json:"size"`
}

func (ix *Index) fingerprint(ctx context.Context) (map[string]Source, error) {
	scopes, err := ix.store.Scopes(ctx)
	if err != nil {
		return nil, err
	}

	fp := make(map[string]Source, len(scopes))
	for _, scope := range scopes {
		path, err := ix.store.Path(scope)
		if err != nil {
			continue
		}
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat fact log: %w", err)
		}
		fp[scope] = Source{ModTime: info.ModTime().UnixNano(), Size: info.Size()}
	}
	return fp, nil
}

func sameSources(a, b map[string]Source) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// Stale reports whether the cached index file is missing or was built from
// fact files that have since changed.
func (ix *Index) Stale(ctx context.Context) (bool, error) {
	cached := ix.load()
	if cached == nil {
		return true, nil
	}

	fp, err := ix.fingerprint(ctx)
	if err != nil {
		return true, err
	}
	return !sameSources(cached.Sources, fp), nil
}

func (ix *Index) save(index map[string]Entry, sources map[string]Source) error {
	data, err := json.Marshal(indexFileFormat{BaseDir: ix.store.Dir(), Sources: sources, Index: index})
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := os.WriteFile(ix.Path(), data, 0o644); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}

// load reads the cache file. A missing or unreadable file returns nil.
func (ix *Index) load() *indexFileFormat {
	data, err := os.ReadFile(ix.Path())
	if err != nil {
		return nil
	}

	var f indexFileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		ix.logger.Debug("ignoring unreadable index", "path", ix.Path(), "error", err)
		return nil
	}
	return &f
}

// current returns a fresh index, rebuilding and saving it when stale.
func (ix *Index) current(ctx context.Context) (map[string]Entry, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	fp, err := ix.fingerprint(ctx)
	if err != nil {
		return nil, err
	}

	if ix.entries != nil && !ix.dirty && sameSources(ix.sources, fp) {
		return ix.entries, nil
	}

	if cached := ix.load(); cached != nil && cached.Index != nil && sameSources(cached.Sources, fp) {
		ix.entries, ix.sources, ix.dirty = cached.Index, fp, false
		return cached.Index, nil
	}

	built, err := ix.Build(ctx)
	if err != nil {
		return nil, err
	}
	if err := ix.save(built, fp); err != nil {
		ix.logger.Warn("could not cache merchant index", "error", err)
	}
	ix.logger.Debug("rebuilt merchant index", "merchants", len(built))
	ix.entries, ix.sources, ix.dirty = built, fp, false
	return built, nil
}

// Rebuild forces a full rebuild of the index and its cache file.
func (ix *Index) Rebuild(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	fp, err := ix.fingerprint(ctx)
	if err != nil {
		return err
	}
	built, err := ix.Build(ctx)
	if err != nil {
		return err
	}
	if err := ix.save(built, fp); err != nil {
		return err
	}
	ix.entries, ix.sources, ix.dirty = built, fp, false
	return nil
}

// Search returns up to topK merchants whose keywords overlap query, highest
// score first. A query without tokens returns no results.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	index, err := ix.current(ctx)
	if err != nil {
		return nil, err
	}

	var results []Result
	for mid, e := range index {
		score := 0
		for _, t := range tokens {
			score += e.Keywords[t]
		}
		if score == 0 {
			continue
		}

		items := e.Items
		if len(items) > maxItemsPerResult {
			items = items[:maxItemsPerResult]
		}
		results = append(results, Result{
			MerchantID: mid,
			Score:      score,
			Items:      append([]string(nil), items...),
			Desc:       e.Desc,
			Location:   e.Location,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].MerchantID < results[j].MerchantID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Invalidate forces the next search to rebuild.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	ix.dirty = true
	ix.mu.Unlock()
}

// Watch invalidates the index whenever a merchant fact file changes, until
// ctx is done.
func (ix *Index) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating facts watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(ix.store.Dir()); err != nil {
		return fmt.Errorf("watching facts dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if !strings.HasPrefix(name, "merchant_") || !strings.HasSuffix(name, ".metta") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			ix.logger.Debug("merchant facts changed", "file", name)
			ix.Invalidate()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("facts watcher error: %w", err)
		}
	}
}
