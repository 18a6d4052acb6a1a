// Package knowledge maintains the queryable view of each merchant's menu and
// profile, rebuilt by replaying the merchant's fact log.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/papercomputeco/escrowd/pkg/facts"
)

// Profile is everything known about a merchant scope.
type Profile struct {
	Scope       string      `json:"merchant_id"`
	Menu        []MenuEntry `json:"menu"`
	Wallet      string      `json:"wallet,omitempty"`
	Description string      `json:"description,omitempty"`
	Hours       string      `json:"hours,omitempty"`
	Location    string      `json:"location,omitempty"`
	Categories  []string    `json:"categories,omitempty"`
}

type cached struct {
	graph   *Graph
	modTime time.Time
	size    int64
}

// Registry owns one graph per merchant scope. A graph is only ever replaced
// by a full replay; a cached graph is reused while its fact file is unchanged.
type Registry struct {
	store  *facts.Store
	logger *slog.Logger

	mu     sync.Mutex
	graphs map[string]cached
}

// NewRegistry returns a Registry reading and writing through store.
func NewRegistry(store *facts.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		store:  store,
		logger: logger,
		graphs: make(map[string]cached),
	}
}

// Store returns the underlying fact store.
func (r *Registry) Store() *facts.Store {
	return r.store
}

// Graph returns the current graph for scope. The returned graph must not be
// modified.
func (r *Registry) Graph(ctx context.Context, scope string) (*Graph, error) {
	label, err := facts.Label(scope)
	if err != nil {
		return nil, err
	}
	path, err := r.store.Path(label)
	if err != nil {
		return nil, err
	}

	var modTime time.Time
	var size int64
	info, err := os.Stat(path)
	switch {
	case err == nil:
		modTime, size = info.ModTime(), info.Size()
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("stat fact log: %w", err)
	}

	r.mu.Lock()
	c, ok := r.graphs[label]
	r.mu.Unlock()
	if ok && c.modTime.Equal(modTime) && c.size == size {
		return c.graph, nil
	}

	g := NewGraph(label)
	if err := r.store.Replay(ctx, label, g.Apply); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.graphs[label] = cached{graph: g, modTime: modTime, size: size}
	r.mu.Unlock()

	return g, nil
}

func (r *Registry) invalidate(scope string) {
	r.mu.Lock()
	delete(r.graphs, facts.SanitizeLabel(scope))
	r.mu.Unlock()
}

func (r *Registry) append(ctx context.Context, scope string, fs ...facts.Fact) error {
	defer r.invalidate(scope)
	return r.store.Append(ctx, scope, fs...)
}

// AddOrUpdateItem lists slug on the menu at price. An item already listed
// gets a price update, plus a display update when the name changed. A new or
// previously removed slug gets a full menu item, which re-admits it.
func (r *Registry) AddOrUpdateItem(ctx context.Context, scope, slug, display, price string) error {
	g, err := r.Graph(ctx, scope)
	if err != nil {
		return err
	}

	it, ok := g.Item(slug)
	if !ok || !it.Listed || it.Removed {
		return r.append(ctx, scope, facts.MenuItem(slug, display, price))
	}

	var updates []facts.Fact
	if display != "" && display != it.Display {
		updates = append(updates, facts.ItemDisplay(slug, display))
	}
	updates = append(updates, facts.PriceUpdate(slug, price))
	return r.append(ctx, scope, updates...)
}

// UpdatePrice appends a price update for slug.
func (r *Registry) UpdatePrice(ctx context.Context, scope, slug, price string) error {
	return r.append(ctx, scope, facts.PriceUpdate(slug, price))
}

// RemoveItem appends a tombstone for slug. Removing twice is harmless.
func (r *Registry) RemoveItem(ctx context.Context, scope, slug string) error {
	return r.append(ctx, scope, facts.RemovedItem(slug))
}

// SetItemDescription appends an item description for slug.
func (r *Registry) SetItemDescription(ctx context.Context, scope, slug, text string) error {
	return r.append(ctx, scope, facts.ItemDescription(slug, text))
}

// SetField appends a merchant-level field. Wallet writes also compact the log
// to a single wallet fact; a failed compaction is logged and ignored.
func (r *Registry) SetField(ctx context.Context, scope string, kind facts.Kind, value string) error {
	f, err := facts.Field(kind, value)
	if err != nil {
		return err
	}
	if err := r.append(ctx, scope, f); err != nil {
		return err
	}

	if kind == facts.KindWallet {
		defer r.invalidate(scope)
		if err := r.store.CompactSingleton(ctx, scope, kind, value); err != nil {
			r.logger.Warn("wallet compaction failed", "scope", scope, "error", err)
		}
	}
	return nil
}

// Menu returns the visible menu of scope. A cold scope yields an empty menu.
func (r *Registry) Menu(ctx context.Context, scope string) ([]MenuEntry, error) {
	g, err := r.Graph(ctx, scope)
	if err != nil {
		return nil, err
	}
	return g.Menu(), nil
}

// Field returns the latest value of a merchant field.
func (r *Registry) Field(ctx context.Context, scope string, kind facts.Kind) (string, bool, error) {
	g, err := r.Graph(ctx, scope)
	if err != nil {
		return "", false, err
	}
	v, ok := g.Field(kind)
	return v, ok, nil
}

// Profile collects the menu and every merchant field of scope.
func (r *Registry) Profile(ctx context.Context, scope string) (*Profile, error) {
	g, err := r.Graph(ctx, scope)
	if err != nil {
		return nil, err
	}

	p := &Profile{
		Scope:      g.Scope,
		Menu:       g.Menu(),
		Categories: g.Categories(),
	}
	p.Wallet, _ = g.Field(facts.KindWallet)
	p.Description, _ = g.Field(facts.KindDescription)
	p.Hours, _ = g.Field(facts.KindHours)
	p.Location, _ = g.Field(facts.KindLocation)
	return p, nil
}
