package knowledge

import "github.com/papercomputeco/escrowd/pkg/facts"

// Item is the folded state of one menu slug.
type Item struct {
	Slug        string
	Display     string
	Price       string
	Description string

	// Listed is set once a menu fact names the slug.
	Listed bool

	// Removed is set by a tombstone and cleared by a later menu fact.
	Removed bool
}

// MenuEntry is one visible line of a merchant menu.
type MenuEntry struct {
	Slug        string `json:"slug"`
	Display     string `json:"display"`
	Price       string `json:"price"`
	Description string `json:"description,omitempty"`
}

// Graph is the in-memory view of one merchant scope, folded from its facts
// in append order.
type Graph struct {
	Scope string

	items      map[string]*Item
	order      []string
	fields     map[facts.Kind]string
	categories []string
}

// NewGraph returns an empty graph for scope.
func NewGraph(scope string) *Graph {
	return &Graph{
		Scope:  scope,
		items:  make(map[string]*Item),
		fields: make(map[facts.Kind]string),
	}
}

func (g *Graph) item(slug string) *Item {
	it, ok := g.items[slug]
	if !ok {
		it = &Item{Slug: slug, Display: slug}
		g.items[slug] = it
	}
	return it
}

// Apply folds one fact into the graph.
func (g *Graph) Apply(f facts.Fact) {
	switch f.Kind {
	case facts.KindMenuItem:
		it := g.item(f.Slug)
		if !it.Listed {
			it.Listed = true
			g.order = append(g.order, f.Slug)
		}
		it.Removed = false
		if f.Display != "" {
			it.Display = f.Display
		}
		if f.Price != "" {
			it.Price = f.Price
		}

	case facts.KindItemDisplay:
		g.item(f.Slug).Display = f.Display

	case facts.KindPriceUpdate:
		g.item(f.Slug).Price = f.Price

	case facts.KindItemDescription:
		g.item(f.Slug).Description = f.Value

	case facts.KindRemovedItem:
		g.item(f.Slug).Removed = true

	case facts.KindCategory:
		for _, c := range g.categories {
			if c == f.Value {
				return
			}
		}
		g.categories = append(g.categories, f.Value)

	case facts.KindWallet, facts.KindDescription, facts.KindHours, facts.KindLocation:
		g.fields[f.Kind] = f.Value
	}
}

// Menu returns the non-removed listed items in first-seen order.
func (g *Graph) Menu() []MenuEntry {
	menu := make([]MenuEntry, 0, len(g.order))
	for _, slug := range g.order {
		it := g.items[slug]
		if it.Removed {
			continue
		}
		menu = append(menu, MenuEntry{
			Slug:        it.Slug,
			Display:     it.Display,
			Price:       it.Price,
			Description: it.Description,
		})
	}
	return menu
}

// Item returns the folded state of slug, including removed items.
func (g *Graph) Item(slug string) (Item, bool) {
	it, ok := g.items[slug]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// Field returns the latest value of a merchant-level field.
func (g *Graph) Field(kind facts.Kind) (string, bool) {
	v, ok := g.fields[kind]
	return v, ok
}

// Categories returns the distinct categories in first-seen order.
func (g *Graph) Categories() []string {
	return append([]string(nil), g.categories...)
}

// Empty reports whether no fact has been folded into the graph.
func (g *Graph) Empty() bool {
	return len(g.items) == 0 && len(g.fields) == 0 && len(g.categories) == 0
}
