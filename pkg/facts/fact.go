package facts

import "fmt"

// Kind identifies the variant of a Fact.
type Kind int

const (
	KindUnknown Kind = iota

	// KindMenuItem lists a slug on the merchant menu. Appending one writes the
	// menu, item-display, and price lines together; replay yields the three
	// lines as MenuItem (slug only), ItemDisplay, and PriceUpdate facts.
	KindMenuItem
	KindItemDisplay
	KindPriceUpdate

	// KindRemovedItem is the tombstone hiding a slug from the menu.
	KindRemovedItem

	KindWallet
	KindDescription
	KindHours
	KindLocation
	KindItemDescription
	KindCategory
)

var kindNames = map[Kind]string{
	KindMenuItem:        "menu",
	KindItemDisplay:     "item-display",
	KindPriceUpdate:     "price",
	KindRemovedItem:     "removed-menu",
	KindWallet:          "merchant-wallet",
	KindDescription:     "merchant-desc",
	KindHours:           "merchant-hours",
	KindLocation:        "merchant-location",
	KindItemDescription: "item-desc",
	KindCategory:        "merchant-category",
}

// String returns the relation name used in the fact log.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsMerchantField reports whether k is a merchant-level field whose current
// value is the latest appended fact of that kind.
func (k Kind) IsMerchantField() bool {
	switch k {
	case KindWallet, KindDescription, KindHours, KindLocation:
		return true
	default:
		return false
	}
}

// ParseKind maps a relation name back to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindUnknown, false
}

// Fact is one atomic, append-only statement about a merchant.
type Fact struct {
	Kind Kind

	// Slug identifies the menu item for item-level kinds.
	Slug string

	// Display is the human readable item name (MenuItem, ItemDisplay).
	Display string

	// Price is the item price as written by the merchant (MenuItem, PriceUpdate).
	Price string

	// Value carries the text of merchant fields, item descriptions,
	// and categories.
	Value string
}

func MenuItem(slug, display, price string) Fact {
	return Fact{Kind: KindMenuItem, Slug: slug, Display: display, Price: price}
}

func ItemDisplay(slug, display string) Fact {
	return Fact{Kind: KindItemDisplay, Slug: slug, Display: display}
}

func PriceUpdate(slug, price string) Fact {
	return Fact{Kind: KindPriceUpdate, Slug: slug, Price: price}
}

func RemovedItem(slug string) Fact {
	return Fact{Kind: KindRemovedItem, Slug: slug}
}

func Wallet(addr string) Fact {
	return Fact{Kind: KindWallet, Value: addr}
}

func Description(text string) Fact {
	return Fact{Kind: KindDescription, Value: text}
}

func Hours(text string) Fact {
	return Fact{Kind: KindHours, Value: text}
}

func Location(text string) Fact {
	return Fact{Kind: KindLocation, Value: text}
}

func ItemDescription(slug, text string) Fact {
	return Fact{Kind: KindItemDescription, Slug: slug, Value: text}
}

func Category(text string) Fact {
	return Fact{Kind: KindCategory, Value: text}
}

// Field builds the merchant-level fact of kind k holding value.
func Field(k Kind, value string) (Fact, error) {
	if !k.IsMerchantField() && k != KindCategory {
		return Fact{}, fmt.Errorf("%s is not a merchant field", k)
	}
	return Fact{Kind: k, Value: value}, nil
}
