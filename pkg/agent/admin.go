package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/papercomputeco/escrowd/pkg/escrow"
	"github.com/papercomputeco/escrowd/pkg/facts"
	"github.com/papercomputeco/escrowd/pkg/knowledge"
)

// ErrMalformedCommand is returned for admin commands with missing or invalid
// arguments.
var ErrMalformedCommand = errors.New("malformed admin command")

// AdminKind names an admin command.
type AdminKind string

// Admin commands, by wire prefix.
const (
	AdminSetWallet          AdminKind = "set_wallet"
	AdminAddItem            AdminKind = "add_item"
	AdminUpdatePrice        AdminKind = "update_price"
	AdminRemoveItem         AdminKind = "remove_item"
	AdminSetDescription     AdminKind = "set_desc"
	AdminSetHours           AdminKind = "set_hours"
	AdminSetLocation        AdminKind = "set_location"
	AdminSetItemDescription AdminKind = "set_item_desc"
	AdminAddCategory        AdminKind = "add_category"
)

var adminKinds = []AdminKind{
	AdminSetWallet,
	AdminAddItem,
	AdminUpdatePrice,
	AdminRemoveItem,
	AdminSetDescription,
	AdminSetHours,
	AdminSetLocation,
	AdminSetItemDescription,
	AdminAddCategory,
}

// AdminCommand is one parsed merchant admin command. Slug and Display are
// set for item commands, Price for add_item and update_price, Value for
// everything else.
type AdminCommand struct {
	Kind    AdminKind
	Slug    string
	Display string
	Price   decimal.Decimal
	Value   string
}

// Slugify turns an item name into its menu slug.
func Slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// ParseAdminCommand parses a colon-delimited admin command. The bool is
// false when s is not an admin command at all.
func ParseAdminCommand(s string) (AdminCommand, bool, error) {
	s = strings.TrimSpace(s)

	var kind AdminKind
	var rest string
	for _, k := range adminKinds {
		if after, ok := strings.CutPrefix(s, string(k)+":"); ok {
			kind, rest = k, after
			break
		}
	}
	if kind == "" {
		return AdminCommand{}, false, nil
	}

	cmd := AdminCommand{Kind: kind}
	malformed := func(reason string) (AdminCommand, bool, error) {
		return AdminCommand{}, true, fmt.Errorf("%w: %s: %s", ErrMalformedCommand, kind, reason)
	}

	switch kind {
	case AdminAddItem, AdminUpdatePrice:
		i := strings.LastIndex(rest, ":")
		if i < 0 {
			return malformed("expected <name>:<price>")
		}
		name := strings.TrimSpace(rest[:i])
		if name == "" {
			return malformed("empty item name")
		}
		price, err := decimal.NewFromString(strings.TrimSpace(rest[i+1:]))
		if err != nil || !price.IsPositive() {
			return malformed(fmt.Sprintf("invalid price %q", rest[i+1:]))
		}
		cmd.Slug, cmd.Display, cmd.Price = Slugify(name), name, price

	case AdminRemoveItem:
		name := strings.TrimSpace(rest)
		if name == "" {
			return malformed("empty item name")
		}
		cmd.Slug, cmd.Display = Slugify(name), name

	case AdminSetItemDescription:
		name, text, ok := strings.Cut(rest, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return malformed("expected <name>:<text>")
		}
		cmd.Slug, cmd.Display, cmd.Value = Slugify(name), strings.TrimSpace(name), strings.TrimSpace(text)

	case AdminSetWallet:
		if _, err := escrow.ParseAddress(rest); err != nil {
			return AdminCommand{}, true, fmt.Errorf("%w: %s: %w", ErrMalformedCommand, kind, err)
		}
		cmd.Value = strings.TrimSpace(rest)

	default:
		cmd.Value = strings.TrimSpace(rest)
		if cmd.Value == "" {
			return malformed("empty value")
		}
	}

	return cmd, true, nil
}

var fieldKinds = map[AdminKind]facts.Kind{
	AdminSetWallet:      facts.KindWallet,
	AdminSetDescription: facts.KindDescription,
	AdminSetHours:       facts.KindHours,
	AdminSetLocation:    facts.KindLocation,
	AdminAddCategory:    facts.KindCategory,
}

// Apply executes the command against scope.
func (c AdminCommand) Apply(ctx context.Context, reg *knowledge.Registry, scope string) error {
	switch c.Kind {
	case AdminAddItem:
		return reg.AddOrUpdateItem(ctx, scope, c.Slug, c.Display, c.Price.String())
	case AdminUpdatePrice:
		return reg.UpdatePrice(ctx, scope, c.Slug, c.Price.String())
	case AdminRemoveItem:
		return reg.RemoveItem(ctx, scope, c.Slug)
	case AdminSetItemDescription:
		return reg.SetItemDescription(ctx, scope, c.Slug, c.Value)
	}

	kind, ok := fieldKinds[c.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", ErrMalformedCommand, c.Kind)
	}
	return reg.SetField(ctx, scope, kind, c.Value)
}

// Summary describes the applied command for the chat reply.
func (c AdminCommand) Summary() string {
	switch c.Kind {
	case AdminAddItem:
		return fmt.Sprintf("added %s at %s", c.Display, c.Price)
	case AdminUpdatePrice:
		return fmt.Sprintf("updated %s to %s", c.Slug, c.Price)
	case AdminRemoveItem:
		return "removed " + c.Slug
	case AdminSetItemDescription:
		return "updated description of " + c.Slug
	case AdminSetWallet:
		return "wallet set to " + c.Value
	case AdminAddCategory:
		return "added category " + c.Value
	default:
		return fmt.Sprintf("%s updated", strings.TrimPrefix(string(c.Kind), "set_"))
	}
}
