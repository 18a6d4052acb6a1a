package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/escrowd/pkg/facts"
	"github.com/papercomputeco/escrowd/pkg/knowledge"
)

// MerchantConfig configures a MerchantRouter.
type MerchantConfig struct {
	Registry *knowledge.Registry

	// Negotiator answers free-form questions. Without one the router
	// replies with the menu summary.
	Negotiator Negotiator

	// DefaultScope is used when a batch carries no merchant_id hint.
	DefaultScope string

	Logger *slog.Logger
}

// MerchantRouter dispatches merchant-side message batches.
type MerchantRouter struct {
	registry     *knowledge.Registry
	negotiator   Negotiator
	defaultScope string
	logger       *slog.Logger
}

// NewMerchantRouter returns a MerchantRouter.
func NewMerchantRouter(cfg MerchantConfig) (*MerchantRouter, error) {
	if cfg.Registry == nil {
		return nil, errors.New("merchant router requires a knowledge registry")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MerchantRouter{
		registry:     cfg.Registry,
		negotiator:   cfg.Negotiator,
		defaultScope: cfg.DefaultScope,
		logger:       logger,
	}, nil
}

// Handle answers one batch. Only the last admin command of the batch is
// applied, before any query in the same batch is answered.
func (r *MerchantRouter) Handle(ctx context.Context, msgs []Message) (Response, error) {
	scope := r.defaultScope

	var (
		admin      *AdminCommand
		adminErr   error
		wantWallet bool
		wantMenu   bool
	)

	for _, m := range msgs {
		if id, ok := merchantHint(m); ok {
			scope = id
			continue
		}

		switch m.Role {
		case RoleAgent:
			cmd, ok, err := ParseAdminCommand(m.Content)
			if !ok {
				continue
			}
			admin, adminErr = nil, err
			if err == nil {
				admin = &cmd
			}
		case RoleQueryWallet:
			wantWallet = true
		case RoleQueryMenu, RoleListMenu:
			wantMenu = true
		}
	}

	if scope == "" {
		return errorResponse(errors.New("no merchant_id given")), nil
	}
	if _, err := facts.Label(scope); err != nil {
		r.logger.Warn("rejected merchant_id", "merchant_id", scope, "error", err)
		return errorResponse(err), nil
	}

	if adminErr != nil {
		r.logger.Warn("rejected admin command", "merchant_id", scope, "error", adminErr)
		return errorResponse(adminErr), nil
	}

	var summary string
	if admin != nil {
		if err := admin.Apply(ctx, r.registry, scope); err != nil {
			return Response{}, fmt.Errorf("applying %s for merchant %s: %w", admin.Kind, scope, err)
		}
		summary = admin.Summary()
		r.logger.Info("admin command applied", "merchant_id", scope, "command", string(admin.Kind))
	}

	switch {
	case wantWallet:
		wallet, _, err := r.registry.Field(ctx, scope, facts.KindWallet)
		if err != nil {
			return Response{}, err
		}
		return Response{Type: TypeWallet, Content: wallet}, nil

	case wantMenu:
		menu, err := r.registry.Menu(ctx, scope)
		if err != nil {
			return Response{}, err
		}
		return Response{Type: TypeMenu, Content: MenuContent{MerchantID: scope, Items: menu}}, nil
	}

	turns := conversation(msgs)
	if len(turns) == 0 {
		if summary == "" {
			summary = "nothing to do"
		}
		return chat(summary), nil
	}

	return r.answer(ctx, scope, turns)
}

func (r *MerchantRouter) answer(ctx context.Context, scope string, turns []Message) (Response, error) {
	profile, err := r.registry.Profile(ctx, scope)
	if err != nil {
		return Response{}, err
	}

	if r.negotiator == nil {
		return chat(menuSummary(profile)), nil
	}

	system, err := merchantPrompt(profile)
	if err != nil {
		return Response{}, err
	}

	decision, err := r.negotiator.Negotiate(ctx, NegotiationRequest{System: system, Messages: turns})
	if err != nil {
		r.logger.Error("merchant negotiation failed", "merchant_id", scope, "error", err)
		return errorResponse(err), nil
	}
	return chat(decision.Reply), nil
}

func merchantPrompt(p *knowledge.Profile) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding merchant profile: %w", err)
	}
	return "You are the ordering assistant for merchant " + p.Scope +
		". Answer only from this profile and quote prices exactly as listed.\n" + string(data), nil
}

func menuSummary(p *knowledge.Profile) string {
	if len(p.Menu) == 0 {
		return "the menu is empty"
	}
	lines := make([]string, 0, len(p.Menu))
	for _, it := range p.Menu {
		lines = append(lines, fmt.Sprintf("%s: %s", it.Display, it.Price))
	}
	return strings.Join(lines, "\n")
}
