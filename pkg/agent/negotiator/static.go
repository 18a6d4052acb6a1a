package negotiator

import (
	"context"
	"sync"

	"github.com/papercomputeco/escrowd/pkg/agent"
)

// Static replays a fixed script of decisions and then repeats Fallback.
// It backs offline runs and tests.
type Static struct {
	mu       sync.Mutex
	script   []agent.Decision
	fallback string
	requests []agent.NegotiationRequest
}

// NewStatic returns a Static negotiator.
func NewStatic(fallback string, script ...agent.Decision) *Static {
	return &Static{script: script, fallback: fallback}
}

// Negotiate returns the next scripted decision.
func (s *Static) Negotiate(_ context.Context, req agent.NegotiationRequest) (agent.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if len(s.script) == 0 {
		return agent.Decision{Reply: s.fallback}, nil
	}
	next := s.script[0]
	s.script = s.script[1:]
	return next, nil
}

// Requests returns every request seen so far.
func (s *Static) Requests() []agent.NegotiationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agent.NegotiationRequest(nil), s.requests...)
}
