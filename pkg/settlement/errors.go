package settlement

import (
	"errors"
	"fmt"
)

// Remote merchant agent errors.
var (
	ErrRemoteAgentTimeout     = errors.New("merchant agent timed out")
	ErrRemoteAgentUnavailable = errors.New("merchant agent unavailable")
)

// ErrUnresolvedSellerWallet is returned when neither the merchant nor the
// configured default provide a valid seller address.
var ErrUnresolvedSellerWallet = errors.New("unresolved seller wallet")

// Settlement steps that can fail after the order exists on-chain.
const (
	StepResolveWallet = "resolve_wallet"
	StepProposeAnswer = "propose_answer"
	StepBuildConfirm  = "build_confirm"
)

// PartialSettlementError reports an order that was created on-chain but
// whose settlement stopped at Step. The order is left as is for an operator
// to resume.
type PartialSettlementError struct {
	OrderID string
	Step    string
	Err     error
}

func (e *PartialSettlementError) Error() string {
	return fmt.Sprintf("order %s created on-chain but settlement partially succeeded, stopped at %s: %v", e.OrderID, e.Step, e.Err)
}

func (e *PartialSettlementError) Unwrap() error {
	return e.Err
}
