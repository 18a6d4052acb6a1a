package escrow

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed abi/escrow.json
var escrowABIJSON string

// Contract method and event names.
const (
	MethodProposeOrder            = "proposeOrder"
	MethodProposeOrderAnswer      = "proposeOrderAnswer"
	MethodConfirmOrder            = "confirmOrder"
	MethodFinalizeOrder           = "finalizeOrder"
	MethodCancelOrder             = "cancelOrder"
	MethodOffers                  = "offers"
	MethodGetUserOrderIDs         = "getUserOrderIds"
	MethodGetUserOrdersWithStatus = "getUserOrdersWithStatus"
	MethodGetUserOrdersByStatus   = "getUserOrdersByStatus"
	MethodHasUserOrder            = "hasUserOrder"
	MethodGetUserOrderStatus      = "getUserOrderStatus"
	MethodGetAgentController      = "getAgentController"
	MethodGetAgentFee             = "getAgentFee"

	EventOrderProposed  = "OrderProposed"
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderFinalized = "orderFinalized"
)

// Gas parameters used for every escrow transaction.
const (
	GasLimitPropose uint64 = 500_000
	GasLimitConfirm uint64 = 500_000
	GasLimitAnswer  uint64 = 300_000
	GasLimitCancel  uint64 = 300_000
	GasLimitFinal   uint64 = 300_000

	// GasPriceGwei is the fixed legacy gas price.
	GasPriceGwei = 20
)

// HoldPeriod is how long a confirmed order must wait before the buyer can
// cancel it.
const HoldPeriod = 600 * time.Second

var (
	parsedOnce sync.Once
	parsedABI  abi.ABI
	parseErr   error
)

// ABI returns the parsed escrow contract ABI.
func ABI() (abi.ABI, error) {
	parsedOnce.Do(func() {
		parsedABI, parseErr = abi.JSON(strings.NewReader(escrowABIJSON))
		if parseErr != nil {
			parseErr = fmt.Errorf("parsing escrow ABI: %w", parseErr)
		}
	})
	return parsedABI, parseErr
}

// ABIJSON returns the raw contract ABI document.
func ABIJSON() string {
	return escrowABIJSON
}
