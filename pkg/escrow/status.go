package escrow

import (
	"fmt"
	"strings"
)

// Status is an order state as encoded by the escrow contract.
type Status uint8

// Contract status codes.
const (
	// StatusProposed: the agent answered with a price and seller.
	StatusProposed Status = 0
	// StatusConfirmed: the buyer paid price plus fee into escrow.
	StatusConfirmed Status = 1
	// StatusInProgress: the order exists but has no answer yet.
	StatusInProgress Status = 2
	// StatusCompleted: funds were released to the seller.
	StatusCompleted Status = 3
	// StatusCancelled: the buyer was refunded after the hold period.
	StatusCancelled Status = 4
)

var statusNames = map[Status]string{
	StatusProposed:   "Proposed",
	StatusConfirmed:  "Confirmed",
	StatusInProgress: "InProgress",
	StatusCompleted:  "Completed",
	StatusCancelled:  "Cancelled",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStatus, uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name or numeric code.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StatusFromCode validates a raw contract status code.
func StatusFromCode(code uint8) (Status, error) {
	s := Status(code)
	if _, ok := statusNames[s]; !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownStatus, code)
	}
	return s, nil
}

// ParseStatus accepts a status name (case-insensitive, with or without
// separators) or its numeric code.
func ParseStatus(v string) (Status, error) {
	norm := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(v))
	for s, name := range statusNames {
		if strings.ToLower(name) == norm {
			return s, nil
		}
	}
	if len(norm) == 1 && norm[0] >= '0' && norm[0] <= '9' {
		return StatusFromCode(norm[0] - '0')
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, v)
}

// stage is the position of a status along the order lifecycle.
func (s Status) stage() int {
	switch s {
	case StatusInProgress:
		return 0
	case StatusProposed:
		return 1
	case StatusConfirmed:
		return 2
	case StatusCompleted, StatusCancelled:
		return 3
	default:
		return -1
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether the contract allows moving from one status
// to the next. Cancelled is only reachable from Confirmed, and the hold
// period is checked separately.
func CanTransition(from, to Status) bool {
	switch {
	case from == StatusInProgress && to == StatusProposed:
		return true
	case from == StatusProposed && to == StatusConfirmed:
		return true
	case from == StatusConfirmed && (to == StatusCompleted || to == StatusCancelled):
		return true
	default:
		return false
	}
}

// Regresses reports whether observing next after prev moves an order
// backwards along its lifecycle.
func Regresses(prev, next Status) bool {
	if prev.Terminal() {
		return next != prev
	}
	return next.stage() < prev.stage()
}
