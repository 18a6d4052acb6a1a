package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	pendingFile = "pending.json"
)

// PendingSettlement is an order that exists on-chain but whose settlement
// stopped after the proposal step. Operators resume it with
// "escrowd order resume".
type PendingSettlement struct {
	OrderID    string    `json:"order_id"`
	Step       string    `json:"step"`
	Buyer      string    `json:"buyer"`
	MerchantID string    `json:"merchant_id,omitempty"`
	Price      string    `json:"price"`
	Reason     string    `json:"reason"`
	RecordedAt time.Time `json:"recorded_at"`
}

// LoadPending returns the pending settlements in .escrowd/pending.json,
// sorted by order id. Returns nil, nil if nothing was ever recorded.
func (m *Manager) LoadPending(overrideDir string) ([]PendingSettlement, error) {
	entries, err := m.readPending(overrideDir)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	out := make([]PendingSettlement, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })

	return out, nil
}

// RecordPending upserts a pending settlement keyed by its order id.
func (m *Manager) RecordPending(entry PendingSettlement, overrideDir string) error {
	if entry.OrderID == "" {
		return errors.New("cannot record pending settlement without order id")
	}

	entries, err := m.readPending(overrideDir)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = make(map[string]PendingSettlement)
	}

	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	entries[entry.OrderID] = entry

	return m.writePending(entries, overrideDir)
}

// ClearPending removes the pending settlement for orderID.
// Returns nil if the order was not pending.
func (m *Manager) ClearPending(orderID string, overrideDir string) error {
	entries, err := m.readPending(overrideDir)
	if err != nil {
		return err
	}
	if _, ok := entries[orderID]; !ok {
		return nil
	}

	delete(entries, orderID)
	return m.writePending(entries, overrideDir)
}

func (m *Manager) readPending(overrideDir string) (map[string]PendingSettlement, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, pendingFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading pending settlements: %w", err)
	}

	entries := make(map[string]PendingSettlement)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing pending settlements: %w", err)
	}

	return entries, nil
}

func (m *Manager) writePending(entries map[string]PendingSettlement, overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling pending settlements: %w", err)
	}

	path := filepath.Join(dir, pendingFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing pending settlements: %w", err)
	}

	return nil
}
