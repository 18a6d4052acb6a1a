// Package inmemory provides a map-backed content store driver.
package inmemory

import (
	"context"
	"sync"

	"github.com/papercomputeco/escrowd/pkg/contentstore"
)

// Driver implements contentstore.Driver using an in-memory slice of records.
type Driver struct {
	// mu guards records and latest
	mu sync.RWMutex

	// records holds every insert in arrival order
	records []contentstore.Record

	// latest maps a content id to its newest record index
	latest map[contentstore.ContentID]int
}

// NewDriver creates a new in-memory content driver.
func NewDriver() *Driver {
	return &Driver{
		latest: make(map[contentstore.ContentID]int),
	}
}

// Insert appends a record without deduplication.
func (d *Driver) Insert(_ context.Context, rec contentstore.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.records = append(d.records, rec)
	d.latest[rec.ContentID] = len(d.records) - 1
	return nil
}

// Get retrieves the payload stored under id.
func (d *Driver) Get(_ context.Context, id contentstore.ContentID) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	idx, ok := d.latest[id]
	if !ok {
		return nil, contentstore.NotFoundError{ContentID: id}
	}

	payload := d.records[idx].Payload
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// Records returns a copy of every stored record.
func (d *Driver) Records() []contentstore.Record {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]contentstore.Record, len(d.records))
	copy(out, d.records)
	return out
}

// Count returns the number of stored records.
func (d *Driver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
