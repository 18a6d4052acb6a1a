// Package contentstore persists order description payloads under
// self-describing content identifiers.
//
// A ContentID is a CIDv1 (base32, codec raw, multihash sha2-256). The raw
// 32 byte sha2-256 digest extracted from it is what gets recorded on the
// escrow ledger, and ContentIDOf rebuilds an equivalent identifier from that
// digest so ledger records can always be turned back into a retrievable
// reference.
package contentstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// DigestSize is the byte length of a sha2-256 digest.
const DigestSize = 32

// ContentID is a CIDv1 string reference to stored content.
type ContentID string

func (c ContentID) String() string {
	return string(c)
}

// Digest is the raw sha2-256 hash carried inside a ContentID.
type Digest [DigestSize]byte

// Hex returns the digest as a 0x-prefixed hex string.
func (d Digest) Hex() string {
	return "0x" + hex.EncodeToString(d[:])
}

// MarshalText encodes the digest as 0x-prefixed hex.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.Hex()), nil
}

// UnmarshalText decodes a hex digest.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Record is one persisted Store call. Identical payloads stored twice yield
// two records sharing one ContentID.
type Record struct {
	ContentID ContentID
	Label     string
	Payload   []byte
	CreatedAt time.Time
}

// Driver is the persistence backend for content records.
type Driver interface {
	// Insert appends a record. It never deduplicates.
	Insert(ctx context.Context, rec Record) error

	// Get returns the payload of the most recent record for id, or a
	// NotFoundError.
	Get(ctx context.Context, id ContentID) ([]byte, error)

	// Close releases any resources held by the driver.
	Close() error
}

// Store computes content identifiers and persists payloads through a Driver.
type Store struct {
	driver Driver
	logger *slog.Logger
	now    func() time.Time
}

// NewStore returns a Store over the given driver.
func NewStore(driver Driver, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		driver: driver,
		logger: logger,
		now:    time.Now,
	}
}

// Store persists payload under label and returns its content identifier.
// Driver failures are reported as ErrStorageUnavailable.
func (s *Store) Store(ctx context.Context, payload []byte, label string) (ContentID, error) {
	id, err := ComputeContentID(payload)
	if err != nil {
		return "", err
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)

	rec := Record{
		ContentID: id,
		Label:     label,
		Payload:   buf,
		CreatedAt: s.now().UTC(),
	}
	if err := s.driver.Insert(ctx, rec); err != nil {
		return "", fmt.Errorf("%w: storing %s: %w", ErrStorageUnavailable, id, err)
	}

	s.logger.Debug("stored content", "cid", id, "label", label, "bytes", len(payload))
	return id, nil
}

// Fetch returns the bytes stored under id.
func (s *Store) Fetch(ctx context.Context, id ContentID) ([]byte, error) {
	if _, err := DigestOf(id); err != nil {
		return nil, err
	}

	payload, err := s.driver.Get(ctx, id)
	if err != nil {
		var nf NotFoundError
		if errors.As(err, &nf) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: fetching %s: %w", ErrStorageUnavailable, id, err)
	}
	return payload, nil
}

// Close closes the underlying driver.
func (s *Store) Close() error {
	return s.driver.Close()
}

// ComputeContentID returns the CIDv1 raw sha2-256 identifier of payload.
func ComputeContentID(payload []byte) (ContentID, error) {
	mh, err := multihash.Sum(payload, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hashing payload: %w", err)
	}
	return ContentID(cid.NewCidV1(cid.Raw, mh).String()), nil
}

// DigestOf extracts the sha2-256 digest from a content identifier.
func DigestOf(id ContentID) (Digest, error) {
	var d Digest

	c, err := cid.Decode(string(id))
	if err != nil {
		return d, fmt.Errorf("%w: %q: %w", ErrMalformedContentID, id, err)
	}

	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return d, fmt.Errorf("%w: %q: %w", ErrMalformedContentID, id, err)
	}
	if decoded.Code != multihash.SHA2_256 {
		return d, fmt.Errorf("%w: %q: unsupported hash function %s", ErrMalformedContentID, id, multihash.Codes[decoded.Code])
	}
	if len(decoded.Digest) != DigestSize {
		return d, fmt.Errorf("%w: %q: digest is %d bytes", ErrMalformedContentID, id, len(decoded.Digest))
	}

	copy(d[:], decoded.Digest)
	return d, nil
}

// ContentIDOf rebuilds the CIDv1 raw sha2-256 identifier for a digest.
func ContentIDOf(d Digest) ContentID {
	// Encode only fails for unknown codes; SHA2_256 is always registered.
	mh, _ := multihash.Encode(d[:], multihash.SHA2_256)
	return ContentID(cid.NewCidV1(cid.Raw, multihash.Multihash(mh)).String())
}

// ParseDigest decodes a hex digest, with or without a 0x prefix.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("%w: digest %q: %w", ErrMalformedContentID, s, err)
	}
	if len(raw) != DigestSize {
		return d, fmt.Errorf("%w: digest is %d bytes", ErrMalformedContentID, len(raw))
	}
	copy(d[:], raw)
	return d, nil
}
