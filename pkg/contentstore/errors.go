package contentstore

import "errors"

var (
	// ErrStorageUnavailable wraps driver failures so callers can retry.
	ErrStorageUnavailable = errors.New("content storage unavailable")

	// ErrMalformedContentID is returned when a content identifier or digest
	// cannot be decoded.
	ErrMalformedContentID = errors.New("malformed content id")
)

// NotFoundError is returned when no record exists for a content identifier.
type NotFoundError struct {
	ContentID ContentID
}

func (e NotFoundError) Error() string {
	if e.ContentID == "" {
		return "content not found"
	}

	return "content not found: " + string(e.ContentID)
}
