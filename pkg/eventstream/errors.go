package eventstream

import "errors"

// ErrNilOrderEvent indicates a nil order event payload was provided to a publisher.
var ErrNilOrderEvent = errors.New("nil order event")
