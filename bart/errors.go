package bart

import (
	"errors"
	"fmt"
)

// Kind discriminates the failure classes surfaced by the client.
// Handlers collapse all kinds into one wire envelope, but keep the
// kind for logging and metrics.
type Kind int

const (
	KindTransport Kind = iota + 1 // upstream unreachable or non-2xx
	KindDecode                    // upstream payload malformed
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error tags an upstream failure with its kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of err, or 0 if err carries no kind.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
