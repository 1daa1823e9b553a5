package transport

import (
	"errors"
	"fmt"
	"net"
)

var (
	ErrNoAddress     = errors.New("transport: no address configured")
	ErrInvalidMethod = errors.New("transport: invalid request method")
	ErrInvalidPath   = errors.New("transport: invalid request path")
	ErrClosed        = errors.New("transport: transport closed")

	// ErrConnect is returned when no connection could be established to the
	// picked address. The pool is never populated in that case.
	ErrConnect = errors.New("transport: connection failed")
	ErrWrite   = errors.New("transport: write failed")
	ErrRead    = errors.New("transport: read failed")

	// ErrTimeout means the request budget was exhausted before the current
	// phase completed.
	ErrTimeout = errors.New("transport: timeout budget exhausted")

	ErrMalformedStatus  = errors.New("transport: malformed status line")
	ErrMalformedHeader  = errors.New("transport: malformed header line")
	ErrAmbiguousFraming = errors.New("transport: ambiguous repeated framing header")
	ErrMalformedChunk   = errors.New("transport: malformed chunk")
	ErrShortBody        = errors.New("transport: body shorter than declared length")
	ErrUnknownFraming   = errors.New("transport: cannot determine body framing")
	ErrLineTooLong      = errors.New("transport: line too long")
	ErrBodyTooLarge     = errors.New("transport: body too large")
)

// OpError describes a failure on the connection to Addr during Op, which is
// one of "dial", "write" or "read".
type OpError struct {
	Op   string
	Addr string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("transport: %s %s: %s", e.Op, e.Addr, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// ioError classifies a raw I/O error, turning socket deadline errors into
// ErrTimeout and anything else into kind.
func ioError(kind, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// isTimeout reports whether err ended up as a budget timeout.
func isTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
