package portal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidCredentials
	KindNotOnNetwork
	KindParse
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotOnNetwork       = errors.New("not on campus network")
	ErrParse              = errors.New("unexpected portal markup")
	ErrUnknown            = errors.New("portal request failed")
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindNotOnNetwork:
		return "not_on_network"
	case KindParse:
		return "parse_error"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidCredentials:
		return ErrInvalidCredentials
	case KindNotOnNetwork:
		return ErrNotOnNetwork
	case KindParse:
		return ErrParse
	default:
		return ErrUnknown
	}
}

// Error is a classified portal failure. Op names the step that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind.sentinel())
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind.sentinel(), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the classification of err, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for _, k := range []Kind{KindInvalidCredentials, KindNotOnNetwork, KindParse} {
		if errors.Is(err, k.sentinel()) {
			return k
		}
	}
	return KindUnknown
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// classifyTransport maps a failed round trip onto the taxonomy. Anything that
// looks like the portal host being unreachable counts as off-network.
func classifyTransport(op string, err error) *Error {
	if errors.Is(err, context.Canceled) {
		return newError(KindUnknown, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindNotOnNetwork, op, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return newError(KindNotOnNetwork, op, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return newError(KindNotOnNetwork, op, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return newError(KindNotOnNetwork, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindNotOnNetwork, op, err)
	}
	return newError(KindUnknown, op, err)
}
