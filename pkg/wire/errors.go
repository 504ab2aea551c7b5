package wire

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a connection failure. Recoverable kinds degrade a
// connection until they repeat past a threshold; the rest terminate it.
type ErrorKind uint8

const (
	// KindNone means no error has been recorded.
	KindNone ErrorKind = iota
	// KindTimeout is an activity or deadline timeout. Recoverable.
	KindTimeout
	// KindInvalidHeader is a malformed frame or address header.
	KindInvalidHeader
	// KindAuthFailed is a rejected or replayed handshake.
	KindAuthFailed
	// KindCryptoError is a failed codec transform.
	KindCryptoError
	// KindVersionMismatch is an unsupported protocol version.
	KindVersionMismatch
	// KindBufferOverflow is an input exceeding a frame or buffer limit.
	KindBufferOverflow
	// KindNetwork is a transient transport failure. Recoverable.
	KindNetwork
	// KindResourceLimit is a capacity or rate limit hit. Recoverable.
	KindResourceLimit
)

// Recoverable reports whether the kind degrades the connection instead of
// terminating it outright.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case KindTimeout, KindNetwork, KindResourceLimit:
		return true
	default:
		return false
	}
}

// String returns the kind name used in logs and stats.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTimeout:
		return "timeout"
	case KindInvalidHeader:
		return "invalid_header"
	case KindAuthFailed:
		return "auth_failed"
	case KindCryptoError:
		return "crypto_error"
	case KindVersionMismatch:
		return "version_mismatch"
	case KindBufferOverflow:
		return "buffer_overflow"
	case KindNetwork:
		return "network"
	case KindResourceLimit:
		return "resource_limit"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Kinds lists every concrete error kind, in taxonomy order.
func Kinds() []ErrorKind {
	return []ErrorKind{
		KindTimeout,
		KindInvalidHeader,
		KindAuthFailed,
		KindCryptoError,
		KindVersionMismatch,
		KindBufferOverflow,
		KindNetwork,
		KindResourceLimit,
	}
}

// MarshalText renders the kind name for JSON stats output.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *ErrorKind) UnmarshalText(text []byte) error {
	parsed, err := ParseErrorKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseErrorKind maps a kind name back to its value.
func ParseErrorKind(s string) (ErrorKind, error) {
	for _, k := range Kinds() {
		if k.String() == s {
			return k, nil
		}
	}
	if s == "none" {
		return KindNone, nil
	}
	return KindNone, fmt.Errorf("unknown error kind %q", s)
}

// Error is a failure carrying its taxonomy kind across the codec boundary.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a taxonomy error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the taxonomy kind from err. The second result is false
// when err carries no kind; callers at a dispatch boundary choose their own
// fallback kind.
func KindOf(err error) (ErrorKind, bool) {
	if err == nil {
		return KindNone, true
	}
	var we *Error
	if errors.As(err, &we) {
		return we.Kind, true
	}
	return KindNone, false
}
