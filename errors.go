package amqp

import (
	"fmt"

	"github.com/szarykott/goamqp/internal/errs"
)

// Kind classifies a failure according to the taxonomy in the core's error
// handling design: some kinds are connection-fatal, some are scoped to a
// single channel, and some never affect liveness at all.
type Kind int

const (
	// KindAuthenticationFailure: the broker rejected the SASL exchange.
	KindAuthenticationFailure Kind = iota
	// KindProtocolVersionMismatch: the broker advertised an incompatible
	// AMQP major/minor version during the header exchange.
	KindProtocolVersionMismatch
	// KindNetworkError: a transport-level failure (dial, read, write).
	KindNetworkError
	// KindHardProtocolException: a connection-fatal protocol violation.
	KindHardProtocolException
	// KindSoftProtocolException: a channel-fatal protocol violation.
	KindSoftProtocolException
	// KindAlreadyClosed: an operation was attempted against a connection or
	// channel that has already finished closing.
	KindAlreadyClosed
	// KindTimeout: an RPC or a close/abort call did not complete within its
	// configured deadline. Never fatal to the connection by itself.
	KindTimeout
	// KindChannelExhausted: every channel number up to channel_max is in use.
	KindChannelExhausted
	// KindObjectDisposed: an operation was attempted against a handle whose
	// underlying resources have already been released.
	KindObjectDisposed
)

func (k Kind) String() string {
	switch k {
	case KindAuthenticationFailure:
		return "authentication_failure"
	case KindProtocolVersionMismatch:
		return "protocol_version_mismatch"
	case KindNetworkError:
		return "network_error"
	case KindHardProtocolException:
		return "hard_protocol_exception"
	case KindSoftProtocolException:
		return "soft_protocol_exception"
	case KindAlreadyClosed:
		return "already_closed"
	case KindTimeout:
		return "timeout"
	case KindChannelExhausted:
		return "channel_exhausted"
	case KindObjectDisposed:
		return "object_disposed"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every operation in this
// module. It always carries a Kind so callers can branch with errors.As
// without string-matching messages.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func newErrorf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is allows errors.Is(err, ErrAlreadyClosed) style comparisons against the
// package-level sentinels below, matching on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel errors for errors.Is comparisons; every *Error constructed by
// this package compares equal to the sentinel matching its Kind.
var (
	ErrAuthenticationFailure    = &Error{Kind: KindAuthenticationFailure}
	ErrProtocolVersionMismatch  = &Error{Kind: KindProtocolVersionMismatch}
	ErrNetworkError             = &Error{Kind: KindNetworkError}
	ErrHardProtocolException    = &Error{Kind: KindHardProtocolException}
	ErrSoftProtocolException    = &Error{Kind: KindSoftProtocolException}
	ErrAlreadyClosed            = &Error{Kind: KindAlreadyClosed}
	ErrTimeout                  = &Error{Kind: KindTimeout}
	ErrChannelExhausted         = &Error{Kind: KindChannelExhausted}
	ErrObjectDisposed           = &Error{Kind: KindObjectDisposed}
)

// wrapStack attaches a captured stack trace to err for diagnostic logging,
// without changing its errors.Is / errors.As behaviour.
func wrapStack(err error) error {
	return errs.WithStack(err)
}

// Initiator identifies who triggered a shutdown.
type Initiator int

const (
	// InitiatorLibrary: the library itself initiated the shutdown (e.g. a
	// hard protocol exception, heartbeat starvation, network error).
	InitiatorLibrary Initiator = iota
	// InitiatorPeer: the broker closed the connection or channel.
	InitiatorPeer
	// InitiatorApplication: the user called Close/Abort.
	InitiatorApplication
)

func (i Initiator) String() string {
	switch i {
	case InitiatorLibrary:
		return "library"
	case InitiatorPeer:
		return "peer"
	case InitiatorApplication:
		return "application"
	default:
		return "unknown"
	}
}

// ShutdownReason is immutable once attached to a connection or channel: it
// is the single source of truth for why a state transitioned to Closed.
type ShutdownReason struct {
	Initiator Initiator
	ReplyCode uint16
	ReplyText string
	Cause     error
}

func (r *ShutdownReason) Error() string {
	if r == nil {
		return "<no reason>"
	}
	if r.Cause != nil {
		return fmt.Sprintf("%s close, code=%d text=%q: %s", r.Initiator, r.ReplyCode, r.ReplyText, r.Cause)
	}
	return fmt.Sprintf("%s close, code=%d text=%q", r.Initiator, r.ReplyCode, r.ReplyText)
}

// endOfStreamReason builds the canonical ShutdownReason used when the main
// loop observes socket closure or heartbeat starvation: reply_code=0,
// reply_text "End of stream".
func endOfStreamReason(cause error) *ShutdownReason {
	return &ShutdownReason{Initiator: InitiatorLibrary, ReplyCode: 0, ReplyText: "End of stream", Cause: cause}
}
