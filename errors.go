package websocket

import (
	"errors"
	"fmt"

	"github.com/wmdanor/websoc/frame"
)

// Every error returned by Dial wraps ErrHandshakeFailure and one of the more
// specific kinds below.
var (
	ErrHandshakeFailure = errors.New("handshake failure")

	ErrInvalidURL              = errors.New("invalid url")
	ErrInvalidScheme           = errors.New("invalid scheme")
	ErrInvalidHeader           = errors.New("invalid request header")
	ErrTransport               = errors.New("transport error")
	ErrMalformedResponse       = errors.New("malformed handshake response")
	ErrRedirectWithoutLocation = errors.New("redirect without location header")
	ErrTooManyRedirects        = errors.New("too many redirects")
	ErrHandshakeRejected       = errors.New("handshake rejected")
)

// Frame level errors, aliased so callers do not need to import frame.
var (
	ErrTruncatedFrame = frame.ErrTruncatedFrame
	ErrMalformedFrame = frame.ErrMalformedFrame
	ErrFrameTooLarge  = frame.ErrFrameTooLarge
)

var (
	ErrConnClosed      = errors.New("connection closed")
	ErrCloseSent       = errors.New("close frame already sent")
	ErrInvalidMessage  = errors.New("invalid message type")
	ErrControlTooLarge = fmt.Errorf("control frame data must not exceed %d bytes", frame.MaxControlPayloadLength)
)

// UnexpectedStatusError is returned when the server answers the opening
// handshake with neither 101 nor a redirect.
type UnexpectedStatusError struct {
	Code   int
	Reason string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", ErrHandshakeFailure, e.Code, e.Reason)
}

func (e *UnexpectedStatusError) Is(target error) bool {
	return target == ErrHandshakeFailure
}

func handshakeErr(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrHandshakeFailure, kind, fmt.Sprintf(format, args...))
}

func wrapHandshakeErr(kind error, msg string, err error) error {
	return fmt.Errorf("%w: %w: %s: [%w]", ErrHandshakeFailure, kind, msg, err)
}
