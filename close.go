package websocket

import (
	"encoding/binary"
	"fmt"
	"slices"
	"unicode/utf8"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wmdanor/websoc/frame"
)

type CloseCode uint16

// Close codes defined in RFC 6455, section 11.7.
const (
	CloseNormalClosure           CloseCode = 1000
	CloseGoingAway               CloseCode = 1001
	CloseProtocolError           CloseCode = 1002
	CloseUnsupportedData         CloseCode = 1003
	CloseNoStatusReceived        CloseCode = 1005
	CloseAbnormalClosure         CloseCode = 1006
	CloseInvalidFramePayloadData CloseCode = 1007
	ClosePolicyViolation         CloseCode = 1008
	CloseMessageTooBig           CloseCode = 1009
	CloseMandatoryExtension      CloseCode = 1010
	CloseInternalServerErr       CloseCode = 1011
	CloseServiceRestart          CloseCode = 1012
	CloseTryAgainLater           CloseCode = 1013
	CloseTLSHandshake            CloseCode = 1015
)

var (
	validCloseCodes []CloseCode = []CloseCode{
		CloseNormalClosure,
		CloseGoingAway,
		CloseProtocolError,
		CloseUnsupportedData,
		CloseInvalidFramePayloadData,
		ClosePolicyViolation,
		CloseMessageTooBig,
		CloseMandatoryExtension,
		CloseInternalServerErr,
		CloseServiceRestart,
		CloseTryAgainLater,
	}
)

func (c CloseCode) U() uint16 {
	return uint16(c)
}

func NewCloseCode(code uint16) (c CloseCode, ok bool) {
	c = CloseCode(code)
	ok = c.IsValid()
	return
}

// IsValid reports whether c may appear in a close frame.
func (c CloseCode) IsValid() bool {
	return slices.Contains(validCloseCodes, c) || (c >= 3000 && c <= 4999)
}

// CloseStatus is what the peer sent in its close frame.
type CloseStatus struct {
	Code   CloseCode
	Reason string
}

func CloseMessageData(code CloseCode, message string) []byte {
	b := make([]byte, 2, 2+len(message))
	binary.BigEndian.PutUint16(b, code.U())
	return append(b, message...)
}

// parseCloseFrameData always returns the status as received, the error tells
// whether the payload was a valid close payload.
func parseCloseFrameData(data []byte) (*CloseStatus, error) {
	switch {
	case len(data) == 0:
		return &CloseStatus{Code: CloseNoStatusReceived}, nil
	case len(data) == 1:
		return &CloseStatus{}, fmt.Errorf("%w: close frame must either have 0 or 2+ payload length, but received 1", frame.ErrMalformedFrame)
	}

	status := &CloseStatus{Code: CloseCode(binary.BigEndian.Uint16(data)), Reason: string(data[2:])}

	if !status.Code.IsValid() {
		return status, fmt.Errorf("%w: received invalid close code: %d", frame.ErrMalformedFrame, status.Code)
	}
	if !utf8.Valid(data[2:]) {
		return status, fmt.Errorf("%w: close frame reason in data must be valid UTF-8 encoded string", frame.ErrMalformedFrame)
	}

	return status, nil
}

// CloseStatus returns the status of the close frame received from the peer.
// ok is false when none was received yet, or when the received payload
// carried an unassigned code or a reason that is not UTF-8; status then holds
// the raw code and reason.
func (c *Conn) CloseStatus() (status CloseStatus, ok bool) {
	if c.closeStatus == nil {
		return CloseStatus{}, false
	}
	return *c.closeStatus, c.closeStatusErr == nil
}

// CloseStatusError is why the received close payload was rejected, if it was.
func (c *Conn) CloseStatusError() error {
	return c.closeStatusErr
}

// Close sends a normal closure frame unless a close frame was already sent or
// the session failed, then closes the transport. It does not wait for the
// peer's close frame. Calling Close more than once is a no-op.
func (c *Conn) Close() error {
	return c.CloseWithCode(CloseNormalClosure, "")
}

// CloseWithCode is Close with an explicit close code and reason.
func (c *Conn) CloseWithCode(code CloseCode, message string) error {
	if c.closed {
		return nil
	}

	c.l.Debug("closing websocket connection")

	var err error
	if !c.sentConnClose && c.err == nil {
		err = c.WriteClose(code, message)
	}

	c.closed = true

	err = multierr.Append(err, c.transport.Close())
	if err != nil {
		c.l.Debug("websocket connection closed with error", zap.Error(err))
		return fmt.Errorf("failed to close connection: [%w]", err)
	}

	c.l.Debug("websocket connection closed")

	return nil
}
