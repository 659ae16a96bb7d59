package websocket

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wmdanor/websoc/frame"
	"github.com/wmdanor/websoc/internal"
)

// Write sends p as a single unfragmented binary message. There is no
// buffering: every call produces exactly one frame on the wire.
func (c *Conn) Write(p []byte) (int, error) {
	err := c.WriteMessage(BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteText is Write with a text message.
func (c *Conn) WriteText(p []byte) (int, error) {
	err := c.WriteMessage(TextMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteMessage sends data as a single masked frame of the given data type.
func (c *Conn) WriteMessage(messageType MessageType, data []byte) error {
	if messageType != TextMessage && messageType != BinaryMessage {
		return fmt.Errorf("%w: message type must be text or binary, got %s", ErrInvalidMessage, messageType)
	}

	if c.sentConnClose {
		return ErrCloseSent
	}

	return c.writeFrame(messageType.Opcode(), data)
}

func (c *Conn) WriteClose(code CloseCode, message string) error {
	c.l.Debug("writing close message", zap.Uint16("code", code.U()), zap.String("message", message))
	return c.WriteControl(CloseMessage, CloseMessageData(code, message))
}

// WriteControl sends a close, ping or pong frame with at most 125 bytes of
// data. Only the first close frame is sent, later ones are skipped.
func (c *Conn) WriteControl(messageType MessageType, data []byte) error {
	if !messageType.Opcode().IsControl() {
		return fmt.Errorf("%w: message type must be close, ping or pong, got %s", ErrInvalidMessage, messageType)
	}
	if len(data) > frame.MaxControlPayloadLength {
		return fmt.Errorf("%w, received: %d", ErrControlTooLarge, len(data))
	}

	if messageType == CloseMessage && c.sentConnClose {
		c.l.Debug("already wrote close message, skipping")
		return nil
	}

	err := c.writeFrame(messageType.Opcode(), data)
	if err != nil {
		return fmt.Errorf("failed to write control frame: [%w]", err)
	}

	return nil
}

func (c *Conn) writeFrame(opcode frame.Opcode, data []byte) error {
	maskingKey, err := internal.NewMaskingKey(c.rand)
	if err != nil {
		return err
	}

	return c.WriteFrame(frame.NewMasked(opcode, data, maskingKey))
}

// WriteFrame writes f as is. Servers reject unmasked frames from clients, so
// callers should set IsMasked; Write and WriteMessage always do.
func (c *Conn) WriteFrame(f *frame.Frame) error {
	if c.err != nil {
		return c.err
	}
	if c.closed {
		return ErrConnClosed
	}

	c.writeHooks.fire(f)

	c.l.Debug("writing frame",
		zap.Stringer("opcode", f.Opcode),
		zap.Bool("fin", f.IsFinalFrame),
		zap.Bool("masked", f.IsMasked),
		zap.Uint64("length", f.PayloadLength()))

	_, err := f.WriteTo(c.transport)
	if err != nil {
		return c.fatal(fmt.Errorf("%w: [%w]", ErrTransport, err))
	}

	if f.Opcode == frame.OpcodeConnectionClose {
		c.sentConnClose = true
	}

	return nil
}
