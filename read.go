package websocket

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/wmdanor/websoc/frame"
)

// ReadFrame reads the next frame off the wire as is. Control frames are not
// answered; ping handling is up to the caller on this path.
//
// Read hooks see every decoded frame, including one that is then rejected
// as an invalid control frame.
func (c *Conn) ReadFrame() (*frame.Frame, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.closed {
		return nil, ErrConnClosed
	}

	f, err := frame.ReadLimit(c.r, c.readLimit)
	if err == io.EOF {
		return nil, c.fatal(fmt.Errorf("transport closed without close frame: [%w]", io.ErrUnexpectedEOF))
	}
	if err != nil {
		return nil, c.fatal(fmt.Errorf("failed to read frame: [%w]", err))
	}

	c.l.Debug("read frame",
		zap.Stringer("opcode", f.Opcode),
		zap.Bool("fin", f.IsFinalFrame),
		zap.Bool("masked", f.IsMasked),
		zap.Uint64("length", f.PayloadLength()))

	c.readHooks.fire(f)

	err = f.ValidateControl()
	if err != nil {
		return nil, c.fatal(err)
	}

	if f.Opcode == frame.OpcodeConnectionClose {
		c.recvConnClose = true
		c.closeStatus, c.closeStatusErr = parseCloseFrameData(f.ApplicationData)
		if c.closeStatusErr != nil {
			c.l.Debug("received close frame with invalid payload", zap.Error(c.closeStatusErr))
		} else {
			c.l.Debug("received close frame", zap.Uint16("code", c.closeStatus.Code.U()), zap.String("reason", c.closeStatus.Reason))
		}
	}

	return f, nil
}

// Read reads the payload of data messages as one continuous stream. Ping
// frames are answered with a pong and pong frames are skipped. A close frame
// ends the stream: once the buffered bytes are drained Read returns io.EOF.
func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	// the buffer may hold part of an unfinished message
	if c.err != nil {
		return 0, c.err
	}

	for c.buffered == 0 {
		if c.recvConnClose {
			return 0, io.EOF
		}

		err := c.fillBuffer()
		if err != nil {
			return 0, err
		}
	}

	return c.drain(p), nil
}

// Buffered is the number of bytes already reassembled and not yet read.
func (c *Conn) Buffered() int {
	return c.buffered
}

// fillBuffer reads frames until the end of a message or a close frame.
func (c *Conn) fillBuffer() error {
	for {
		f, err := c.ReadFrame()
		if err != nil {
			return err
		}

		switch f.Opcode {
		case frame.OpcodeConnectionClose:
			return nil
		case frame.OpcodePing:
			if c.sentConnClose {
				c.l.Debug("close frame already sent, not answering ping")
				continue
			}
			c.l.Debug("answering ping", zap.Int("length", len(f.ApplicationData)))
			err = c.WriteControl(PongMessage, f.ApplicationData)
			if err != nil {
				return fmt.Errorf("failed to write pong message: [%w]", err)
			}
			continue
		case frame.OpcodePong:
			continue
		}

		switch {
		case f.Opcode == frame.OpcodeContinuationFrame && !c.inMessage:
			return c.fatal(fmt.Errorf("%w: continuation frame without a message in progress", frame.ErrMalformedFrame))
		case f.Opcode != frame.OpcodeContinuationFrame && c.inMessage:
			return c.fatal(fmt.Errorf("%w: expected continuation frame, got %s", frame.ErrMalformedFrame, f.Opcode))
		}
		c.inMessage = !f.IsFinalFrame

		if len(f.ApplicationData) > 0 {
			c.buf.Add(f.ApplicationData)
			c.buffered += len(f.ApplicationData)
		}

		if f.IsFinalFrame {
			return nil
		}
	}
}

func (c *Conn) drain(p []byte) int {
	n := 0

	for n < len(p) && c.buf.Length() > 0 {
		chunk := c.buf.Peek().([]byte)

		copied := copy(p[n:], chunk[c.bufOffset:])
		n += copied
		c.bufOffset += copied

		if c.bufOffset == len(chunk) {
			c.buf.Remove()
			c.bufOffset = 0
		}
	}

	c.buffered -= n

	return n
}
