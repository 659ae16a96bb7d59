package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/wmdanor/websoc/internal"
)

/*
  0                   1                   2                   3
  0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
 +-+-+-+-+-------+-+-------------+-------------------------------+
 |F|R|R|R| opcode|M| Payload len |    Extended payload length    |
 |I|S|S|S|  (4)  |A|     (7)     |             (16/64)           |
 |N|V|V|V|       |S|             |   (if payload len==126/127)   |
 | |1|2|3|       |K|             |                               |
 +-+-+-+-+-------+-+-------------+ - - - - - - - - - - - - - - - +
 |     Extended payload length continued, if payload len == 127  |
 + - - - - - - - - - - - - - - - +-------------------------------+
 |                               |Masking-key, if MASK set to 1  |
 +-------------------------------+-------------------------------+
 | Masking-key (continued)       |          Payload Data         |
 +-------------------------------- - - - - - - - - - - - - - - - +
 :                     Payload Data continued ...                :
 + - - - - - - - - - - - - - - - - - - - - - - - - - - - - - - - +
 |                     Payload Data continued ...                |
 +---------------------------------------------------------------+
*/

const (
	MaxControlPayloadLength = 125

	// 2 fixed bytes, 8 bytes of extended length, 4 bytes of masking key
	MaxHeaderSize = 14

	payloadLength16 = 126
	payloadLength64 = 127

	// payload is read in chunks of at most this size so that a bogus
	// length does not allocate everything upfront
	readChunkSize = 64 * 1024
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrTruncatedFrame = fmt.Errorf("truncated frame: [%w]", io.ErrUnexpectedEOF)
	ErrFrameTooLarge  = fmt.Errorf("%w: payload length exceeds read limit", ErrMalformedFrame)
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFrame, fmt.Sprintf(format, args...))
}

// Frame is a single decoded frame. ApplicationData always holds the unmasked
// payload; MaskingKey is only applied on the wire.
type Frame struct {
	// 1 bit, is the final fragment in a message
	IsFinalFrame bool
	// 4 bits
	Opcode Opcode
	// 1 bit
	IsMasked bool
	// 0 or 4 bytes on the wire
	MaskingKey [4]byte
	// PayloadLength bytes, never masked
	ApplicationData []byte
}

// New returns an unfragmented, unmasked frame.
func New(opcode Opcode, data []byte) *Frame {
	return &Frame{
		IsFinalFrame:    true,
		Opcode:          opcode,
		ApplicationData: data,
	}
}

// NewMasked returns an unfragmented frame that is masked with key on the wire.
func NewMasked(opcode Opcode, data []byte, key [4]byte) *Frame {
	return &Frame{
		IsFinalFrame:    true,
		Opcode:          opcode,
		IsMasked:        true,
		MaskingKey:      key,
		ApplicationData: data,
	}
}

func (f *Frame) PayloadLength() uint64 {
	return uint64(len(f.ApplicationData))
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame{fin: %t, opcode: %s, masked: %t, length: %d}",
		f.IsFinalFrame, f.Opcode, f.IsMasked, f.PayloadLength())
}

// Read decodes one frame from r.
//
// io.EOF is returned as is only when r ends before the first byte of the
// frame. A stream that ends in the middle of a frame yields ErrTruncatedFrame.
func Read(r io.Reader) (*Frame, error) {
	return ReadLimit(r, 0)
}

// ReadLimit is Read that rejects frames with a payload longer than limit
// bytes with ErrFrameTooLarge. A limit of 0 disables the check.
func ReadLimit(r io.Reader, limit uint64) (*Frame, error) {
	var h [MaxHeaderSize]byte

	err := readFull(r, h[:2], true)
	if err != nil {
		return nil, err
	}
	b0, b1 := h[0], h[1]

	f := Frame{}
	f.IsFinalFrame = b0&0b1_000_0000 != 0
	f.Opcode = Opcode(b0 & 0b0_000_1111)

	if b0&0b0_111_0000 != 0 {
		return nil, malformed("RSV bits must be 0 as extensions are not supported, got %03b", b0&0b0_111_0000>>4)
	}
	if f.Opcode.IsReserved() {
		return nil, malformed("opcode must not be one of reserved values, got %X", uint8(f.Opcode))
	}

	f.IsMasked = b1&0b1_0000000 != 0

	payloadLength := uint64(b1 & 0b0_1111111)
	switch payloadLength {
	case payloadLength16:
		err = readFull(r, h[2:4], false)
		if err != nil {
			return nil, fmt.Errorf("payload length 126 signaled that next 16 bits must be actual length, but failed to read them: [%w]", err)
		}
		payloadLength = uint64(binary.BigEndian.Uint16(h[2:4]))
	case payloadLength64:
		err = readFull(r, h[2:10], false)
		if err != nil {
			return nil, fmt.Errorf("payload length 127 signaled that next 64 bits must be actual length, but failed to read them: [%w]", err)
		}
		payloadLength = binary.BigEndian.Uint64(h[2:10])
		if payloadLength > math.MaxInt64 {
			return nil, malformed("most significant bit of 64 bit payload length must be 0")
		}
	}

	if limit > 0 && payloadLength > limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, payloadLength, limit)
	}
	if payloadLength > math.MaxInt {
		return nil, fmt.Errorf("%w: %d bytes does not fit in memory", ErrFrameTooLarge, payloadLength)
	}

	if f.IsMasked {
		err = readFull(r, f.MaskingKey[:], false)
		if err != nil {
			return nil, fmt.Errorf("mask bit signaled that next 32 bits must have masking key, but failed to read them: [%w]", err)
		}
	}

	f.ApplicationData, err = readPayload(r, int64(payloadLength))
	if err != nil {
		return nil, fmt.Errorf("failed to read %d bytes of frame data: [%w]", payloadLength, err)
	}

	if f.IsMasked {
		internal.Mask(f.ApplicationData, f.ApplicationData, f.MaskingKey, 0)
	}

	return &f, nil
}

func readFull(r io.Reader, p []byte, first bool) error {
	n, err := io.ReadFull(r, p)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && n == 0 && first:
		return io.EOF
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		return ErrTruncatedFrame
	default:
		return err
	}
}

func readPayload(r io.Reader, n int64) ([]byte, error) {
	if n <= readChunkSize {
		p := make([]byte, n)
		return p, readFull(r, p, false)
	}

	buf := bytes.NewBuffer(make([]byte, 0, readChunkSize))
	copied, err := io.CopyN(buf, r, n)
	if copied == n {
		return buf.Bytes(), nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, ErrTruncatedFrame
	}
	return nil, err
}

// AppendFrame appends the wire encoding of f to dst. f is not modified.
func (f *Frame) AppendFrame(dst []byte) []byte {
	var b0, b1 byte

	if f.IsFinalFrame {
		b0 |= 0b1_000_0000
	}
	b0 |= byte(f.Opcode) & 0b0_000_1111

	if f.IsMasked {
		b1 |= 0b1_000_0000
	}

	length := len(f.ApplicationData)
	switch {
	case length <= 125:
		dst = append(dst, b0, b1|byte(length))
	case length <= math.MaxUint16:
		dst = append(dst, b0, b1|payloadLength16)
		dst = binary.BigEndian.AppendUint16(dst, uint16(length))
	default:
		dst = append(dst, b0, b1|payloadLength64)
		dst = binary.BigEndian.AppendUint64(dst, uint64(length))
	}

	if !f.IsMasked {
		return append(dst, f.ApplicationData...)
	}

	dst = append(dst, f.MaskingKey[:]...)
	start := len(dst)
	dst = append(dst, f.ApplicationData...)
	internal.Mask(dst[start:], dst[start:], f.MaskingKey, 0)

	return dst
}

// WriteTo writes the wire encoding of f to w in a single Write call.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	buf := f.AppendFrame(make([]byte, 0, MaxHeaderSize+len(f.ApplicationData)))

	n, err := w.Write(buf)
	if err != nil {
		return int64(n), fmt.Errorf("failed to write frame: [%w]", err)
	}

	return int64(n), nil
}
