package websocket

import (
	"github.com/wmdanor/websoc/frame"
)

type MessageType uint8

const (
	// Non-control
	TextMessage   MessageType = MessageType(frame.OpcodeTextFrame)
	BinaryMessage MessageType = MessageType(frame.OpcodeBinaryFrame)

	// Control
	CloseMessage MessageType = MessageType(frame.OpcodeConnectionClose)
	PingMessage  MessageType = MessageType(frame.OpcodePing)
	PongMessage  MessageType = MessageType(frame.OpcodePong)
)

func (mt MessageType) Opcode() frame.Opcode {
	return frame.Opcode(mt)
}

func (mt MessageType) String() string {
	return frame.Opcode(mt).String()
}
