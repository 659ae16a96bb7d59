package frame

func (f *Frame) IsControlFrame() bool {
	return f.Opcode.IsControl()
}

func (f *Frame) IsDataFrame() bool {
	return f.Opcode.IsData()
}

func (f *Frame) IsUnfragmentedDataFrame() bool {
	return f.IsDataFrame() && f.IsFinalFrame && f.Opcode != OpcodeContinuationFrame
}

func (f *Frame) IsFirstFragmentDataFrame() bool {
	return f.IsDataFrame() && !f.IsFinalFrame && f.Opcode != OpcodeContinuationFrame
}

func (f *Frame) IsMiddleFragmentDataFrame() bool {
	return f.IsDataFrame() && !f.IsFinalFrame && f.Opcode == OpcodeContinuationFrame
}

func (f *Frame) IsFinalFragmentDataFrame() bool {
	return f.IsDataFrame() && f.IsFinalFrame && f.Opcode == OpcodeContinuationFrame
}

func (f *Frame) IsFragmentedDataFrame() bool {
	return f.IsFirstFragmentDataFrame() ||
		f.IsMiddleFragmentDataFrame() ||
		f.IsFinalFragmentDataFrame()
}

// ValidateControl reports whether a control frame respects the RFC 6455
// constraints: it must not be fragmented and carries at most 125 bytes.
func (f *Frame) ValidateControl() error {
	if !f.IsControlFrame() {
		return nil
	}
	if !f.IsFinalFrame || len(f.ApplicationData) > MaxControlPayloadLength {
		return malformed("%s frame must not be fragmented and must carry at most %d bytes, got fin=%t length=%d",
			f.Opcode, MaxControlPayloadLength, f.IsFinalFrame, len(f.ApplicationData))
	}
	return nil
}
