package websocket

import (
	"github.com/wmdanor/websoc/frame"
)

// FrameHook observes a frame. Hooks run synchronously on the goroutine doing
// the I/O and must not retain or modify the frame's data.
type FrameHook func(f *frame.Frame)

type hookEntry struct {
	id uint64
	fn FrameHook
}

type hookList struct {
	nextID uint64
	hooks  []hookEntry
}

func (h *hookList) add(fn FrameHook) func() {
	if fn == nil {
		return func() {}
	}

	h.nextID++
	id := h.nextID
	h.hooks = append(h.hooks, hookEntry{id: id, fn: fn})

	return func() {
		for i, e := range h.hooks {
			if e.id == id {
				h.hooks = append(h.hooks[:i:i], h.hooks[i+1:]...)
				return
			}
		}
	}
}

func (h *hookList) fire(f *frame.Frame) {
	for _, e := range h.hooks {
		e.fn(f)
	}
}

// OnReadFrame registers h to be called with every frame read off the wire,
// including control frames handled internally, in registration order. The
// returned function unregisters it.
func (c *Conn) OnReadFrame(h FrameHook) (remove func()) {
	return c.readHooks.add(h)
}

// OnWriteFrame registers h to be called with every frame before it is written
// to the wire, including automatic pong and close frames. The returned
// function unregisters it.
func (c *Conn) OnWriteFrame(h FrameHook) (remove func()) {
	return c.writeHooks.add(h)
}
