package websocket

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/wmdanor/websoc/frame"
)

var errConnRefused = errors.New("connection refused")

// peer is the server end of an in-memory connection.
type peer struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
	req  *http.Request
}

type peerHandler func(p *peer)

// fakeNetwork routes dials to scripted servers keyed by host:port.
type fakeNetwork struct {
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]peerHandler
	dialed   []string
	wg       sync.WaitGroup
}

func newFakeNetwork(t *testing.T) *fakeNetwork {
	n := &fakeNetwork{t: t, handlers: map[string]peerHandler{}}
	t.Cleanup(n.wg.Wait)
	return n
}

func (n *fakeNetwork) handle(addr string, h peerHandler) {
	n.handlers[addr] = h
}

func (n *fakeNetwork) dial(_ context.Context, network, addr string) (net.Conn, error) {
	n.mu.Lock()
	n.dialed = append(n.dialed, addr)
	n.mu.Unlock()

	assert.Check(n.t, is.Equal(network, "tcp"))

	h, ok := n.handlers[addr]
	if !ok {
		return nil, fmt.Errorf("dial %s: %w", addr, errConnRefused)
	}

	client, server := net.Pipe()
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer server.Close()
		h(&peer{t: n.t, conn: server, r: bufio.NewReader(server)})
	}()

	return client, nil
}

func (n *fakeNetwork) dialedAddrs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.dialed...)
}

func (n *fakeNetwork) dialer() *Dialer {
	return &Dialer{
		NetDialContext: n.dial,
		Rand:           &counterReader{},
		InternalLogger: zaptest.NewLogger(n.t),
	}
}

// counterReader is a deterministic randomness source.
type counterReader struct {
	next byte
}

func (c *counterReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = c.next
		c.next++
	}
	return len(p), nil
}

// readUpgradeRequest reads the opening handshake and validates it the way a
// server would.
func (p *peer) readUpgradeRequest() error {
	req, err := http.ReadRequest(p.r)
	if err != nil {
		return fmt.Errorf("failed to read request: [%w]", err)
	}
	p.req = req

	if req.Method != http.MethodGet {
		return fmt.Errorf("method must be GET, actual %q", req.Method)
	}
	if req.Proto != "HTTP/1.1" {
		return fmt.Errorf("protocol must be HTTP/1.1, actual %q", req.Proto)
	}

	expect := map[string]string{
		headerUpgrade:      headerUpgradeExpected,
		headerConn:         headerConnExpected,
		headerSecWsVersion: headerSecWsVersionExpected,
	}
	for name, value := range expect {
		if !strings.EqualFold(req.Header.Get(name), value) {
			return fmt.Errorf("%q header must be %q, actual %q", name, value, req.Header.Get(name))
		}
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Header.Get(headerSecWsKey))
	if err != nil {
		return fmt.Errorf("failed to base64 decode %q header: [%w]", headerSecWsKey, err)
	}
	if len(decoded) != 16 {
		return fmt.Errorf("decoded value of %q must be 16 bytes, received %d bytes", headerSecWsKey, len(decoded))
	}

	return nil
}

func (p *peer) writeResponse(status string, headers ...string) {
	var b strings.Builder
	b.WriteString("HTTP/1.1 " + status + "\r\n")
	for _, h := range headers {
		b.WriteString(h + "\r\n")
	}
	b.WriteString("\r\n")

	_, err := p.conn.Write([]byte(b.String()))
	assert.Check(p.t, err)
}

func (p *peer) acceptHeaders() []string {
	return []string{
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Accept: " + ComputeAcceptKey(p.req.Header.Get(headerSecWsKey)),
	}
}

// accept completes the opening handshake, reporting whether the request
// was valid.
func (p *peer) accept(extraHeaders ...string) bool {
	err := p.readUpgradeRequest()
	if !assert.Check(p.t, err) {
		return false
	}

	p.writeResponse("101 Switching Protocols", append(p.acceptHeaders(), extraHeaders...)...)
	return true
}

func (p *peer) writeFrame(f *frame.Frame) {
	_, err := f.WriteTo(p.conn)
	assert.Check(p.t, err)
}

func (p *peer) writeRaw(b []byte) {
	_, err := p.conn.Write(b)
	assert.Check(p.t, err)
}

func (p *peer) readFrame() *frame.Frame {
	f, err := frame.Read(p.r)
	assert.Check(p.t, err)
	if f == nil {
		return &frame.Frame{}
	}
	return f
}

// expectClose reads frames until the client's close frame.
func (p *peer) expectClose() {
	for {
		f, err := frame.Read(p.r)
		if !assert.Check(p.t, err) {
			return
		}
		if f.Opcode == frame.OpcodeConnectionClose {
			return
		}
	}
}

// dialPeer opens a session against a single scripted server.
func dialPeer(t *testing.T, h peerHandler, opts ...func(*Dialer)) *Conn {
	t.Helper()

	n := newFakeNetwork(t)
	n.handle("example.com:80", h)

	d := n.dialer()
	for _, o := range opts {
		o(d)
	}

	c, err := d.Dial("ws://example.com/chat")
	assert.NilError(t, err)
	t.Cleanup(func() { _ = c.transport.Close() })

	return c
}
