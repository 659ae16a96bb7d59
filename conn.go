package websocket

import (
	"bufio"
	"io"
	"net"
	"net/url"

	"github.com/eapache/queue"
	"go.uber.org/zap"
)

// Conn is an established session. It owns its transport exclusively and is
// not safe for concurrent use: callers serialize reads, writes and Close.
//
// Reading through Read and through ReadFrame on the same Conn is not
// supported, both consume the same transport.
type Conn struct {
	l *zap.Logger

	transport Transport
	r         *bufio.Reader

	url       *url.URL
	handshake *HandshakeResponse

	rand      io.Reader
	readLimit uint64

	// reassembly buffer: queue of payload chunks, head consumed from bufOffset
	buf       *queue.Queue
	bufOffset int
	buffered  int

	readHooks  hookList
	writeHooks hookList

	sentConnClose  bool
	recvConnClose  bool
	closeStatus    *CloseStatus
	closeStatusErr error

	// a fragmented data message was started and not finished yet
	inMessage bool

	closed bool

	err error
}

func newConn(transport Transport, r *bufio.Reader, u *url.URL, res *HandshakeResponse, rand io.Reader, readLimit int64, l *zap.Logger) *Conn {
	if l == nil {
		l = zap.NewNop()
	}

	var limit uint64
	if readLimit > 0 {
		limit = uint64(readLimit)
	}

	return &Conn{
		l:         l.With(zap.Stringer("url", u)),
		transport: transport,
		r:         r,
		url:       u,
		handshake: res,
		rand:      rand,
		readLimit: limit,
		buf:       queue.New(),
	}
}

// URL is the url the session was established with, after redirects and
// scheme normalization.
func (c *Conn) URL() *url.URL {
	u := *c.url
	return &u
}

func (c *Conn) HandshakeResponse() *HandshakeResponse {
	return c.handshake
}

// Subprotocol is the Sec-WebSocket-Protocol the server answered with, if any.
func (c *Conn) Subprotocol() string {
	return c.handshake.Get(headerSecWsProto)
}

func (c *Conn) LocalAddr() net.Addr {
	return c.transport.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.transport.RemoteAddr()
}

// Transport exposes the underlying byte stream, e.g. to set deadlines.
// Reading or writing it directly corrupts the session.
func (c *Conn) Transport() Transport {
	return c.transport
}

func (c *Conn) String() string {
	return "WebSocket(" + c.url.String() + ")"
}

// fatal poisons the session, every later operation returns err.
func (c *Conn) fatal(err error) error {
	c.l.Debug("connection fatal error", zap.Error(err))
	if c.err == nil {
		c.err = err
	}
	return err
}
