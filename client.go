package websocket

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/wmdanor/websoc/internal"
)

const (
	DefaultMaxRedirects = 10

	handshakeReadBufSize = 4096
)

// Dialer holds the options used to open a session. The zero value is ready
// to use.
type Dialer struct {
	// MaxRedirects caps how many 3xx answers are followed. 0 means
	// DefaultMaxRedirects, a negative value disables following.
	MaxRedirects int

	// TLSClientConfig is used for wss. nil means tlsconfig.ClientDefault().
	TLSClientConfig *tls.Config

	// NetDialContext opens the underlying byte stream. nil means net.Dialer.
	NetDialContext func(ctx context.Context, network, addr string) (net.Conn, error)

	// Rand is the source of handshake keys and masking keys. nil means
	// crypto/rand.
	Rand io.Reader

	// Header is sent after the mandatory handshake headers. Only Origin may
	// replace a header the handshake sets itself.
	Header http.Header

	// Subprotocols is sent as Sec-WebSocket-Protocol as is.
	Subprotocols []string

	// ReadLimit is the largest accepted frame payload. 0 means no limit.
	ReadLimit int64

	// InternalLogger receives debug logs. nil means the logger configured
	// by WS_LOG and WS_LOG_FILE.
	InternalLogger *zap.Logger
}

var DefaultDialer = &Dialer{}

// Dial opens a session to urlStr using DefaultDialer.
func Dial(urlStr string) (*Conn, error) {
	return DefaultDialer.DialContext(context.Background(), urlStr)
}

func (d *Dialer) Dial(urlStr string) (*Conn, error) {
	return d.DialContext(context.Background(), urlStr)
}

// DialContext performs the opening handshake against urlStr, following
// redirects, and returns the session bound to the final url. ctx only
// bounds transport acquisition and the handshake itself.
func (d *Dialer) DialContext(ctx context.Context, urlStr string) (*Conn, error) {
	l := d.InternalLogger
	if l == nil {
		var err error
		l, err = loggerFromEnv()
		if err != nil {
			return nil, err
		}
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, wrapHandshakeErr(ErrInvalidURL, "failed to parse url", err)
	}

	maxRedirects := d.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = DefaultMaxRedirects
	} else if maxRedirects < 0 {
		maxRedirects = 0
	}

	for redirects := 0; ; redirects++ {
		c, next, err := d.handshake(ctx, u, l)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
				return nil, fmt.Errorf("%w: [%w]", err, ctxErr)
			}
			return nil, err
		}
		if c != nil {
			return c, nil
		}

		if redirects >= maxRedirects {
			return nil, handshakeErr(ErrTooManyRedirects, "stopped after %d redirects, next location %q", redirects, next.String())
		}

		l.Debug("following redirect", zap.Stringer("from", u), zap.Stringer("to", next), zap.Int("redirects", redirects+1))
		u = next
	}
}

// handshake runs a single attempt. It returns either a ready session, or the
// url to retry against when the server redirected.
func (d *Dialer) handshake(ctx context.Context, target *url.URL, l *zap.Logger) (*Conn, *url.URL, error) {
	u, err := normalizeURL(target)
	if err != nil {
		return nil, nil, err
	}

	transport, err := d.dialTransport(ctx, u, l)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if transport != nil {
			_ = transport.Close()
		}
	}()

	// a past deadline unblocks the handshake I/O when ctx is canceled
	dc, hasDeadline := transport.(interface{ SetDeadline(t time.Time) error })
	if hasDeadline {
		if deadline, ok := ctx.Deadline(); ok {
			_ = dc.SetDeadline(deadline)
		}
	}
	t := transport
	stop := context.AfterFunc(ctx, func() {
		if hasDeadline {
			_ = dc.SetDeadline(time.Unix(1, 0))
			return
		}
		_ = t.Close()
	})
	defer stop()

	secWsKey, err := internal.NewChallengeKey(d.Rand)
	if err != nil {
		return nil, nil, wrapHandshakeErr(ErrTransport, "failed to generate key", err)
	}
	expectedSecWsAccept := ComputeAcceptKey(secWsKey)

	req, err := newHandshakeRequest(u, secWsKey, d.Subprotocols, d.Header)
	if err != nil {
		return nil, nil, err
	}

	err = req.write(transport)
	if err != nil {
		return nil, nil, err
	}
	l.Debug("handshake request sent", zap.Stringer("url", u))

	bufReader := bufio.NewReaderSize(transport, handshakeReadBufSize)

	res, err := readHandshakeResponse(bufReader)
	if err != nil {
		return nil, nil, err
	}
	l.Debug("handshake response received", zap.Int("status", res.StatusCode), zap.String("reason", res.Reason))

	switch {
	case res.StatusCode >= 300 && res.StatusCode <= 399:
		location := res.Get(headerLocation)
		if location == "" {
			return nil, nil, handshakeErr(ErrRedirectWithoutLocation, "status %d %s", res.StatusCode, res.Reason)
		}
		next, err := u.Parse(location)
		if err != nil {
			return nil, nil, wrapHandshakeErr(ErrInvalidURL, "invalid redirect location "+location, err)
		}
		return nil, next, nil
	case res.StatusCode != http.StatusSwitchingProtocols:
		return nil, nil, &UnexpectedStatusError{Code: res.StatusCode, Reason: res.Reason}
	}

	err = verifyHandshakeResponse(res, expectedSecWsAccept)
	if err != nil {
		return nil, nil, err
	}

	if !stop() {
		return nil, nil, wrapHandshakeErr(ErrTransport, "handshake interrupted", ctx.Err())
	}
	if hasDeadline {
		_ = dc.SetDeadline(time.Time{})
	}

	l.Debug("handshake verified", zap.Stringer("url", u))

	c := newConn(transport, bufReader, u, res, d.Rand, d.ReadLimit, l)
	transport = nil

	return c, nil, nil
}
