package websocket

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/url"

	"github.com/docker/go-connections/tlsconfig"
	"go.uber.org/zap"
)

// Transport is the byte stream a session runs over. *net.TCPConn covers ws
// and *tls.Conn covers wss.
type Transport interface {
	io.ReadWriteCloser
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

const (
	schemeWs    = "ws"
	schemeWss   = "wss"
	schemeHttp  = "http"
	schemeHttps = "https"

	defaultWsPort  = "80"
	defaultWssPort = "443"
)

// normalizeURL returns a copy of u with http and https rewritten to ws and wss.
func normalizeURL(u *url.URL) (*url.URL, error) {
	n := *u

	switch u.Scheme {
	case schemeWs, schemeWss:
	case schemeHttp:
		n.Scheme = schemeWs
	case schemeHttps:
		n.Scheme = schemeWss
	default:
		return nil, handshakeErr(ErrInvalidScheme, "url scheme must be ws, wss, http or https, actual %q", u.Scheme)
	}

	if n.Hostname() == "" {
		return nil, handshakeErr(ErrInvalidURL, "missing host in %q", u.String())
	}

	return &n, nil
}

func (d *Dialer) dialTransport(ctx context.Context, u *url.URL, l *zap.Logger) (Transport, error) {
	port := u.Port()
	if port == "" {
		port = defaultWsPort
		if u.Scheme == schemeWss {
			port = defaultWssPort
		}
	}
	addr := net.JoinHostPort(u.Hostname(), port)

	dial := d.NetDialContext
	if dial == nil {
		var netDialer net.Dialer
		dial = netDialer.DialContext
	}

	l.Debug("dialing websocket server", zap.String("addr", addr), zap.String("scheme", u.Scheme))

	netConn, err := dial(ctx, "tcp", addr)
	if err != nil {
		return nil, wrapHandshakeErr(ErrTransport, "failed to dial remote address "+addr, err)
	}

	if u.Scheme != schemeWss {
		return netConn, nil
	}

	var cfg *tls.Config
	if d.TLSClientConfig != nil {
		cfg = d.TLSClientConfig.Clone()
	} else {
		cfg = tlsconfig.ClientDefault()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = u.Hostname()
	}

	tlsConn := tls.Client(netConn, cfg)
	err = tlsConn.HandshakeContext(ctx)
	if err != nil {
		_ = netConn.Close()
		return nil, wrapHandshakeErr(ErrTransport, "tls handshake with "+addr+" failed", err)
	}

	l.Debug("tls handshake completed", zap.String("addr", addr), zap.Uint16("version", tlsConn.ConnectionState().Version))

	return tlsConn, nil
}
