package websocket

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"io"
	"maps"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

const (
	headerHost         = "Host"
	headerOrigin       = "Origin"
	headerUpgrade      = "Upgrade"
	headerConn         = "Connection"
	headerLocation     = "Location"
	headerSecWsVersion = "Sec-WebSocket-Version"
	headerSecWsProto   = "Sec-WebSocket-Protocol"
	headerSecWsKey     = "Sec-WebSocket-Key"
	headerSecWsAccept  = "Sec-WebSocket-Accept"

	headerUpgradeExpected      = "websocket"
	headerConnExpected         = "Upgrade"
	headerSecWsVersionExpected = "13"

	wsGuid = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

	crlf = "\r\n"
)

// Headers that the handshake always sets itself.
var reservedHeaders = []string{
	headerHost,
	headerUpgrade,
	headerConn,
	headerSecWsVersion,
	headerSecWsProto,
	headerSecWsKey,
}

// ComputeAcceptKey derives the Sec-WebSocket-Accept value the server must
// answer with for the given Sec-WebSocket-Key.
func ComputeAcceptKey(secWebSocketKey string) string {
	hasher := sha1.New()
	hasher.Write([]byte(secWebSocketKey + wsGuid))

	return base64.StdEncoding.EncodeToString(hasher.Sum(nil))
}

// HandshakeResponse is the parsed status line and headers of the server's
// answer. Header names are lower case; when a header repeats, the last value
// wins.
type HandshakeResponse struct {
	Proto      string
	StatusCode int
	Reason     string
	Header     map[string]string
}

// Get looks a header up case-insensitively.
func (r *HandshakeResponse) Get(name string) string {
	return r.Header[strings.ToLower(name)]
}

type handshakeRequest struct {
	path   string
	header [][2]string
}

func newHandshakeRequest(u *url.URL, secWsKey string, subprotocols []string, extra http.Header) (*handshakeRequest, error) {
	origin := "https://" + u.Host + "/"
	if o := extra.Get(headerOrigin); o != "" {
		origin = o
	}

	req := &handshakeRequest{
		path: u.RequestURI(),
		header: [][2]string{
			{headerHost, u.Host},
			{headerOrigin, origin},
			{headerUpgrade, headerUpgradeExpected},
			{headerConn, headerConnExpected},
			{headerSecWsKey, secWsKey},
			{headerSecWsVersion, headerSecWsVersionExpected},
		},
	}

	if len(subprotocols) > 0 {
		req.header = append(req.header, [2]string{headerSecWsProto, strings.Join(subprotocols, ", ")})
	}

	for _, name := range slices.Sorted(maps.Keys(extra)) {
		values := extra[name]
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, handshakeErr(ErrInvalidHeader, "invalid header name %q", name)
		}

		if strings.EqualFold(name, headerOrigin) {
			continue
		}
		for _, reserved := range reservedHeaders {
			if strings.EqualFold(name, reserved) {
				return nil, handshakeErr(ErrInvalidHeader, "%q header is set by the handshake and cannot be overridden", name)
			}
		}

		for _, v := range values {
			if !httpguts.ValidHeaderFieldValue(v) {
				return nil, handshakeErr(ErrInvalidHeader, "invalid value for header %q", name)
			}
			req.header = append(req.header, [2]string{name, v})
		}
	}

	return req, nil
}

func (r *handshakeRequest) String() string {
	var b strings.Builder

	b.WriteString("GET " + r.path + " HTTP/1.1" + crlf)
	for _, h := range r.header {
		b.WriteString(h[0] + ": " + h[1] + crlf)
	}
	b.WriteString(crlf)

	return b.String()
}

func (r *handshakeRequest) write(w io.Writer) error {
	_, err := io.WriteString(w, r.String())
	if err != nil {
		return wrapHandshakeErr(ErrTransport, "failed to write request", err)
	}
	return nil
}

func readHandshakeResponse(r *bufio.Reader) (*HandshakeResponse, error) {
	res, err := http.ReadResponse(r, nil)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &netErr) {
			return nil, wrapHandshakeErr(ErrTransport, "failed to read response", err)
		}
		return nil, wrapHandshakeErr(ErrMalformedResponse, "failed to read response", err)
	}

	if res.ProtoMajor != 1 || res.ProtoMinor != 1 {
		return nil, handshakeErr(ErrMalformedResponse, "protocol must be HTTP/1.1, actual %q", res.Proto)
	}

	hr := &HandshakeResponse{
		Proto:      res.Proto,
		StatusCode: res.StatusCode,
		Reason:     strings.TrimPrefix(res.Status, strconv.Itoa(res.StatusCode)+" "),
		Header:     make(map[string]string, len(res.Header)),
	}
	for name, values := range res.Header {
		if len(values) > 0 {
			hr.Header[strings.ToLower(name)] = values[len(values)-1]
		}
	}

	return hr, nil
}

// Checks if header equals expected value (case insensitive)
// If yes - returns `"", true`
// If no - returns `"<actual_value>", false`
func headerEquals(res *HandshakeResponse, header, expectedValue string) (string, bool) {
	actualValue := res.Get(header)
	if strings.EqualFold(expectedValue, actualValue) {
		return "", true
	}
	return actualValue, false
}

func verifyHandshakeResponse(res *HandshakeResponse, expectedSecWsAccept string) error {
	actual, ok := headerEquals(res, headerUpgrade, headerUpgradeExpected)
	if !ok {
		return handshakeErr(ErrHandshakeRejected, "%q header must be %q, actual %q",
			headerUpgrade, headerUpgradeExpected, actual)
	}

	actual, ok = headerEquals(res, headerConn, headerConnExpected)
	if !ok {
		return handshakeErr(ErrHandshakeRejected, "%q header must be %q, actual %q",
			headerConn, headerConnExpected, actual)
	}

	secWsAccept := res.Get(headerSecWsAccept)
	if len(secWsAccept) == 0 {
		return handshakeErr(ErrHandshakeRejected, "missing %q header", headerSecWsAccept)
	} else if secWsAccept != expectedSecWsAccept {
		return handshakeErr(ErrHandshakeRejected, "%q header does not equal expected value", headerSecWsAccept)
	}

	return nil
}
