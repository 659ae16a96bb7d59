package main

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	websocket "github.com/wmdanor/websoc"
	"github.com/wmdanor/websoc/frame"
)

const defaultTestTimeout = 5 * time.Second

// echoServer answers the handshake, echoes each data frame and closes after
// the first one.
func echoServer(t *testing.T) (func(context.Context, string, string) (net.Conn, error), func()) {
	done := make(chan struct{})

	dial := func(context.Context, string, string) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			defer close(done)
			defer server.Close()

			r := bufio.NewReader(server)
			req, err := http.ReadRequest(r)
			if !assert.Check(t, err) {
				return
			}

			_, err = server.Write([]byte("HTTP/1.1 101 Switching Protocols\r\n" +
				"Upgrade: websocket\r\n" +
				"Connection: Upgrade\r\n" +
				"Sec-WebSocket-Accept: " + websocket.ComputeAcceptKey(req.Header.Get("Sec-WebSocket-Key")) + "\r\n\r\n"))
			if !assert.Check(t, err) {
				return
			}

			f, err := frame.Read(r)
			if !assert.Check(t, err) {
				return
			}
			_, err = frame.New(f.Opcode, f.ApplicationData).WriteTo(server)
			assert.Check(t, err)

			_, err = frame.New(frame.OpcodeConnectionClose, websocket.CloseMessageData(websocket.CloseNormalClosure, "")).WriteTo(server)
			assert.Check(t, err)

			f, err = frame.Read(r)
			if assert.Check(t, err) {
				assert.Check(t, is.Equal(f.Opcode, frame.OpcodeConnectionClose))
			}
		}()
		return client, nil
	}

	return dial, func() { <-done }
}

func TestRunClientEcho(t *testing.T) {
	dial, wait := echoServer(t)
	defer wait()

	var stdout, stderr bytes.Buffer
	streams := clientStreams{in: strings.NewReader(""), out: &stdout, err: &stderr}

	opts := clientOptions{
		messages:       []string{"hello"},
		text:           true,
		maxRedirects:   websocket.DefaultMaxRedirects,
		timeout:        defaultTestTimeout,
		trace:          true,
		showMetrics:    true,
		netDialContext: dial,
	}

	err := runClient(context.Background(), streams, opts, "ws://example.com/echo")
	assert.NilError(t, err)

	assert.Check(t, is.Equal(stdout.String(), "hello"))
	assert.Check(t, is.Contains(stderr.String(), "> text fin=true masked=true 5B"))
	assert.Check(t, is.Contains(stderr.String(), "< text fin=true masked=false 5B"))
	assert.Check(t, is.Contains(stderr.String(), `wsclient_client_messages_total{direction="read"} 1`))
}

func TestRunClientStdin(t *testing.T) {
	dial, wait := echoServer(t)
	defer wait()

	var stdout bytes.Buffer
	streams := clientStreams{in: strings.NewReader("from stdin"), out: &stdout, err: &bytes.Buffer{}}

	opts := clientOptions{
		stdin:          true,
		timeout:        defaultTestTimeout,
		netDialContext: dial,
	}

	err := runClient(context.Background(), streams, opts, "ws://example.com/")
	assert.NilError(t, err)
	assert.Check(t, is.Equal(stdout.String(), "from stdin"))
}

func TestParseHeaders(t *testing.T) {
	header, err := parseHeaders([]string{"Authorization: Bearer x", "X-Multi:a", "x-multi: b"})
	assert.NilError(t, err)
	assert.Check(t, is.Equal(header.Get("Authorization"), "Bearer x"))
	assert.Check(t, is.DeepEqual(header.Values("X-Multi"), []string{"a", "b"}))

	_, err = parseHeaders([]string{"no separator"})
	assert.Check(t, is.ErrorContains(err, "invalid header"))

	_, err = parseHeaders([]string{": empty name"})
	assert.Check(t, is.ErrorContains(err, "invalid header"))
}

func TestNewDialer(t *testing.T) {
	d, err := newDialer(clientOptions{readLimit: "16MiB", insecure: true}, nil)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(d.ReadLimit, int64(16*1024*1024)))
	assert.Check(t, is.Equal(d.MaxRedirects, -1))
	assert.Check(t, d.TLSClientConfig.InsecureSkipVerify)

	d, err = newDialer(clientOptions{maxRedirects: 3}, nil)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(d.MaxRedirects, 3))
	assert.Check(t, d.TLSClientConfig == nil)

	_, err = newDialer(clientOptions{readLimit: "lots"}, nil)
	assert.Check(t, is.ErrorContains(err, "invalid read limit"))
}

func TestClientCommandArgs(t *testing.T) {
	var stderr bytes.Buffer
	cmd := newClientCommand(clientStreams{in: strings.NewReader(""), out: &bytes.Buffer{}, err: &stderr})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	assert.Check(t, is.ErrorContains(err, "accepts 1 arg"))

	flags := cmd.Flags()
	assert.NilError(t, flags.Parse([]string{"-m", "a", "-m", "b", "--subprotocol", "chat,superchat", "--max-redirects", "0"}))

	messages, err := flags.GetStringArray("message")
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(messages, []string{"a", "b"}))

	subprotocols, err := flags.GetStringSlice("subprotocol")
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(subprotocols, []string{"chat", "superchat"}))
}
