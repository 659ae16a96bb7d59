package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	websocket "github.com/wmdanor/websoc"
	"github.com/wmdanor/websoc/frame"
	"github.com/wmdanor/websoc/metrics"
)

type clientStreams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

type clientOptions struct {
	messages     []string
	text         bool
	stdin        bool
	headers      []string
	subprotocols []string
	maxRedirects int
	readLimit    string
	timeout      time.Duration
	insecure     bool
	trace        bool
	showMetrics  bool
	debug        bool

	// used by tests to replace the network
	netDialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

func newClientCommand(streams clientStreams) *cobra.Command {
	var opts clientOptions

	cmd := &cobra.Command{
		Use:           "wsclient [OPTIONS] URL",
		Short:         "Open a WebSocket session, send messages and print what the server sends back",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context(), streams, opts, args[0])
		},
	}
	cmd.SetOut(streams.out)
	cmd.SetErr(streams.err)

	installClientFlags(cmd.Flags(), &opts)

	return cmd
}

func installClientFlags(flags *pflag.FlagSet, opts *clientOptions) {
	flags.StringArrayVarP(&opts.messages, "message", "m", nil, "Message to send after connecting, may be repeated")
	flags.BoolVarP(&opts.text, "text", "t", false, "Send messages as text instead of binary")
	flags.BoolVar(&opts.stdin, "stdin", false, "Send standard input as a single message")
	flags.StringArrayVarP(&opts.headers, "header", "H", nil, "Extra handshake header as \"Name: value\"")
	flags.StringSliceVar(&opts.subprotocols, "subprotocol", nil, "Subprotocols to offer")
	flags.IntVar(&opts.maxRedirects, "max-redirects", websocket.DefaultMaxRedirects, "Redirects to follow, negative disables following")
	flags.StringVar(&opts.readLimit, "read-limit", "", "Largest accepted frame payload, e.g. 16MiB")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Handshake timeout")
	flags.BoolVarP(&opts.insecure, "insecure", "k", false, "Skip TLS certificate verification")
	flags.BoolVar(&opts.trace, "trace", false, "Print every frame read and written to stderr")
	flags.BoolVar(&opts.showMetrics, "metrics", false, "Print frame counters to stderr on exit")
	flags.BoolVarP(&opts.debug, "debug", "D", false, "Enable debug logging")
}

func newLogger(debug bool) (*zap.Logger, error) {
	if !debug {
		return zap.NewNop(), nil
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: [%w]", err)
	}
	return l.Named("wsclient"), nil
}

func parseHeaders(raw []string) (http.Header, error) {
	header := http.Header{}
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, expected \"Name: value\"", h)
		}
		header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return header, nil
}

func newDialer(opts clientOptions, l *zap.Logger) (*websocket.Dialer, error) {
	header, err := parseHeaders(opts.headers)
	if err != nil {
		return nil, err
	}

	d := &websocket.Dialer{
		MaxRedirects:   opts.maxRedirects,
		Header:         header,
		Subprotocols:   opts.subprotocols,
		NetDialContext: opts.netDialContext,
		InternalLogger: l,
	}

	// the flag's 0 means no redirects, the Dialer's 0 means the default
	if opts.maxRedirects == 0 {
		d.MaxRedirects = -1
	}

	if opts.readLimit != "" {
		limit, err := units.RAMInBytes(opts.readLimit)
		if err != nil {
			return nil, fmt.Errorf("invalid read limit: [%w]", err)
		}
		d.ReadLimit = limit
	}

	if opts.insecure {
		d.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return d, nil
}

func traceHook(w io.Writer, direction string) websocket.FrameHook {
	return func(f *frame.Frame) {
		fmt.Fprintf(w, "%s %s fin=%t masked=%t %s\n",
			direction, f.Opcode, f.IsFinalFrame, f.IsMasked, units.HumanSize(float64(f.PayloadLength())))
	}
}

func runClient(ctx context.Context, streams clientStreams, opts clientOptions, url string) (retErr error) {
	l, err := newLogger(opts.debug)
	if err != nil {
		return err
	}
	defer l.Sync()

	d, err := newDialer(opts, l)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	c, err := d.DialContext(dialCtx, url)
	if err != nil {
		return err
	}
	l.Info("connected", zap.Stringer("url", c.URL()), zap.String("subprotocol", c.Subprotocol()))

	defer func() {
		if err := c.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	if opts.trace {
		c.OnReadFrame(traceHook(streams.err, "<"))
		c.OnWriteFrame(traceHook(streams.err, ">"))
	}

	if opts.showMetrics {
		reg := prometheus.NewRegistry()
		col := metrics.New("wsclient")
		if err := col.Register(reg); err != nil {
			return err
		}
		defer col.Attach(c)()
		defer printMetrics(streams.err, reg)
	}

	messages := opts.messages
	if opts.stdin {
		data, err := io.ReadAll(streams.in)
		if err != nil {
			return fmt.Errorf("failed to read stdin: [%w]", err)
		}
		messages = append(messages, string(data))
	}

	for _, m := range messages {
		if opts.text {
			_, err = c.WriteText([]byte(m))
		} else {
			_, err = c.Write([]byte(m))
		}
		if err != nil {
			return fmt.Errorf("failed to send message: [%w]", err)
		}
	}

	n, err := io.Copy(streams.out, c)
	if err != nil {
		return fmt.Errorf("failed to read messages: [%w]", err)
	}

	status, _ := c.CloseStatus()
	l.Info("server closed the connection",
		zap.Uint16("code", status.Code.U()),
		zap.String("reason", status.Reason),
		zap.String("received", units.BytesSize(float64(n))))

	return nil
}

func printMetrics(w io.Writer, g prometheus.Gatherer) {
	families, err := g.Gather()
	if err != nil {
		fmt.Fprintf(w, "failed to gather metrics: %s\n", err)
		return
	}
	for _, mf := range families {
		_, _ = expfmt.MetricFamilyToText(w, mf)
	}
}
