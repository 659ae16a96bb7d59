// Package metrics counts the frames a session reads and writes.
package metrics

import (
	gometrics "github.com/docker/go-metrics"
	"github.com/prometheus/client_golang/prometheus"

	websocket "github.com/wmdanor/websoc"
	"github.com/wmdanor/websoc/frame"
)

const (
	directionRead  = "read"
	directionWrite = "write"
)

// Collector holds frame, payload and message counters labeled by direction
// and opcode. It is a prometheus.Collector.
type Collector struct {
	ns *gometrics.Namespace

	frames   gometrics.LabeledCounter
	bytes    gometrics.LabeledCounter
	messages gometrics.LabeledCounter
}

func New(namespace string) *Collector {
	ns := gometrics.NewNamespace(namespace, "client", nil)

	return &Collector{
		ns:       ns,
		frames:   ns.NewLabeledCounter("frames", "The number of frames read or written", "direction", "opcode"),
		bytes:    ns.NewLabeledCounter("payload_bytes", "The number of payload bytes read or written", "direction", "opcode"),
		messages: ns.NewLabeledCounter("messages", "The number of final data frames read or written", "direction"),
	}
}

// Register adds c to reg, or to the default registry when reg is nil.
func (c *Collector) Register(reg prometheus.Registerer) error {
	if reg == nil {
		gometrics.Register(c.ns)
		return nil
	}
	return reg.Register(c)
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.ns.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.ns.Collect(ch)
}

// Attach starts counting the frames of conn. The returned function detaches.
func (c *Collector) Attach(conn *websocket.Conn) (detach func()) {
	removeRead := conn.OnReadFrame(c.observe(directionRead))
	removeWrite := conn.OnWriteFrame(c.observe(directionWrite))

	return func() {
		removeRead()
		removeWrite()
	}
}

func (c *Collector) observe(direction string) websocket.FrameHook {
	return func(f *frame.Frame) {
		opcode := f.Opcode.String()

		c.frames.WithValues(direction, opcode).Inc()
		c.bytes.WithValues(direction, opcode).Inc(float64(len(f.ApplicationData)))

		if f.IsUnfragmentedDataFrame() || f.IsFinalFragmentDataFrame() {
			c.messages.WithValues(direction).Inc()
		}
	}
}
