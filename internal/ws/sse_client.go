package ws

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
)

// SSEClient writes Server-Sent Event frames to one response. Frames carry a
// sequence id so browsers can report Last-Event-ID on reconnect.
type SSEClient struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	event   string
	logger  *slog.Logger
	seq     uint64
	closed  bool
}

// NewSSEClient builds a client emitting frames named event. An empty event
// leaves the name off so browsers dispatch "message".
func NewSSEClient(w io.Writer, flusher http.Flusher, event string, logger *slog.Logger) *SSEClient {
	return &SSEClient{w: w, flusher: flusher, event: event, logger: logger}
}

// Send writes payload as one event. Newlines in payload become extra data lines.
func (c *SSEClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	c.seq++
	var frame bytes.Buffer
	frame.WriteString("id: ")
	frame.WriteString(strconv.FormatUint(c.seq, 10))
	frame.WriteByte('\n')
	if c.event != "" {
		frame.WriteString("event: ")
		frame.WriteString(c.event)
		frame.WriteByte('\n')
	}
	for _, line := range bytes.Split(payload, []byte("\n")) {
		frame.WriteString("data: ")
		frame.Write(line)
		frame.WriteByte('\n')
	}
	frame.WriteByte('\n')
	return c.writeLocked(frame.Bytes())
}

// Heartbeat writes a comment frame that clients ignore.
func (c *SSEClient) Heartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	return c.writeLocked([]byte(": ping\n\n"))
}

func (c *SSEClient) writeLocked(frame []byte) error {
	if _, err := c.w.Write(frame); err != nil {
		c.closed = true
		c.logger.Warn("sse write failed", "event", c.event, "error", err)
		return err
	}
	c.flusher.Flush()
	return nil
}

// Close stops further writes.
func (c *SSEClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
