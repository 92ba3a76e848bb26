package httpmini

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/inercia/mcproxy/internal/transport"
)

// keepaliveInterval is how often an open stream connection receives a
// keepalive so idle proxies don't reap it.
const keepaliveInterval = 15 * time.Second

// Conn wraps one accepted TCP connection: its parse buffer, its resolved
// response format, and a write lock so egress from the router and
// keepalive ticks never interleave mid-frame.
type Conn struct {
	ID     string
	Remote string

	net.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	state   transport.State
	format  transport.Format

	sessionID string // bound once upgraded to a stream or a session POST arrives

	closeOnce sync.Once
	closedCh  chan struct{}

	stopKeepalive chan struct{}
}

func newConn(c net.Conn, id string, logger *slog.Logger) *Conn {
	return &Conn{
		ID:       id,
		Remote:   c.RemoteAddr().String(),
		Conn:     c,
		logger:   logger,
		state:    transport.StateAwaitingRequest,
		closedCh: make(chan struct{}),
	}
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() transport.State {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.state
}

// Format returns the connection's fixed response format, if any.
func (c *Conn) Format() transport.Format {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.format
}

// SessionID returns the session id this connection is currently
// associated with, "" if none.
func (c *Conn) SessionID() string {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sessionID
}

// SetSessionID records the session id a POST with ?sessionId= or a stream
// upgrade bound this connection to.
func (c *Conn) SetSessionID(id string) {
	c.writeMu.Lock()
	c.sessionID = id
	c.writeMu.Unlock()
}

// corsHeaders is appended to every response the Mini-Server writes.
const corsHeaders = "Access-Control-Allow-Origin: *\r\n" +
	"Access-Control-Allow-Methods: GET, POST, OPTIONS\r\n" +
	"Access-Control-Allow-Headers: *\r\n"

// WritePreflight answers an OPTIONS request with 204 + CORS headers, then
// closes the connection (preflight is a one-shot exchange).
func (c *Conn) WritePreflight() error {
	head := "HTTP/1.1 204 No Content\r\n" + corsHeaders + "Content-Length: 0\r\nConnection: close\r\n\r\n"
	err := c.writeLocked([]byte(head))
	c.Close()
	return err
}

// WriteShort answers with a fixed Content-Length body and closes the
// connection afterward, per the Short response shape: every fixed-length
// response carries Connection: close, so a client that wants to send
// another request opens a fresh connection rather than pipelining.
func (c *Conn) WriteShort(status int, contentType string, body []byte) error {
	head := fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: %s\r\nContent-Length: %d\r\n%sConnection: close\r\n\r\n",
		status, statusText(status), contentType, len(body), corsHeaders,
	)
	err := c.writeLocked(append([]byte(head), body...))
	c.Close()
	return err
}

// WriteNotFound answers 404 with no body.
func (c *Conn) WriteNotFound() error {
	return c.WriteShort(404, "text/plain", nil)
}

// WriteUnauthorized answers 401 with no body.
func (c *Conn) WriteUnauthorized() error {
	return c.WriteShort(401, "text/plain", nil)
}

// UpgradeStream transitions the connection into a long-lived chunked
// stream response (SSE or NDJSON) bound to sessionID, writes the response
// headers, and starts the keepalive ticker. Must be called at most once
// per connection.
func (c *Conn) UpgradeStream(format transport.Format, sessionID string) error {
	contentType := "application/x-ndjson"
	if format == transport.FormatSSE {
		contentType = "text/event-stream"
	}

	head := "HTTP/1.1 200 OK\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"Connection: keep-alive\r\n" +
		"Cache-Control: no-cache\r\n" +
		"Content-Type: " + contentType + "\r\n" +
		"X-Mcp-Session-Id: " + sessionID + "\r\n" +
		corsHeaders +
		"Access-Control-Expose-Headers: X-Mcp-Session-Id\r\n" +
		"\r\n"

	c.writeMu.Lock()
	if format == transport.FormatSSE {
		c.state = transport.StateSSEStream
	} else {
		c.state = transport.StateNDJSONStream
	}
	c.format = format
	c.sessionID = sessionID
	c.writeMu.Unlock()

	if err := c.writeLocked([]byte(head)); err != nil {
		return err
	}

	c.startKeepalive()
	return nil
}

// WriteSSEEvent writes one `event: <name>\ndata: <payload>\n\n` record as
// a single HTTP chunk.
func (c *Conn) WriteSSEEvent(event, data string) error {
	return c.writeChunk([]byte("event: " + event + "\ndata: " + data + "\n\n"))
}

// WriteNDJSONLine writes one `<line>\n` record as a single HTTP chunk.
func (c *Conn) WriteNDJSONLine(line string) error {
	return c.writeChunk([]byte(line + "\n"))
}

// MarkAwaitingSync transitions a POST connection into "awaiting a single
// response" state; the connection is closed by RespondSync once the
// matching child response arrives.
func (c *Conn) MarkAwaitingSync() {
	c.writeMu.Lock()
	c.state = transport.StateAwaitingSyncResponse
	c.writeMu.Unlock()
}

// RespondSync writes the single JSON response body for a sync POST and
// closes the connection.
func (c *Conn) RespondSync(body []byte) error {
	err := c.WriteShort(200, "application/json", body)
	c.Close()
	return err
}

// writeChunk writes one HTTP chunk (hex length + CRLF + payload + CRLF).
func (c *Conn) writeChunk(payload []byte) error {
	frame := fmt.Sprintf("%x\r\n", len(payload))
	buf := make([]byte, 0, len(frame)+len(payload)+2)
	buf = append(buf, frame...)
	buf = append(buf, payload...)
	buf = append(buf, '\r', '\n')
	return c.writeLocked(buf)
}

func (c *Conn) writeLocked(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.Conn.Write(b)
	return err
}

func (c *Conn) startKeepalive() {
	c.writeMu.Lock()
	c.stopKeepalive = make(chan struct{})
	stop := c.stopKeepalive
	format := c.format
	c.writeMu.Unlock()

	go func() {
		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-c.closedCh:
				return
			case <-ticker.C:
				var err error
				if format == transport.FormatSSE {
					err = c.writeChunk([]byte(": keepalive\n\n"))
				} else {
					err = c.writeChunk([]byte("\n"))
				}
				if err != nil {
					c.Close()
					return
				}
			}
		}
	}()
}

// Close closes the underlying connection exactly once, stopping any
// keepalive goroutine and unblocking Done().
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.state = transport.StateClosed
		if c.stopKeepalive != nil {
			close(c.stopKeepalive)
		}
		c.writeMu.Unlock()
		err = c.Conn.Close()
		close(c.closedCh)
	})
	return err
}

// Done returns a channel closed once this connection has been closed.
func (c *Conn) Done() <-chan struct{} {
	return c.closedCh
}

func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 202:
		return "Accepted"
	case 204:
		return "No Content"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 404:
		return "Not Found"
	default:
		return "Unknown"
	}
}
