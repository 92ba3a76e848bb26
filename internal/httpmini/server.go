// Package httpmini is a hand-rolled HTTP/1.1 server built directly on
// net.Conn rather than net/http: the bridge needs raw control over TLS
// sniffing, buffer-size rejection, and manual chunked-encoding writes
// interleaved with keepalives on connections that outlive any single
// request, none of which net/http's Handler model exposes.
package httpmini

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/inercia/mcproxy/internal/defense"
	"github.com/inercia/mcproxy/internal/transport"
)

// Handler is invoked once per fully-parsed request. It owns the
// connection for the duration of the call and is responsible for writing
// a response (directly, or by upgrading the connection to a stream and
// returning - subsequent egress is pushed from elsewhere via the
// returned *Conn).
type Handler func(conn *Conn, req transport.Request)

// perIPRate bounds how many new connections a single source IP may open
// per second before the listener starts rejecting it outright; this is a
// coarse flood guard layered underneath internal/defense's content-based
// scanner detection.
const (
	perIPRate  = 5
	perIPBurst = 20
)

// CloseFunc is invoked once a connection has closed, identified by its id
// and the session id it was last associated with (may be "").
type CloseFunc func(connID, sessionID string)

// Server is the HTTP/1.1 Mini-Server: it accepts TCP connections on
// host:port and hands every fully-parsed request to a Handler.
type Server struct {
	host string
	port int

	logger    *slog.Logger
	handler   Handler
	onClose   CloseFunc
	defense   *defense.ScannerDefense // optional, nil disables scanner defense
	onBlocked defense.BlockedCallback // optional, notified when defense rejects a connection

	listener net.Listener

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	connsMu sync.Mutex
	conns   map[string]*Conn
	connSeq uint64

	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// New creates a Server bound to host:port. The listener is not opened
// until Listen is called. def may be nil to disable scanner defense.
func New(host string, port int, handler Handler, def *defense.ScannerDefense, logger *slog.Logger) *Server {
	return &Server{
		host:     host,
		port:     port,
		handler:  handler,
		defense:  def,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
		conns:    make(map[string]*Conn),
		done:     make(chan struct{}),
	}
}

// Listen binds the listener, wrapping it in a defense.FilteredListener when
// scanner defense is set. The actual bound port (useful when the
// configured port was 0) is available via Addr once Listen returns nil;
// callers then typically run Serve in a goroutine to accept connections.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.host, portString(s.port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if s.defense != nil {
		fl := defense.NewFilteredListener(l, s.defense, s.logger)
		if s.onBlocked != nil {
			fl.SetBlockedCallback(s.onBlocked)
		}
		l = fl
	}
	s.listener = l
	return nil
}

// OnClose registers a callback invoked once per connection close. Must be
// called before Serve.
func (s *Server) OnClose(fn CloseFunc) {
	s.onClose = fn
}

// OnBlocked registers a callback invoked whenever the scanner defense layer
// rejects a connection before it reaches the accept loop. No-op if scanner
// defense is disabled. Must be called before Listen.
func (s *Server) OnBlocked(fn defense.BlockedCallback) {
	s.onBlocked = fn
}

// Addr returns the bound address. Call only after a successful Listen.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the accept loop. It blocks until the listener is closed by
// Stop, at which point it returns nil.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				return err
			}
		}

		ip := defense.ExtractIP(conn.RemoteAddr())
		if !s.allowIP(ip) {
			if s.logger != nil {
				s.logger.Debug("connection rejected by rate limiter", "ip", ip)
			}
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// Stop closes the listener (refusing new connections) and every
// currently open connection, then waits for their goroutines to exit.
func (s *Server) Stop() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			s.listener.Close()
		}
		s.connsMu.Lock()
		for _, c := range s.conns {
			c.Close()
		}
		s.connsMu.Unlock()
	})
	s.wg.Wait()
}

func (s *Server) allowIP(ip string) bool {
	s.limitersMu.Lock()
	lim, ok := s.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(perIPRate), perIPBurst)
		s.limiters[ip] = lim
	}
	s.limitersMu.Unlock()
	return lim.Allow()
}

func (s *Server) nextConnID() string {
	n := atomic.AddUint64(&s.connSeq, 1)
	return "c" + itoa(n)
}

func (s *Server) serveConn(nc net.Conn) {
	defer s.wg.Done()

	c := newConn(nc, s.nextConnID(), s.logger)
	s.trackConn(c)
	defer s.untrackConn(c)
	defer c.Close()
	defer func() {
		if s.onClose != nil {
			s.onClose(c.ID, c.SessionID())
		}
	}()

	buf := make([]byte, 0, 4096)
	readBuf := make([]byte, 64*1024)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		req, consumed, ok, err := tryParse(buf)
		if err != nil {
			if s.logger != nil {
				s.logger.Debug("rejecting connection", "conn_id", c.ID, "error", err)
			}
			return
		}
		if ok {
			buf = buf[consumed:]
			s.handler(c, reqFromParsed(req))

			switch c.State() {
			case transport.StateClosed:
				return
			case transport.StateSSEStream, transport.StateNDJSONStream, transport.StateAwaitingSyncResponse:
				s.drainUntilClosed(c)
				return
			default:
				continue // keep-alive: parse the next request from the remaining buffer
			}
		}

		nc.SetReadDeadline(time.Time{})
		n, rerr := nc.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)
		}
		if rerr != nil {
			return
		}
	}
}

// drainUntilClosed keeps reading (and discarding) from a connection that
// has become a long-lived stream or is awaiting a single sync response,
// purely to notice when the client disconnects.
func (s *Server) drainUntilClosed(c *Conn) {
	discard := make([]byte, 4096)
	for {
		select {
		case <-c.Done():
			return
		case <-s.done:
			return
		default:
		}
		if _, err := c.Conn.Read(discard); err != nil {
			return
		}
	}
}

func (s *Server) trackConn(c *Conn) {
	s.connsMu.Lock()
	s.conns[c.ID] = c
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(c *Conn) {
	s.connsMu.Lock()
	delete(s.conns, c.ID)
	s.connsMu.Unlock()
}

// Lookup returns the currently tracked connection by id, if still open.
func (s *Server) Lookup(id string) (*Conn, bool) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	c, ok := s.conns[id]
	return c, ok
}

// Broadcast calls fn for every currently tracked connection whose state
// is an SSE or NDJSON stream.
func (s *Server) Broadcast(fn func(*Conn)) {
	s.connsMu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		if st := c.State(); st == transport.StateSSEStream || st == transport.StateNDJSONStream {
			conns = append(conns, c)
		}
	}
	s.connsMu.Unlock()

	for _, c := range conns {
		fn(c)
	}
}

// ConnCount returns the number of currently tracked connections.
func (s *Server) ConnCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

func reqFromParsed(p *parsedRequest) transport.Request {
	return transport.Request{
		Method:      p.Method,
		Path:        p.Path,
		Query:       p.Query,
		Headers:     p.Headers,
		Body:        p.Body,
		BearerToken: bearerToken(p.Headers),
	}
}

func portString(port int) string {
	return itoa(uint64(port))
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}
