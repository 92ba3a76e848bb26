// Package router implements the Request Router: it correlates JSON-RPC
// ids flowing out to the child over stdin with the connection or session
// that should receive the matching response, and dispatches every line
// the child emits on stdout back to exactly one destination (or
// broadcasts it, for notifications and anything it can't correlate).
package router

import (
	"io"
	"log/slog"
	"sync"

	"github.com/inercia/mcproxy/internal/httpmini"
	"github.com/inercia/mcproxy/internal/jsonrpc"
	"github.com/inercia/mcproxy/internal/session"
	"github.com/inercia/mcproxy/internal/transport"
)

// reservedHandshakeIDs are the two numeric ids Tool Discovery's handshake
// always uses. A network client that reuses either id has its
// id-to-destination mapping silently dropped: the request still reaches
// the child, but the router makes no promise about routing its response
// anywhere but broadcast. Unconditional shadowing keeps the rule
// deterministic; a handshake-window-only shadow would need its own state
// machine for no real gain.
var reservedHandshakeIDs = map[jsonrpc.ID]bool{
	jsonrpc.Int(1): true,
	jsonrpc.Int(2): true,
}

// Router owns the correlation tables for one BridgeInstance. All access
// goes through its mutex; network writes happen only after the mutex is
// released.
type Router struct {
	mu          sync.Mutex
	pendingByID map[jsonrpc.ID]string // id -> connection id (sync/streamable POSTs)
	idToSession map[jsonrpc.ID]string // id -> session id (session-message/streamable POSTs)
	awaiters    map[jsonrpc.ID]chan []byte

	stdinMu sync.Mutex
	stdin   io.Writer

	conns    *httpmini.Server
	sessions *session.Registry
	logger   *slog.Logger
}

// New creates a Router bound to a connection set and a session registry.
// SetStdin must be called once the child's stdin pipe is available.
func New(conns *httpmini.Server, sessions *session.Registry, logger *slog.Logger) *Router {
	return &Router{
		pendingByID: make(map[jsonrpc.ID]string),
		idToSession: make(map[jsonrpc.ID]string),
		awaiters:    make(map[jsonrpc.ID]chan []byte),
		conns:       conns,
		sessions:    sessions,
		logger:      logger,
	}
}

// SetStdin attaches the child's stdin pipe. Forward calls made before this
// is set are dropped.
func (r *Router) SetStdin(w io.Writer) {
	r.stdinMu.Lock()
	r.stdin = w
	r.stdinMu.Unlock()
}

// Forward writes one JSON-RPC body (plus a trailing newline if absent) to
// the child's stdin as a single write, so bodies from different
// connections never interleave mid-body.
func (r *Router) Forward(body []byte) error {
	r.stdinMu.Lock()
	defer r.stdinMu.Unlock()
	if r.stdin == nil {
		return nil
	}
	_, err := r.stdin.Write(jsonrpc.EnsureTrailingNewline(body))
	if err != nil && r.logger != nil {
		r.logger.Warn("stdin write failed", "error", err)
	}
	return err
}

// Ingress records the id-to-destination correlation for one forwarded
// POST body (action-specific: a session-message POST has no live
// connection to respond on, so only the session mapping is recorded; a
// sync/streamable POST records the connection, plus the session too once
// the connection carries one), observes an `initialize` request's
// clientInfo.name, and forwards the body to the child.
func (r *Router) Ingress(action transport.Action, connID, sessionID string, body []byte) error {
	id, method, ok := jsonrpc.Peek(body)
	if ok && !id.IsZero() && !reservedHandshakeIDs[id] {
		r.mu.Lock()
		switch action {
		case transport.ActionSessionMessage:
			if sessionID != "" {
				r.idToSession[id] = sessionID
			}
		case transport.ActionSync, transport.ActionStreamable:
			r.pendingByID[id] = connID
			if sessionID != "" {
				r.idToSession[id] = sessionID
			}
		}
		r.mu.Unlock()
	}

	if method == "initialize" && sessionID != "" {
		if name := jsonrpc.ClientName(body); name != "" {
			r.sessions.ObserveClientName(sessionID, name)
		}
	}

	return r.Forward(body)
}

// DropConnection removes every pending mapping that points at connID,
// called when a connection closes or errors so a late child response for
// one of its ids falls through to broadcast instead of leaking forever.
func (r *Router) DropConnection(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.pendingByID {
		if c == connID {
			delete(r.pendingByID, id)
		}
	}
}

// Await registers a one-shot waiter for a reserved handshake id, used by
// Tool Discovery to receive the matching response line without it falling
// through to the normal dispatch path. Returns a buffered channel that
// receives exactly one line, or is never sent to if the id never arrives.
func (r *Router) Await(id jsonrpc.ID) <-chan []byte {
	ch := make(chan []byte, 1)
	r.mu.Lock()
	r.awaiters[id] = ch
	r.mu.Unlock()
	return ch
}

// CancelAwait removes a waiter registered via Await, e.g. on timeout.
func (r *Router) CancelAwait(id jsonrpc.ID) {
	r.mu.Lock()
	delete(r.awaiters, id)
	r.mu.Unlock()
}

// Egress dispatches one line emitted by the child. Lines that aren't
// valid JSON, or that carry no id, are broadcast to every open stream
// connection (treated as notifications).
func (r *Router) Egress(line string) {
	raw := []byte(line)
	id, _, ok := jsonrpc.Peek(raw)

	if ok && !id.IsZero() {
		r.mu.Lock()
		ch, isAwaited := r.awaiters[id]
		if isAwaited {
			delete(r.awaiters, id)
		}
		r.mu.Unlock()
		if isAwaited {
			select {
			case ch <- raw:
			default:
			}
			return
		}
	}

	if !ok || id.IsZero() {
		r.broadcast(raw)
		return
	}

	r.mu.Lock()
	connID, hasConn := r.pendingByID[id]
	if hasConn {
		delete(r.pendingByID, id)
		delete(r.idToSession, id)
	}
	var sessID string
	var hasSess bool
	if !hasConn {
		sessID, hasSess = r.idToSession[id]
		if hasSess {
			delete(r.idToSession, id)
		}
	}
	r.mu.Unlock()

	switch {
	case hasConn:
		if !r.dispatchToConn(connID, raw) {
			r.broadcast(raw)
		}
	case hasSess:
		if !r.dispatchToSession(sessID, raw) {
			r.broadcast(raw)
		}
	default:
		r.broadcast(raw)
	}
}

// dispatchToConn delivers raw to a specific connection. Returns false if
// the connection is no longer open, so the caller can fall through to
// broadcast.
func (r *Router) dispatchToConn(connID string, raw []byte) bool {
	conn, ok := r.conns.Lookup(connID)
	if !ok {
		return false
	}
	return r.writeToConn(conn, raw)
}

// dispatchToSession delivers raw to the session's currently bound SSE/
// NDJSON connection. Returns false if the session has none (or it's no
// longer open), so the caller can fall through to broadcast.
func (r *Router) dispatchToSession(sessionID string, raw []byte) bool {
	sess, ok := r.sessions.Lookup(sessionID)
	if !ok {
		return false
	}
	connID, ok := sess.BoundConnection()
	if !ok {
		return false
	}
	conn, ok := r.conns.Lookup(connID)
	if !ok {
		return false
	}
	return r.writeToConn(conn, raw)
}

func (r *Router) writeToConn(conn *httpmini.Conn, raw []byte) bool {
	switch conn.State() {
	case transport.StateAwaitingSyncResponse:
		if err := conn.RespondSync(raw); err != nil && r.logger != nil {
			r.logger.Debug("sync response write failed", "conn_id", conn.ID, "error", err)
		}
		return true
	case transport.StateSSEStream:
		if err := conn.WriteSSEEvent("message", string(raw)); err != nil {
			if r.logger != nil {
				r.logger.Debug("sse write failed", "conn_id", conn.ID, "error", err)
			}
			return false
		}
		return true
	case transport.StateNDJSONStream:
		if err := conn.WriteNDJSONLine(string(raw)); err != nil {
			if r.logger != nil {
				r.logger.Debug("ndjson write failed", "conn_id", conn.ID, "error", err)
			}
			return false
		}
		return true
	default:
		return false
	}
}

// broadcast delivers raw to every currently open SSE/NDJSON stream
// connection, per the notification fan-out rule.
func (r *Router) broadcast(raw []byte) {
	r.conns.Broadcast(func(conn *httpmini.Conn) {
		switch conn.State() {
		case transport.StateSSEStream:
			_ = conn.WriteSSEEvent("message", string(raw))
		case transport.StateNDJSONStream:
			_ = conn.WriteNDJSONLine(string(raw))
		}
	})
}
