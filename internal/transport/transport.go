// Package transport classifies a parsed HTTP request into one of the
// bridge's four transports (preflight, GET stream upgrade, POST session
// message, POST sync/streamable) per the Transport Classifier decision
// table, and models the per-connection state that classification drives.
package transport

import (
	"net/textproto"
	"net/url"
	"strings"

	"github.com/inercia/mcproxy/internal/jsonrpc"
)

// Format is a connection's response shape once fixed by its first
// response line.
type Format int

const (
	FormatNone Format = iota
	FormatSSE
	FormatNDJSON
)

func (f Format) String() string {
	switch f {
	case FormatSSE:
		return "sse"
	case FormatNDJSON:
		return "ndjson"
	default:
		return "none"
	}
}

// State is a connection's position in its lifecycle. A tagged-variant
// model keeps the transitions explicit instead of a scatter of booleans.
type State int

const (
	StateAwaitingRequest State = iota
	StateSSEStream
	StateNDJSONStream
	StateAwaitingSyncResponse
	StateClosed
)

// Action is the Classifier's verdict for one parsed request.
type Action int

const (
	ActionPreflight Action = iota
	ActionNotFound
	ActionUnauthorized
	ActionUpgradeSSE
	ActionUpgradeNDJSON
	ActionSessionMessage
	ActionStreamable
	ActionSync
	ActionNotification
)

// streamPaths are the GET paths that may upgrade to a stream.
var streamPaths = map[string]bool{
	"/":       true,
	"/sse":    true,
	"/events": true,
}

// Request is the subset of a parsed HTTP request the Classifier needs.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Headers     textproto.MIMEHeader
	Body        []byte
	BearerToken string // token extracted from "Authorization: Bearer <token>", "" if absent
}

// AcceptsSSE reports whether the Accept header contains text/event-stream.
func (r Request) AcceptsSSE() bool {
	return strings.Contains(strings.ToLower(r.Headers.Get("Accept")), "text/event-stream")
}

// SessionID returns the sessionId query parameter, "" if absent.
func (r Request) SessionID() string {
	return r.Query.Get("sessionId")
}

// UserAgent returns the User-Agent header.
func (r Request) UserAgent() string {
	return r.Headers.Get("User-Agent")
}

// Decision is the Classifier's output: an action plus any session id it
// resolved or minted for the connection.
type Decision struct {
	Action    Action
	SessionID string // resolved (query) or freshly minted (GET upgrade) session id
}

// Classify applies the transport decision table. mint is called to
// generate a fresh session id for a GET upgrade that carries none; it is
// injected so this package has no direct dependency on session id
// generation.
func Classify(req Request, requiredToken string, mint func() string) Decision {
	if req.Method == "OPTIONS" {
		return Decision{Action: ActionPreflight}
	}

	isStreamGet := req.Method == "GET" && streamPaths[req.Path]
	isPost := req.Method == "POST"

	if !isStreamGet && !isPost {
		return Decision{Action: ActionNotFound}
	}

	if requiredToken != "" && req.BearerToken != requiredToken {
		return Decision{Action: ActionUnauthorized}
	}

	if isStreamGet {
		sid := req.SessionID()
		if sid == "" {
			sid = mint()
		}
		if req.AcceptsSSE() {
			return Decision{Action: ActionUpgradeSSE, SessionID: sid}
		}
		return Decision{Action: ActionUpgradeNDJSON, SessionID: sid}
	}

	// isPost
	if len(req.Body) == 0 {
		return Decision{Action: ActionNotFound}
	}

	sid := req.SessionID()
	switch {
	case sid != "":
		return Decision{Action: ActionSessionMessage, SessionID: sid}
	case req.AcceptsSSE():
		return Decision{Action: ActionStreamable}
	default:
		id, _, ok := jsonrpc.Peek(req.Body)
		if ok && !id.IsZero() {
			return Decision{Action: ActionSync}
		}
		return Decision{Action: ActionNotification}
	}
}
