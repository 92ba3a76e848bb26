package jsonrpc

import "encoding/json"

// envelope captures the subset of a JSON-RPC message the router and
// discovery need to inspect, without committing to the full MCP schema.
type envelope struct {
	ID     *ID             `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

type initializeParams struct {
	ClientInfo struct {
		Name string `json:"name"`
	} `json:"clientInfo"`
}

// Peek parses a raw JSON-RPC line far enough to extract its id (if any)
// and method. ok is false if body is not valid JSON.
func Peek(body []byte) (id ID, method string, ok bool) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ID{}, "", false
	}
	if env.ID != nil {
		id = *env.ID
	}
	return id, env.Method, true
}

// ClientName extracts clientInfo.name from an `initialize` request body.
// Returns "" if the body isn't an initialize request or carries no name.
func ClientName(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Method != "initialize" {
		return ""
	}
	var params initializeParams
	if err := json.Unmarshal(env.Params, &params); err != nil {
		return ""
	}
	return params.ClientInfo.Name
}

// EnsureTrailingNewline appends a trailing '\n' to body if absent, matching
// the line-delimited framing the child process expects on stdin.
func EnsureTrailingNewline(body []byte) []byte {
	if len(body) == 0 || body[len(body)-1] == '\n' {
		return body
	}
	out := make([]byte, len(body)+1)
	copy(out, body)
	out[len(body)] = '\n'
	return out
}
