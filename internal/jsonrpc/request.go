package jsonrpc

import "encoding/json"

// request is the wire shape of an outbound JSON-RPC request.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      ID     `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest builds a line-ready JSON-RPC request with a trailing newline.
func NewRequest(id ID, method string, params any) ([]byte, error) {
	data, err := json.Marshal(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	return EnsureTrailingNewline(data), nil
}
