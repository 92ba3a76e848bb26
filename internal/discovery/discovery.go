// Package discovery implements the Tool Discovery handshake: an
// `initialize` followed by `tools/list`, on the two ids reserved for
// this purpose, to learn a child's advertised tool set without
// requiring the operator to hand-maintain it in config.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/inercia/mcproxy/internal/jsonrpc"
)

// ProtocolVersion is the MCP protocol version advertised in the
// handshake's `initialize` call.
const ProtocolVersion = "2024-11-05"

// ErrTimeout is returned when the child doesn't answer within the given
// deadline (used by the standalone validate path; the orchestrator's
// post-start discovery run has no deadline of its own).
var ErrTimeout = errors.New("discovery: timed out waiting for child response")

// Tool is a flattened tool descriptor: its JSON Schema input properties
// are reduced to a simple name→type map, which is all the bridge's
// observability surface needs.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]string
}

// Correlator is the slice of Router that Discovery needs: forward a body
// to the child and await a specific reserved-id response. internal/router
// satisfies this directly.
type Correlator interface {
	Forward(body []byte) error
	Await(id jsonrpc.ID) <-chan []byte
	CancelAwait(id jsonrpc.ID)
}

type initializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
}

type responseEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type toolsListResult struct {
	Tools []toolEntry `json:"tools"`
}

type toolEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
	} `json:"inputSchema"`
}

// Discover runs the two-message handshake over c: `initialize` with id 1,
// then `tools/list` with id 2. clientName is the bridge's own clientInfo
// name advertised to the child. timeout bounds each half of the
// handshake; a non-positive timeout waits indefinitely (bounded only by
// ctx). Returns the flattened tool list from the child's `tools/list`
// response.
func Discover(ctx context.Context, c Correlator, clientName string, timeout time.Duration) ([]Tool, error) {
	id1 := jsonrpc.Int(1)
	req1, err := jsonrpc.NewRequest(id1, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": "1.0.0",
		},
	})
	if err != nil {
		return nil, err
	}

	ch1 := c.Await(id1)
	if err := c.Forward(req1); err != nil {
		c.CancelAwait(id1)
		return nil, err
	}

	initResult, err := awaitResult(ctx, ch1, timeout)
	if err != nil {
		c.CancelAwait(id1)
		return nil, err
	}
	var init initializeResult
	if err := json.Unmarshal(initResult, &init); err != nil || init.ProtocolVersion == "" {
		return nil, errors.New("discovery: initialize response carried no protocolVersion")
	}

	id2 := jsonrpc.Int(2)
	req2, err := jsonrpc.NewRequest(id2, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}

	ch2 := c.Await(id2)
	if err := c.Forward(req2); err != nil {
		c.CancelAwait(id2)
		return nil, err
	}

	result, err := awaitResult(ctx, ch2, timeout)
	if err != nil {
		c.CancelAwait(id2)
		return nil, err
	}

	var list toolsListResult
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, err
	}

	tools := make([]Tool, 0, len(list.Tools))
	for _, t := range list.Tools {
		if t.Name == "" {
			continue
		}
		schema := make(map[string]string, len(t.InputSchema.Properties))
		for name, prop := range t.InputSchema.Properties {
			typ := prop.Type
			if typ == "" {
				typ = "any"
			}
			schema[name] = typ
		}
		tools = append(tools, Tool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return tools, nil
}

func awaitResult(ctx context.Context, ch <-chan []byte, timeout time.Duration) (json.RawMessage, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case line := <-ch:
		var env responseEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			return nil, err
		}
		if env.Error != nil {
			return nil, errors.New("discovery: child returned an error: " + env.Error.Message)
		}
		return env.Result, nil
	case <-deadline:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
