package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/inercia/mcproxy/internal/jsonrpc"
)

// fakeCorrelator plays the role of a child process: every Forward call is
// answered by a scripted response pushed onto the matching Await channel,
// driven by the test itself via respond.
type fakeCorrelator struct {
	mu        sync.Mutex
	awaiters  map[jsonrpc.ID]chan []byte
	forwards  []string
	onForward func(id jsonrpc.ID, method string)
}

func newFakeCorrelator() *fakeCorrelator {
	return &fakeCorrelator{awaiters: make(map[jsonrpc.ID]chan []byte)}
}

func (f *fakeCorrelator) Forward(body []byte) error {
	f.mu.Lock()
	f.forwards = append(f.forwards, string(body))
	f.mu.Unlock()

	id, method, _ := jsonrpc.Peek(body)
	if f.onForward != nil {
		f.onForward(id, method)
	}
	return nil
}

func (f *fakeCorrelator) Await(id jsonrpc.ID) <-chan []byte {
	ch := make(chan []byte, 1)
	f.mu.Lock()
	f.awaiters[id] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeCorrelator) CancelAwait(id jsonrpc.ID) {
	f.mu.Lock()
	delete(f.awaiters, id)
	f.mu.Unlock()
}

func (f *fakeCorrelator) respond(id jsonrpc.ID, line string) {
	f.mu.Lock()
	ch, ok := f.awaiters[id]
	f.mu.Unlock()
	if ok {
		ch <- []byte(line)
	}
}

func TestDiscoverSucceedsWithInitializeAndToolsList(t *testing.T) {
	f := newFakeCorrelator()
	f.onForward = func(id jsonrpc.ID, method string) {
		switch method {
		case "initialize":
			go f.respond(id, `{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05"}}`)
		case "tools/list":
			go f.respond(id, `{"jsonrpc":"2.0","id":2,"result":{"tools":[
				{"name":"search","description":"search things","inputSchema":{"properties":{"query":{"type":"string"}}}},
				{"name":"","description":"dropped because no name"}
			]}}`)
		}
	}

	tools, err := Discover(context.Background(), f, "test-client", time.Second)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("expected exactly 1 named tool, got %d: %+v", len(tools), tools)
	}
	if tools[0].Name != "search" || tools[0].Description != "search things" {
		t.Errorf("unexpected tool: %+v", tools[0])
	}
	if tools[0].InputSchema["query"] != "string" {
		t.Errorf("expected query:string in schema, got %+v", tools[0].InputSchema)
	}
}

func TestDiscoverDefaultsMissingSchemaTypeToAny(t *testing.T) {
	f := newFakeCorrelator()
	f.onForward = func(id jsonrpc.ID, method string) {
		switch method {
		case "initialize":
			go f.respond(id, `{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05"}}`)
		case "tools/list":
			go f.respond(id, `{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"t","inputSchema":{"properties":{"x":{}}}}]}}`)
		}
	}

	tools, err := Discover(context.Background(), f, "test-client", time.Second)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if tools[0].InputSchema["x"] != "any" {
		t.Errorf("expected missing schema type to default to 'any', got %q", tools[0].InputSchema["x"])
	}
}

func TestDiscoverTimesOutWaitingForInitialize(t *testing.T) {
	f := newFakeCorrelator() // never responds

	_, err := Discover(context.Background(), f, "test-client", 20*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestDiscoverPropagatesChildErrorEnvelope(t *testing.T) {
	f := newFakeCorrelator()
	f.onForward = func(id jsonrpc.ID, method string) {
		if method == "initialize" {
			go f.respond(id, `{"jsonrpc":"2.0","id":1,"error":{"message":"boom"}}`)
		}
	}

	_, err := Discover(context.Background(), f, "test-client", time.Second)
	if err == nil {
		t.Fatal("expected an error from a child error envelope")
	}
}

func TestDiscoverFailsOnMissingProtocolVersion(t *testing.T) {
	f := newFakeCorrelator()
	f.onForward = func(id jsonrpc.ID, method string) {
		if method == "initialize" {
			go f.respond(id, `{"jsonrpc":"2.0","id":1,"result":{}}`)
		}
	}

	_, err := Discover(context.Background(), f, "test-client", time.Second)
	if err == nil {
		t.Fatal("expected an error when protocolVersion is absent")
	}
}

func TestDiscoverRespectsContextCancellation(t *testing.T) {
	f := newFakeCorrelator() // never responds
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Discover(ctx, f, "test-client", 0)
	if err == nil {
		t.Fatal("expected an error from an already-cancelled context")
	}
}
