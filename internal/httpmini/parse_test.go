package httpmini

import (
	"testing"
)

func TestTryParseSimpleGET(t *testing.T) {
	raw := "GET /sse?sessionId=abc HTTP/1.1\r\nHost: localhost\r\nAccept: text/event-stream\r\n\r\n"
	req, consumed, ok, err := tryParse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a complete parse")
	}
	if consumed != len(raw) {
		t.Errorf("expected to consume %d bytes, got %d", len(raw), consumed)
	}
	if req.Method != "GET" || req.Path != "/sse" {
		t.Errorf("unexpected method/path: %s %s", req.Method, req.Path)
	}
	if req.Query.Get("sessionId") != "abc" {
		t.Errorf("expected sessionId=abc, got %q", req.Query.Get("sessionId"))
	}
	if req.Headers.Get("Host") != "localhost" {
		t.Errorf("expected Host header, got %q", req.Headers.Get("Host"))
	}
}

func TestTryParsePostWithBody(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	raw := "POST / HTTP/1.1\r\nContent-Length: " + itoa(uint64(len(body))) + "\r\nAuthorization: Bearer secret\r\n\r\n" + body
	req, consumed, ok, err := tryParse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a complete parse")
	}
	if consumed != len(raw) {
		t.Fatalf("expected to consume %d bytes, got %d", len(raw), consumed)
	}
	if string(req.Body) != body {
		t.Errorf("expected body %q, got %q", body, string(req.Body))
	}
	if got := bearerToken(req.Headers); got != "secret" {
		t.Errorf("expected bearer token 'secret', got %q", got)
	}
}

func TestTryParseIncompleteRequestWaitsForMoreData(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\nabc"
	_, _, ok, err := tryParse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error on incomplete body: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false while body is still incomplete")
	}
}

func TestTryParseRejectsOversizedBuffer(t *testing.T) {
	buf := make([]byte, maxBufferBytes+1)
	_, _, ok, err := tryParse(buf)
	if ok {
		t.Fatal("expected ok=false for an oversized buffer")
	}
	if err != ErrBufferOverflow {
		t.Fatalf("expected ErrBufferOverflow, got %v", err)
	}
}

func TestTryParseRejectsTLSClientHello(t *testing.T) {
	buf := []byte{0x16, 0x03, 0x01, 0x00, 0x05, 'h', 'e', 'l', 'l', 'o'}
	_, _, _, err := tryParse(buf)
	if err != ErrTLSClientHello {
		t.Fatalf("expected ErrTLSClientHello, got %v", err)
	}
}

func TestTryParseRejectsMalformedRequestLine(t *testing.T) {
	raw := "GARBAGE\r\n\r\n"
	_, _, _, err := tryParse([]byte(raw))
	if err != ErrMalformedRequest {
		t.Fatalf("expected ErrMalformedRequest, got %v", err)
	}
}

// TestTryParseIsInvariantToArbitraryFragmentation feeds the same request one
// byte at a time (simulating arbitrary TCP fragmentation) and checks the
// final parse matches parsing the whole buffer at once.
func TestTryParseIsInvariantToArbitraryFragmentation(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":2,"method":"ping"}`
	raw := []byte("POST /message?sessionId=xyz HTTP/1.1\r\nContent-Length: " +
		itoa(uint64(len(body))) + "\r\nUser-Agent: test-agent\r\n\r\n" + body)

	whole, _, ok, err := tryParse(raw)
	if err != nil || !ok {
		t.Fatalf("whole-buffer parse failed: ok=%v err=%v", ok, err)
	}

	var buf []byte
	var got *parsedRequest
	for i := range raw {
		buf = append(buf, raw[i])
		req, consumed, ok, err := tryParse(buf)
		if err != nil {
			t.Fatalf("unexpected error while feeding byte %d: %v", i, err)
		}
		if ok {
			if consumed != len(buf) {
				t.Fatalf("expected full buffer of length %d consumed, got %d", len(buf), consumed)
			}
			got = req
			break
		}
	}

	if got == nil {
		t.Fatal("never reached a complete parse")
	}
	if got.Method != whole.Method || got.Path != whole.Path || string(got.Body) != string(whole.Body) {
		t.Fatalf("fragmented parse diverged from whole-buffer parse: %+v vs %+v", got, whole)
	}
	if got.Query.Get("sessionId") != "xyz" {
		t.Errorf("expected sessionId=xyz, got %q", got.Query.Get("sessionId"))
	}
}
