package httpmini

import (
	"bufio"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/inercia/mcproxy/internal/transport"
)

func startTestServer(t *testing.T, handler Handler) (*Server, string) {
	t.Helper()
	s := New("127.0.0.1", 0, handler, nil, nil)
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go s.Serve()
	t.Cleanup(s.Stop)
	return s, s.Addr().String()
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func TestServerRespondsSyncPOST(t *testing.T) {
	_, addr := startTestServer(t, func(c *Conn, req transport.Request) {
		if req.Method != "POST" {
			t.Errorf("expected POST, got %s", req.Method)
		}
		c.MarkAwaitingSync()
		c.RespondSync([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	})

	conn := dial(t, addr)
	defer conn.Close()

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	req := fmt.Sprintf("POST / HTTP/1.1\r\nHost: x\r\nContent-Length: %d\r\n\r\n%s", len(body), body)
	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line failed: %v", err)
	}
	if !strings.Contains(statusLine, "200") {
		t.Fatalf("expected 200 status, got %q", statusLine)
	}

	header, err := textproto.NewReader(reader).ReadMIMEHeader()
	if err != nil {
		t.Fatalf("read headers failed: %v", err)
	}
	if header.Get("Connection") != "close" {
		t.Errorf("expected Connection: close on a sync response, got %q", header.Get("Connection"))
	}
}

func TestServerUpgradesGETToSSEStream(t *testing.T) {
	s, addr := startTestServer(t, func(c *Conn, req transport.Request) {
		if err := c.UpgradeStream(transport.FormatSSE, "session-1"); err != nil {
			t.Errorf("UpgradeStream failed: %v", err)
		}
		c.WriteSSEEvent("message", `{"hello":"world"}`)
	})

	conn := dial(t, addr)
	defer conn.Close()

	req := "GET /sse HTTP/1.1\r\nHost: x\r\nAccept: text/event-stream\r\n\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line failed: %v", err)
	}
	if !strings.Contains(statusLine, "200") {
		t.Fatalf("expected 200 status, got %q", statusLine)
	}
	header, err := textproto.NewReader(reader).ReadMIMEHeader()
	if err != nil {
		t.Fatalf("read headers failed: %v", err)
	}
	if header.Get("X-Mcp-Session-Id") != "session-1" {
		t.Errorf("expected X-Mcp-Session-Id header, got %q", header.Get("X-Mcp-Session-Id"))
	}
	if header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("expected SSE content type, got %q", header.Get("Content-Type"))
	}

	deadline := time.Now().Add(2 * time.Second)
	conn.SetReadDeadline(deadline)

	// Read the chunked length line, then the chunk payload.
	lengthLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read chunk length failed: %v", err)
	}
	if strings.TrimSpace(lengthLine) == "" {
		t.Fatal("expected a non-empty chunk length line")
	}

	if s.ConnCount() == 0 {
		t.Error("expected at least one tracked connection while the stream is open")
	}
}

func TestServerRejectsOPTIONSWithPreflight(t *testing.T) {
	_, addr := startTestServer(t, func(c *Conn, req transport.Request) {
		c.WritePreflight()
	})

	conn := dial(t, addr)
	defer conn.Close()

	req := "OPTIONS / HTTP/1.1\r\nHost: x\r\n\r\n"
	conn.Write([]byte(req))

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line failed: %v", err)
	}
	if !strings.Contains(statusLine, "204") {
		t.Fatalf("expected 204 status, got %q", statusLine)
	}
}
