package httpmini

import (
	"bufio"
	"net"
	"strings"
	"testing"

	"github.com/inercia/mcproxy/internal/transport"
)

func newTestConnPair() (*Conn, net.Conn) {
	server, client := net.Pipe()
	return newConn(server, "c1", nil), client
}

func TestConnWriteShortClosesConnection(t *testing.T) {
	c, client := newTestConnPair()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		c.WriteShort(200, "application/json", []byte(`{"ok":true}`))
		close(done)
	}()

	reader := bufio.NewReader(client)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(line, "200") {
		t.Fatalf("expected 200 status line, got %q", line)
	}
	<-done

	if c.State() != transport.StateClosed {
		t.Errorf("expected state Closed after WriteShort, got %v", c.State())
	}
}

func TestConnCloseIsIdempotent(t *testing.T) {
	c, client := newTestConnPair()
	defer client.Close()

	if err := c.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got error: %v", err)
	}

	select {
	case <-c.Done():
	default:
		t.Fatal("expected Done() to be closed after Close")
	}
}

func TestConnUpgradeStreamSetsStateAndSessionID(t *testing.T) {
	c, client := newTestConnPair()
	defer client.Close()
	defer c.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- c.UpgradeStream(transport.FormatNDJSON, "sess-1") }()

	reader := bufio.NewReader(client)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status failed: %v", err)
	}
	if !strings.Contains(statusLine, "200") {
		t.Fatalf("expected 200 status, got %q", statusLine)
	}

	if err := <-errCh; err != nil {
		t.Fatalf("UpgradeStream returned error: %v", err)
	}

	if c.State() != transport.StateNDJSONStream {
		t.Errorf("expected StateNDJSONStream, got %v", c.State())
	}
	if c.SessionID() != "sess-1" {
		t.Errorf("expected session id sess-1, got %q", c.SessionID())
	}
	if c.Format() != transport.FormatNDJSON {
		t.Errorf("expected FormatNDJSON, got %v", c.Format())
	}
}

func TestConnWriteNDJSONLineIsAChunk(t *testing.T) {
	c, client := newTestConnPair()
	defer client.Close()
	defer c.Close()

	go c.UpgradeStream(transport.FormatNDJSON, "sess-2")

	reader := bufio.NewReader(client)
	// drain the header block up to the blank line.
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read header failed: %v", err)
		}
		if line == "\r\n" {
			break
		}
	}

	go c.WriteNDJSONLine(`{"jsonrpc":"2.0","method":"notify"}`)

	lengthLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read chunk length failed: %v", err)
	}
	lengthLine = strings.TrimSpace(lengthLine)
	if lengthLine == "" || lengthLine == "0" {
		t.Fatalf("expected a non-zero hex chunk length, got %q", lengthLine)
	}
}

func TestConnSetSessionIDIsObservable(t *testing.T) {
	c, client := newTestConnPair()
	defer client.Close()
	defer c.Close()

	c.SetSessionID("abc")
	if c.SessionID() != "abc" {
		t.Errorf("expected session id abc, got %q", c.SessionID())
	}
}
