package jsonrpc

import "testing"

func TestPeek_WithID(t *testing.T) {
	id, method, ok := Peek([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !Equal(id, Int(1)) {
		t.Errorf("expected id Int(1), got %v", id)
	}
	if method != "tools/list" {
		t.Errorf("expected method tools/list, got %s", method)
	}
}

func TestPeek_Notification(t *testing.T) {
	id, method, ok := Peek([]byte(`{"jsonrpc":"2.0","method":"notifications/progress"}`))
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !id.IsZero() {
		t.Error("expected zero id for notification")
	}
	if method != "notifications/progress" {
		t.Errorf("unexpected method: %s", method)
	}
}

func TestPeek_InvalidJSON(t *testing.T) {
	if _, _, ok := Peek([]byte("not json")); ok {
		t.Error("expected ok=false for invalid JSON")
	}
}

func TestClientName(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"clientInfo":{"name":"Claude Desktop"}}}`)
	if name := ClientName(body); name != "Claude Desktop" {
		t.Errorf("expected 'Claude Desktop', got %q", name)
	}
}

func TestClientName_NotInitialize(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if name := ClientName(body); name != "" {
		t.Errorf("expected empty name, got %q", name)
	}
}

func TestEnsureTrailingNewline(t *testing.T) {
	if got := string(EnsureTrailingNewline([]byte("abc"))); got != "abc\n" {
		t.Errorf("expected trailing newline added, got %q", got)
	}
	if got := string(EnsureTrailingNewline([]byte("abc\n"))); got != "abc\n" {
		t.Errorf("expected no duplicate newline, got %q", got)
	}
}
