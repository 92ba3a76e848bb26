package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestID_EqualVariants(t *testing.T) {
	if !Equal(Int(1), Int(1)) {
		t.Error("Int(1) should equal Int(1)")
	}
	if Equal(Int(1), Float(1)) {
		t.Error("Int(1) should not equal Float(1) - different variant")
	}
	if Equal(Int(1), String("1")) {
		t.Error("Int(1) should not equal String(\"1\")")
	}
	if !Equal(ID{}, ID{}) {
		t.Error("zero ids should be equal")
	}
}

func TestID_MarshalUnmarshal_Int(t *testing.T) {
	data, err := json.Marshal(Int(42))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != "42" {
		t.Errorf("expected bare 42, got %s", data)
	}

	var id ID
	if err := json.Unmarshal(data, &id); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !Equal(id, Int(42)) {
		t.Errorf("expected Int(42), got %v", id)
	}
}

func TestID_MarshalUnmarshal_String(t *testing.T) {
	data, err := json.Marshal(String("abc"))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `"abc"` {
		t.Errorf("expected quoted string, got %s", data)
	}

	var id ID
	if err := json.Unmarshal(data, &id); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !Equal(id, String("abc")) {
		t.Errorf("expected String(\"abc\"), got %v", id)
	}
}

func TestID_UnmarshalFloat(t *testing.T) {
	var id ID
	if err := json.Unmarshal([]byte("1.5"), &id); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !Equal(id, Float(1.5)) {
		t.Errorf("expected Float(1.5), got %v", id)
	}
}

func TestID_UnmarshalNull(t *testing.T) {
	var id ID
	if err := json.Unmarshal([]byte("null"), &id); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !id.IsZero() {
		t.Error("expected zero id for null")
	}
}

func TestID_String(t *testing.T) {
	if Int(5).String() != "5" {
		t.Errorf("unexpected Int string: %s", Int(5).String())
	}
	if String("x").String() != "x" {
		t.Errorf("unexpected String string: %s", String("x").String())
	}
	if (ID{}).String() != "<none>" {
		t.Errorf("unexpected zero id string: %s", (ID{}).String())
	}
}
