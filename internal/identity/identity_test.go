package identity

import (
	"testing"
)

func TestContentKey_Deterministic(t *testing.T) {
	a, err := ContentKey("def f(): pass", `["dep1", "dep2"]`, []byte(`{"param1":"value1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ContentKey("def f(): pass", `["dep1", "dep2"]`, []byte(`{"param1":"value1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("same definition produced different keys: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d chars", len(a))
	}
}

func TestContentKey_ParamKeyOrderIrrelevant(t *testing.T) {
	a, err := ContentKey("src", "[]", []byte(`{"a":1,"b":2}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ContentKey("src", "[]", []byte(`{"b":2,"a":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("param key order changed the content key")
	}
}

func TestContentKey_FieldSensitivity(t *testing.T) {
	base, _ := ContentKey("src", "[]", nil)
	changedSource, _ := ContentKey("src2", "[]", nil)
	changedDeps, _ := ContentKey("src", `["dep"]`, nil)
	changedParams, _ := ContentKey("src", "[]", []byte(`{"k":"v"}`))
	if base == changedSource || base == changedDeps || base == changedParams {
		t.Fatalf("expected every field change to produce a different key")
	}
}

func TestContentKey_DependencyOrderPreserved(t *testing.T) {
	a, _ := ContentKey("src", `["dep1", "dep2"]`, nil)
	b, _ := ContentKey("src", `["dep2", "dep1"]`, nil)
	if a == b {
		t.Fatalf("dependency order must affect the key")
	}
}

func TestContentKey_RejectsMalformedParams(t *testing.T) {
	if _, err := ContentKey("src", "[]", []byte(`{not json`)); err == nil {
		t.Fatalf("expected error for malformed config params")
	}
}
