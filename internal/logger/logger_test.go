package logger

import "testing"

func TestNewDefault(t *testing.T) {
	l := NewDefault("test-svc")
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	if l.service != "test-svc" {
		t.Errorf("expected service 'test-svc', got %q", l.service)
	}
}

func TestNewInvalidLevelFallsBack(t *testing.T) {
	l := New(Config{Level: "bogus", Format: "json"}, "test")
	if l == nil {
		t.Fatal("expected logger despite invalid level")
	}
}

func TestWithComponentPreservesService(t *testing.T) {
	l := NewDefault("test")
	cl := l.WithComponent("handler")
	if cl.service != "test" {
		t.Errorf("service should be preserved, got %q", cl.service)
	}
}

func TestFields(t *testing.T) {
	m := Fields("key", "value", "count", 3)
	if m["key"] != "value" || m["count"] != 3 {
		t.Fatalf("unexpected fields: %v", m)
	}
	// A dangling key without a value is dropped.
	m = Fields("a", 1, "dangling")
	if len(m) != 1 {
		t.Fatalf("expected 1 field, got %v", m)
	}
}

func TestErrorFields(t *testing.T) {
	m := ErrorFields("fetch", errTest)
	if m["operation"] != "fetch" || m["error"] != "test failure" {
		t.Fatalf("unexpected fields: %v", m)
	}
}

type testErr string

func (e testErr) Error() string { return string(e) }

var errTest = testErr("test failure")

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	bad := Config{Level: "nope", Format: "json"}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for invalid level")
	}
	bad = Config{Level: "info", Format: "xml"}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for invalid format")
	}
}
