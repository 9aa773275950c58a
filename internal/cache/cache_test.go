package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/provenance/internal/model"
)

func TestKey_Namespaced(t *testing.T) {
	a := Key(NamespaceBody, "https://example.com")
	b := Key(NamespaceSemantic, "https://example.com")
	if a == b {
		t.Fatal("Expected namespaces to produce different keys")
	}
	if !strings.HasPrefix(a, "provenance:v1:body:") {
		t.Errorf("Unexpected key prefix: %s", a)
	}
	if Key(NamespaceBody, "a", "bc") == Key(NamespaceBody, "ab", "c") {
		t.Error("Expected part boundaries to matter")
	}
}

func TestMemoryCache_SetGetCopy(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	value := []byte("hello")
	if err := c.Set("k", value, 0); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	value[0] = 'j'

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("Expected hit")
	}
	if string(got) != "hello" {
		t.Errorf("Expected stored copy 'hello', got %q", got)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 item, got %d", c.Len())
	}
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := Key(NamespaceBody, "https://example.com/a")
	if err := c.Set(key, []byte("<html>body</html>"), 0); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	got, ok := c.Get(key)
	if !ok || string(got) != "<html>body</html>" {
		t.Fatalf("Expected cached body, got %q (hit=%v)", got, ok)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get(key); ok {
		t.Error("Expected entry to expire")
	}
}

func TestDiskCache_DeleteMissingIsNotError(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	if err := c.Delete(Key(NamespaceBody, "nope")); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	key := Key(NamespaceSemantic, "prompt")

	first := NewLayeredCache(time.Minute, dir, time.Hour, nil)
	if err := first.Set(key, []byte(`{"ok":true}`), 0); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// A fresh process sees only the disk layer
	second := NewLayeredCache(time.Minute, dir, time.Hour, nil)
	got, ok := second.Get(key)
	if !ok || string(got) != `{"ok":true}` {
		t.Fatalf("Expected disk hit, got %q (hit=%v)", got, ok)
	}
	if _, ok := second.memory.Get(key); !ok {
		t.Error("Expected disk hit to be promoted to memory")
	}
}

func TestJSONHelpers(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	type payload struct {
		Topic string   `json:"topic"`
		Items []string `json:"items"`
	}

	if err := SetJSON(c, "k", payload{Topic: "health", Items: []string{"a"}}, 0); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var got payload
	if !GetJSON(c, "k", &got) {
		t.Fatal("Expected hit")
	}
	if got.Topic != "health" || len(got.Items) != 1 {
		t.Errorf("Unexpected payload: %+v", got)
	}

	_ = c.Set("bad", []byte("{not json"), 0)
	if GetJSON(c, "bad", &got) {
		t.Error("Expected corrupt entry to be a miss")
	}
}

func TestNew_DisabledIsNop(t *testing.T) {
	c := New(model.CacheConfig{Enabled: false}, nil)
	_ = c.Set("k", []byte("v"), 0)
	if _, ok := c.Get("k"); ok {
		t.Error("Expected disabled cache to never hit")
	}
}
