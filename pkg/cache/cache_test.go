package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	if _, hit := c.GetCache(ctx, "missing"); hit {
		t.Error("expected miss on empty cache")
	}

	if err := c.SetCache(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("SetCache: %v", err)
	}
	val, hit := c.GetCache(ctx, "k")
	if !hit || string(val) != "v1" {
		t.Errorf("GetCache = %q, %v; want v1, true", val, hit)
	}

	// Overwrite replaces the previous value.
	if err := c.SetCache(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("SetCache: %v", err)
	}
	val, _ = c.GetCache(ctx, "k")
	if string(val) != "v2" {
		t.Errorf("after overwrite got %q, want v2", val)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestMemoryFreshness(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	if err := c.SetCache(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("SetCache: %v", err)
	}

	if _, hit := c.GetCacheFresh(ctx, "k", time.Minute); !hit {
		t.Error("fresh entry should hit within maxAge")
	}
	// Age the entry past the limit.
	c.mu.Lock()
	e := c.entries["k"]
	e.created = time.Now().Add(-2 * time.Minute)
	c.entries["k"] = e
	c.mu.Unlock()

	if _, hit := c.GetCacheFresh(ctx, "k", time.Minute); hit {
		t.Error("stale entry should miss when maxAge set")
	}
	if _, hit := c.GetCacheFresh(ctx, "k", 0); !hit {
		t.Error("maxAge zero should ignore entry age")
	}
}

func TestNull(t *testing.T) {
	ctx := context.Background()
	var c Null
	if err := c.SetCache(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("SetCache: %v", err)
	}
	if _, hit := c.GetCache(ctx, "k"); hit {
		t.Error("null cache must never hit")
	}
	if _, hit := c.GetCacheFresh(ctx, "k", time.Hour); hit {
		t.Error("null cache must never hit")
	}
}
