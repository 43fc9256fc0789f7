package resilience

import (
	"testing"
	"time"

	"github.com/toolsentry/toolsentry/internal/domain/decision"
)

func TestResponseCacheGetMiss(t *testing.T) {
	c := NewResponseCache(8, time.Minute)
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestResponseCacheSetThenGet(t *testing.T) {
	c := NewResponseCache(8, time.Minute)
	d := decision.Decision{Action: decision.Allow, Reason: "cached"}
	c.Set("key", d, 0)
	got, ok := c.Get("key")
	if !ok || got.Reason != "cached" {
		t.Fatalf("expected cached decision, got %+v ok=%v", got, ok)
	}
}

func TestResponseCacheExpires(t *testing.T) {
	c := NewResponseCache(8, 10*time.Millisecond)
	c.Set("key", decision.Decision{Action: decision.Allow}, 0)
	time.Sleep(50 * time.Millisecond)
	if _, ok := c.Get("key"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestResponseCacheEvictsLRUOnCapacity(t *testing.T) {
	c := NewResponseCache(2, time.Minute)
	c.Set("a", decision.Decision{Action: decision.Allow}, 0)
	c.Set("b", decision.Decision{Action: decision.Allow}, 0)
	c.Set("c", decision.Decision{Action: decision.Allow}, 0)
	if c.Len() != 2 {
		t.Fatalf("expected capacity-bounded length 2, got %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected oldest entry to be evicted")
	}
}

func TestResponseCachePurge(t *testing.T) {
	c := NewResponseCache(8, time.Minute)
	c.Set("key", decision.Decision{Action: decision.Allow}, 0)
	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after purge, got %d", c.Len())
	}
}
