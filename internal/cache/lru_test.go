package cache

import (
	"testing"
	"time"
)

func TestLRUCacheEvictsOldest(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a")
	}
	c.Set("c", 3) // b is least recently used
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b evicted")
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestLRUCacheTTL(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expiry")
	}

	c.Set("x", "1")
	c.Set("y", "2")
	now = now.Add(2 * time.Minute)
	if n := c.CleanExpired(); n != 2 {
		t.Fatalf("cleaned %d, want 2", n)
	}
}

func TestLRUCachePurge(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Purge()
	if c.Size() != 0 {
		t.Fatalf("size after purge = %d", c.Size())
	}
	c.Set("a", 3)
	if v, ok := c.Get("a"); !ok || v != 3 {
		t.Fatalf("get after purge = %v %v", v, ok)
	}
}

func TestManagerCleanNow(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("a", 1)
	now = now.Add(time.Hour)

	m := NewManager(nil)
	m.Register(c)
	if n := m.CleanNow(); n != 1 {
		t.Fatalf("CleanNow = %d", n)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
}

func TestLRUCacheStats(t *testing.T) {
	c := NewLRUCache[int](1, time.Minute)
	c.Set("a", 1)
	c.Get("a")
	c.Get("missing")
	c.Set("b", 2)

	got := c.Stats()
	want := Stats{Entries: 1, Hits: 1, Misses: 1, Evictions: 1}
	if got != want {
		t.Fatalf("stats = %+v, want %+v", got, want)
	}

	c.Purge()
	if s := c.Stats(); s.Entries != 0 || s.Hits != 1 {
		t.Fatalf("stats after purge = %+v", s)
	}
}
