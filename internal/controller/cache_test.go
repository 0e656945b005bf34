package controller

import (
	"testing"
	"time"

	"github.com/trailhub/trailsuggest/suggest"
)

func TestCacheExpires(t *testing.T) {
	c := NewCache(20*time.Millisecond, 0)
	c.Set("k", CacheEntry{Items: []suggest.Suggestion{suggest.Legacy("a")}})
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected fresh entry")
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestCacheDisabledWithZeroTTL(t *testing.T) {
	c := NewCache(0, 0)
	c.Set("k", CacheEntry{})
	if _, ok := c.Get("k"); ok {
		t.Fatal("zero ttl must disable caching")
	}
}

func TestCacheEvictsOldestWhenFull(t *testing.T) {
	c := NewCache(time.Minute, 2)
	c.Set("a", CacheEntry{})
	time.Sleep(time.Millisecond)
	c.Set("b", CacheEntry{})
	time.Sleep(time.Millisecond)
	c.Set("c", CacheEntry{})

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected oldest entry to be evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("expected newest entry")
	}
}

func TestCacheReturnsCopies(t *testing.T) {
	c := NewCache(time.Minute, 0)
	c.Set("k", CacheEntry{Items: []suggest.Suggestion{{Name: "x", Tags: []string{"Trail"}}}})
	got, _ := c.Get("k")
	got.Items[0].Tags[0] = "mutated"

	again, _ := c.Get("k")
	if again.Items[0].Tags[0] != "Trail" {
		t.Fatal("cached entry was mutated through a returned copy")
	}
}

func TestBuildCacheKeyStable(t *testing.T) {
	a := BuildCacheKey("lion", 5, "v1")
	if a != BuildCacheKey("lion", 5, "v1") {
		t.Fatal("expected identical keys for identical input")
	}
	if a == BuildCacheKey("lion", 3, "v1") || a == BuildCacheKey("lion", 5, "v2") {
		t.Fatal("expected key to change with limit and policy version")
	}
}
