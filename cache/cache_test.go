package cache

import (
	"testing"
	"time"
)

func TestGetMissOnEmptyStore(t *testing.T) {
	s := New[string](time.Second)
	if v, ok := s.Get("users/me"); ok {
		t.Fatalf("expected miss, got %q", v)
	}
}

func TestSetThenGetWithinTTL(t *testing.T) {
	s := New[string](time.Second)
	s.Set("users/me", "payload")

	v, ok := s.Get("users/me")
	if !ok {
		t.Fatal("expected hit within TTL")
	}
	if v != "payload" {
		t.Fatalf("unexpected payload %q", v)
	}
}

func TestExpiredEntryTreatedAsAbsent(t *testing.T) {
	s := New[int](20 * time.Millisecond)
	s.Set("rewards/summary", 42)

	time.Sleep(35 * time.Millisecond)

	if _, ok := s.Get("rewards/summary"); ok {
		t.Fatal("expected expired entry to be absent")
	}
	if s.Len() != 0 {
		t.Fatalf("expected expired entry to be deleted, len=%d", s.Len())
	}
}

func TestInvalidateBySubstring(t *testing.T) {
	s := New[string](time.Minute)
	s.Set("GET /users/me", "a")
	s.Set("GET /users/me/preferences", "b")
	s.Set("GET /rewards/summary", "c")

	s.Invalidate("/users/me")

	if _, ok := s.Get("GET /users/me"); ok {
		t.Fatal("matching entry survived invalidation")
	}
	if _, ok := s.Get("GET /users/me/preferences"); ok {
		t.Fatal("matching entry survived invalidation")
	}
	if _, ok := s.Get("GET /rewards/summary"); !ok {
		t.Fatal("non-matching entry was evicted")
	}
}

func TestInvalidateWithoutPatternClearsAll(t *testing.T) {
	s := New[string](time.Minute)
	s.Set("a", "1")
	s.Set("b", "2")

	s.Invalidate("")

	if s.Len() != 0 {
		t.Fatalf("expected empty store, len=%d", s.Len())
	}
}

func TestSetReplacesExistingEntry(t *testing.T) {
	s := New[string](time.Minute)
	s.Set("users/me", "old")
	s.Set("users/me", "new")

	v, _ := s.Get("users/me")
	if v != "new" {
		t.Fatalf("expected replacement, got %q", v)
	}
	if s.Len() != 1 {
		t.Fatalf("expected single entry, len=%d", s.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New[int](time.Minute)
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				s.Set("shared", n)
				s.Get("shared")
				if j%10 == 0 {
					s.Invalidate("shared")
				}
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
