package par

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func TestWorkOncePerItem(t *testing.T) {
	var w Work[string]
	var mu sync.Mutex
	seen := make(map[string]int)

	for _, item := range []string{"a", "b", "a", "c", "b"} {
		w.Add(item)
	}
	err := w.Do(3, func(item string) error {
		mu.Lock()
		seen[item]++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("ran %d distinct items, want 3", len(seen))
	}
	for item, n := range seen {
		if n != 1 {
			t.Errorf("item %s ran %d times", item, n)
		}
	}
}

func TestWorkAddFromWithin(t *testing.T) {
	var w Work[int]
	var count atomic.Int32

	w.Add(10)
	err := w.Do(4, func(n int) error {
		count.Add(1)
		if n > 0 {
			w.Add(n - 1)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := count.Load(); got != 11 {
		t.Errorf("ran %d items, want 11", got)
	}
}

func TestWorkCollectsErrors(t *testing.T) {
	var w Work[int]
	for i := 0; i < 5; i++ {
		w.Add(i)
	}
	err := w.Do(2, func(n int) error {
		if n%2 == 1 {
			return fmt.Errorf("item %d failed", n)
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, want := range []string{"item 1 failed", "item 3 failed"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestWorkSingleError(t *testing.T) {
	sentinel := errors.New("boom")
	var w Work[int]
	w.Add(1)
	err := w.Do(1, func(int) error { return sentinel })
	if err == nil || err.Error() != "boom" {
		t.Errorf("Do() = %v, want %v", err, sentinel)
	}
}
