package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// --- SetNX Tests ---

func TestMemory_SetNX_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, err := m.SetNX(ctx, "k", "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX: ok=%v err=%v", ok, err)
	}

	ok, err = m.SetNX(ctx, "k", "b", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("second SetNX should fail while key exists")
	}

	v, _, _ := m.Get(ctx, "k")
	if v != "a" {
		t.Errorf("expected value a, got %q", v)
	}
}

func TestMemory_SetNX_Concurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := m.SetNX(ctx, "lock", "x", time.Minute)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly 1 winner, got %d", wins)
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	m.SetNX(ctx, "k", "a", 10*time.Second)

	now = now.Add(9 * time.Second)
	if ok, _ := m.Exists(ctx, "k"); !ok {
		t.Fatal("key should still exist before TTL")
	}

	now = now.Add(time.Second)
	if ok, _ := m.Exists(ctx, "k"); ok {
		t.Fatal("key should expire at TTL")
	}

	ok, _ := m.SetNX(ctx, "k", "b", 10*time.Second)
	if !ok {
		t.Error("SetNX should succeed after expiry")
	}
}

// --- Counter Tests ---

func TestMemory_IncrDecr(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for i := 1; i <= 3; i++ {
		n, err := m.IncrWithTTL(ctx, "c", time.Hour)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != int64(i) {
			t.Errorf("expected %d, got %d", i, n)
		}
	}

	for want := int64(2); want >= 0; want-- {
		n, _ := m.DecrClamp(ctx, "c")
		if n != want {
			t.Errorf("expected %d, got %d", want, n)
		}
	}
}

func TestMemory_DecrClamp_NeverNegative(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for i := 0; i < 3; i++ {
		n, err := m.DecrClamp(ctx, "missing")
		if err != nil {
			t.Fatalf("decr: %v", err)
		}
		if n != 0 {
			t.Errorf("expected 0, got %d", n)
		}
	}

	if ok, _ := m.Exists(ctx, "missing"); ok {
		t.Error("clamped counter should not be stored without TTL")
	}
}

func TestMemory_Incr_NotInteger(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Set(ctx, "c", "abc", 0)

	if _, err := m.IncrWithTTL(ctx, "c", time.Hour); !errors.Is(err, ErrNotInteger) {
		t.Errorf("expected ErrNotInteger, got %v", err)
	}
}

// --- Sorted Set Tests ---

func TestMemory_ZRangeByScore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.ZAdd(ctx, ScheduledSetKey, "c", 30)
	m.ZAdd(ctx, ScheduledSetKey, "a", 10)
	m.ZAdd(ctx, ScheduledSetKey, "b", 20)
	m.ZAdd(ctx, ScheduledSetKey, "d", 40)

	got, err := m.ZRangeByScore(ctx, ScheduledSetKey, 0, 30, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d members, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Member != w {
			t.Errorf("member %d: expected %s, got %s", i, w, got[i].Member)
		}
	}

	limited, _ := m.ZRangeByScore(ctx, ScheduledSetKey, 0, 100, 2)
	if len(limited) != 2 || limited[0].Member != "a" || limited[1].Member != "b" {
		t.Errorf("unexpected limited range: %+v", limited)
	}
}

func TestMemory_ZRem_Claim(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.ZAdd(ctx, ScheduledSetKey, "t1", 1)

	n, _ := m.ZRem(ctx, ScheduledSetKey, "t1")
	if n != 1 {
		t.Errorf("first ZRem should claim, got %d", n)
	}
	n, _ = m.ZRem(ctx, ScheduledSetKey, "t1")
	if n != 0 {
		t.Errorf("second ZRem should not claim, got %d", n)
	}
	if card, _ := m.ZCard(ctx, ScheduledSetKey); card != 0 {
		t.Errorf("expected empty set, got %d", card)
	}
}

// --- List Tests ---

func TestMemory_PushCapped(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, v := range []string{"1", "2", "3", "4"} {
		if err := m.PushCapped(ctx, "l", v, 3, time.Hour); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	got, _ := m.LRange(ctx, "l", 0, -1)
	want := []string{"4", "3", "2"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

// --- Failure Tests ---

func TestMemory_FailWithAndClose(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	boom := errors.New("boom")
	m.FailWith(boom)
	if _, err := m.SetNX(ctx, "k", "v", 0); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}

	m.FailWith(nil)
	if err := m.Ping(ctx); err != nil {
		t.Errorf("expected ping ok, got %v", err)
	}

	m.Close()
	if err := m.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
