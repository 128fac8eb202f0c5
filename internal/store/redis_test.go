package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisFromClient(client), mr
}

// --- Redis Counter Tests ---

func TestRedis_IncrWithTTL(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	for i := 1; i <= 2; i++ {
		n, err := r.IncrWithTTL(ctx, "c", time.Hour)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != int64(i) {
			t.Errorf("expected %d, got %d", i, n)
		}
	}

	if ttl := mr.TTL("c"); ttl != time.Hour {
		t.Errorf("expected TTL 1h, got %v", ttl)
	}
}

func TestRedis_DecrClamp(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	r.IncrWithTTL(ctx, "c", time.Hour)
	r.IncrWithTTL(ctx, "c", time.Hour)

	n, err := r.DecrClamp(ctx, "c")
	if err != nil {
		t.Fatalf("decr: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1, got %d", n)
	}
	if ttl := mr.TTL("c"); ttl != time.Hour {
		t.Errorf("decrement should keep TTL, got %v", ttl)
	}

	for i := 0; i < 3; i++ {
		if n, _ := r.DecrClamp(ctx, "c"); n != 0 {
			t.Errorf("expected 0, got %d", n)
		}
	}
}

func TestRedis_DecrClamp_MissingKey(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	n, err := r.DecrClamp(ctx, "missing")
	if err != nil {
		t.Fatalf("decr: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
	if mr.Exists("missing") {
		t.Error("clamped counter should not be left without TTL")
	}
}

func TestRedis_DecrClamp_AfterExpiry(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	r.IncrWithTTL(ctx, "c", time.Hour)
	mr.FastForward(time.Hour + time.Second)

	if n, _ := r.DecrClamp(ctx, "c"); n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
	if mr.Exists("c") {
		t.Error("expired counter should stay absent after decrement")
	}
}

// --- Redis SetNX Tests ---

func TestRedis_SetNX(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	ok, err := r.SetNX(ctx, "lock", "a", 15*time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX: ok=%v err=%v", ok, err)
	}
	if ok, _ := r.SetNX(ctx, "lock", "b", 15*time.Minute); ok {
		t.Error("second SetNX should fail while key exists")
	}
	if ttl := mr.TTL("lock"); ttl != 15*time.Minute {
		t.Errorf("expected TTL 15m, got %v", ttl)
	}

	mr.FastForward(15 * time.Minute)
	if ok, _ := r.SetNX(ctx, "lock", "b", 15*time.Minute); !ok {
		t.Error("SetNX should succeed after expiry")
	}
	if v, _, _ := r.Get(ctx, "lock"); v != "b" {
		t.Errorf("expected b, got %q", v)
	}
}

// --- Redis Compare Tests ---

func TestRedis_CompareAndExpire(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	r.Set(ctx, "leader", "a", 10*time.Second)

	ok, err := r.CompareAndExpire(ctx, "leader", "b", time.Minute)
	if err != nil {
		t.Fatalf("compare expire: %v", err)
	}
	if ok {
		t.Error("foreign owner should not extend TTL")
	}
	if ttl := mr.TTL("leader"); ttl != 10*time.Second {
		t.Errorf("TTL changed to %v", ttl)
	}

	if ok, _ := r.CompareAndExpire(ctx, "leader", "a", time.Minute); !ok {
		t.Error("owner should extend TTL")
	}
	if ttl := mr.TTL("leader"); ttl != time.Minute {
		t.Errorf("expected TTL 1m, got %v", ttl)
	}
}

func TestRedis_CompareAndDelete(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	r.Set(ctx, "leader", "a", time.Minute)

	if ok, _ := r.CompareAndDelete(ctx, "leader", "b"); ok {
		t.Error("foreign owner should not delete key")
	}
	if !mr.Exists("leader") {
		t.Fatal("key deleted by foreign owner")
	}

	if ok, _ := r.CompareAndDelete(ctx, "leader", "a"); !ok {
		t.Error("owner should delete key")
	}
	if mr.Exists("leader") {
		t.Error("key should be gone")
	}
}

// --- Redis Sorted Set Tests ---

func TestRedis_ZRangeByScore_Claim(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)

	r.ZAdd(ctx, "z", "t1", 100)
	r.ZAdd(ctx, "z", "t2", 200)
	r.ZAdd(ctx, "z", "t3", 300)

	due, err := r.ZRangeByScore(ctx, "z", 0, 200, 0)
	if err != nil {
		t.Fatalf("zrange: %v", err)
	}
	if len(due) != 2 || due[0].Member != "t1" || due[1].Member != "t2" {
		t.Fatalf("unexpected members: %+v", due)
	}

	if n, _ := r.ZRem(ctx, "z", "t1"); n != 1 {
		t.Errorf("first claim should remove entry, got %d", n)
	}
	if n, _ := r.ZRem(ctx, "z", "t1"); n != 0 {
		t.Errorf("second claim should find nothing, got %d", n)
	}
	if n, _ := r.ZCard(ctx, "z"); n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}
}
