package governor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/store"
)

// --- Counter Tests ---

func TestGovernor_IncrementDecrement(t *testing.T) {
	ctx := context.Background()
	g := New(store.NewMemory(), Config{Mode: domain.ModeNormal, DefaultCeiling: 5})

	for i := int64(1); i <= 3; i++ {
		v, err := g.Increment(ctx, "hosted")
		if err != nil || v != i {
			t.Fatalf("increment %d: v=%d err=%v", i, v, err)
		}
	}
	for i := int64(2); i >= 0; i-- {
		v, _ := g.Decrement(ctx, "hosted")
		if v != i {
			t.Errorf("expected %d, got %d", i, v)
		}
	}

	// Лишний Decrement не уводит счётчик в минус.
	if v, _ := g.Decrement(ctx, "hosted"); v != 0 {
		t.Errorf("expected clamp at 0, got %d", v)
	}
	if v, _ := g.Current(ctx, "hosted"); v != 0 {
		t.Errorf("expected current 0, got %d", v)
	}
}

func TestGovernor_ModesAreSeparate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	normal := New(st, Config{Mode: domain.ModeNormal, DefaultCeiling: 5})
	bulk := New(st, Config{Mode: domain.ModeBulk, DefaultCeiling: 5})

	normal.Increment(ctx, "hosted")
	normal.Increment(ctx, "hosted")
	bulk.Increment(ctx, "hosted")

	if v, _ := normal.Current(ctx, "hosted"); v != 2 {
		t.Errorf("normal: expected 2, got %d", v)
	}
	if v, _ := bulk.Current(ctx, "hosted"); v != 1 {
		t.Errorf("bulk: expected 1, got %d", v)
	}
	if raw, ok, _ := st.Get(ctx, "bulk_hosted_call_workers"); !ok || raw != "1" {
		t.Errorf("expected key bulk_hosted_call_workers=1, got %q (%v)", raw, ok)
	}
}

// --- Admission Tests ---

func TestGovernor_AdmitCeiling(t *testing.T) {
	ctx := context.Background()
	g := New(store.NewMemory(), Config{
		Mode:           domain.ModeNormal,
		DefaultCeiling: 10,
		Ceilings:       map[string]int{"hosted": 2},
	})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		rejected int
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := g.Admit(ctx, "hosted")
			if err != nil {
				t.Errorf("admit: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if a.Admitted {
				admitted++
			} else {
				rejected++
			}
		}()
	}
	wg.Wait()

	if admitted != 2 || rejected != 1 {
		t.Fatalf("expected 2 admitted / 1 rejected, got %d / %d", admitted, rejected)
	}

	for i := 0; i < admitted; i++ {
		g.Decrement(ctx, "hosted")
	}
	if v, _ := g.Current(ctx, "hosted"); v != 0 {
		t.Errorf("expected counter 0 after all tasks finished, got %d", v)
	}
}

func TestGovernor_CeilingFallback(t *testing.T) {
	g := New(store.NewMemory(), Config{DefaultCeiling: 7, Ceilings: map[string]int{"direct": 3}})
	if c := g.Ceiling("direct"); c != 3 {
		t.Errorf("expected provider ceiling 3, got %d", c)
	}
	if c := g.Ceiling("hosted"); c != 7 {
		t.Errorf("expected default ceiling 7, got %d", c)
	}

	g.SetCeilings(0, map[string]int{"hosted": 1})
	if c := g.Ceiling("hosted"); c != 1 {
		t.Errorf("expected reloaded ceiling 1, got %d", c)
	}
	if c := g.Ceiling("direct"); c != 7 {
		t.Errorf("expected default ceiling kept, got %d", c)
	}
}

func TestGovernor_HasCapacityAndReset(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	g := New(st, Config{DefaultCeiling: 1})

	if !g.HasCapacity(ctx, "hosted") {
		t.Fatal("expected capacity on empty counter")
	}
	g.Increment(ctx, "hosted")
	if g.HasCapacity(ctx, "hosted") {
		t.Error("expected no capacity at ceiling")
	}

	g.Reset(ctx, "hosted", "direct")
	if v, _ := g.Current(ctx, "hosted"); v != 0 {
		t.Errorf("expected 0 after reset, got %d", v)
	}

	// Ошибка чтения не блокирует работу.
	st.FailWith(errors.New("down"))
	if !g.HasCapacity(ctx, "hosted") {
		t.Error("read failure should fall through to Admit")
	}
}
