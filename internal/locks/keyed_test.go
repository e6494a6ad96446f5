package locks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAcquire_MutualExclusion(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	var counter, max int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(ctx, "market-1", 5*time.Second)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			defer release()
			mu.Lock()
			counter++
			if counter > max {
				max = counter
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			counter--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if max != 1 {
		t.Fatalf("max concurrent holders=%d want 1", max)
	}
}

func TestAcquire_TimesOutWhileHeld(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	release, err := m.Acquire(ctx, "market-1", time.Second)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer release()

	if _, err := m.Acquire(ctx, "market-1", 20*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("err=%v want ErrTimeout", err)
	}
}

func TestAcquire_DifferentKeysIndependent(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	release1, err := m.Acquire(ctx, "market-1", time.Second)
	if err != nil {
		t.Fatalf("Acquire market-1: %v", err)
	}
	defer release1()

	release2, err := m.Acquire(ctx, "market-2", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire market-2 blocked by market-1: %v", err)
	}
	release2()
}

func TestRelease_Idempotent(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	release, err := m.Acquire(ctx, "market-1", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release()
	release() // must not unlock someone else's hold

	release2, err := m.Acquire(ctx, "market-1", time.Second)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	defer release2()
}

func TestAcquire_ContextCancelled(t *testing.T) {
	m := NewManager()

	release, err := m.Acquire(context.Background(), "market-1", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Acquire(ctx, "market-1", time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}
