package shutdown

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestShutdownRunsInPriorityOrder(t *testing.T) {
	m := NewManager(5*time.Second, zap.NewNop().Sugar())

	var mutex sync.Mutex
	var order []string
	record := func(name string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			mutex.Lock()
			defer mutex.Unlock()
			order = append(order, name)
			return nil
		}
	}

	// Registered out of order on purpose.
	m.Register("third", 30, record("third"))
	m.Register("first", 10, record("first"))
	m.Register("second", 20, record("second"))

	m.Shutdown()
	m.Wait()

	expected := []string{"first", "second", "third"}
	if len(order) != len(expected) {
		t.Fatalf("Executed %v, expected %v", order, expected)
	}
	for i := range expected {
		if order[i] != expected[i] {
			t.Fatalf("Executed %v, expected %v", order, expected)
		}
	}
}

func TestShutdownContinuesPastFailingStep(t *testing.T) {
	m := NewManager(5*time.Second, zap.NewNop().Sugar())

	ran := false
	m.Register("broken", 10, func(ctx context.Context) error {
		return fmt.Errorf("refusing to stop")
	})
	m.Register("after", 20, func(ctx context.Context) error {
		ran = true
		return nil
	})

	m.Shutdown()
	m.Wait()

	if !ran {
		t.Error("Step after a failing one did not run")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	m := NewManager(5*time.Second, zap.NewNop().Sugar())

	count := 0
	m.Register("once", 10, func(ctx context.Context) error {
		count++
		return nil
	})

	m.Shutdown()
	m.Shutdown()
	m.Wait()

	if count != 1 {
		t.Errorf("Shutdown funcs ran %d times, expected 1", count)
	}
}

func TestTriggeredClosesOnShutdown(t *testing.T) {
	m := NewManager(time.Second, zap.NewNop().Sugar())

	select {
	case <-m.Triggered():
		t.Fatal("Triggered closed before shutdown")
	default:
	}

	go m.Shutdown()
	select {
	case <-m.Triggered():
	case <-time.After(2 * time.Second):
		t.Fatal("Triggered not closed after shutdown")
	}
	m.Wait()
}
