package packet

import (
	"sync"
	"testing"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue()

	first := &Meta{RequestID: "req-1"}
	second := &Meta{RequestID: "req-2"}
	third := &Meta{RequestID: "req-3"}

	q.Enqueue(first)
	q.Enqueue(second)
	q.Enqueue(third)

	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}

	for i, want := range []string{"req-1", "req-2", "req-3"} {
		m, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue() #%d not ok, want record", i)
		}
		if m.RequestID != want {
			t.Errorf("Dequeue() #%d = %q, want %q", i, m.RequestID, want)
		}
	}
}

func TestQueueEmptyDequeueIsRecoverable(t *testing.T) {
	q := NewQueue()

	// Empty dequeue must report not-ok, never panic or go negative.
	m, ok := q.Dequeue()
	if ok {
		t.Errorf("Dequeue() on empty queue ok = true, want false")
	}
	if m != nil {
		t.Errorf("Dequeue() on empty queue = %+v, want nil", m)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}

	// Queue stays usable afterwards.
	q.Enqueue(&Meta{RequestID: "req-1"})
	if got, ok := q.Dequeue(); !ok || got.RequestID != "req-1" {
		t.Errorf("Dequeue() after empty dequeue = %v, %v", got, ok)
	}
}

func TestQueueNoDuplicateDequeue(t *testing.T) {
	q := NewQueue()
	q.Enqueue(&Meta{RequestID: "only"})

	if _, ok := q.Dequeue(); !ok {
		t.Fatal("first Dequeue() not ok")
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("second Dequeue() ok = true, want false")
	}
}

func TestQueueConcurrentAccess(t *testing.T) {
	q := NewQueue()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Enqueue(&Meta{RequestID: "r"})
		}
	}()

	seen := 0
	go func() {
		defer wg.Done()
		for seen < n {
			if _, ok := q.Dequeue(); ok {
				seen++
			}
		}
	}()

	wg.Wait()

	if q.Len() != 0 {
		t.Errorf("Len() = %d after draining, want 0", q.Len())
	}
}
