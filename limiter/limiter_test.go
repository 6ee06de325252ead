package limiter

import (
	"sync"
	"testing"
	"time"
)

func TestAcquireBurstThenSpaced(t *testing.T) {
	l := New(50*time.Millisecond, 2)

	start := time.Now()
	l.Acquire()
	l.Acquire()
	if burst := time.Since(start); burst > 20*time.Millisecond {
		t.Errorf("initial burst took %v, want near-instant", burst)
	}

	// Third token must wait for a refill.
	l.Acquire()
	if total := time.Since(start); total < 50*time.Millisecond {
		t.Errorf("third acquire returned after %v, want >= 50ms", total)
	}
}

func TestAcquireWithinDeadline(t *testing.T) {
	l := New(100*time.Millisecond, 1)
	if !l.AcquireWithin(10 * time.Millisecond) {
		t.Fatal("full bucket should grant immediately")
	}

	start := time.Now()
	if l.AcquireWithin(20 * time.Millisecond) {
		t.Fatal("empty bucket granted inside a too-short deadline")
	}
	if waited := time.Since(start); waited > 50*time.Millisecond {
		t.Errorf("deadline miss took %v, want fast return", waited)
	}

	// The failed attempt must not have consumed the upcoming token.
	if !l.AcquireWithin(200 * time.Millisecond) {
		t.Error("token lost by a failed deadline acquire")
	}
}

func TestRefillCappedAtCapacity(t *testing.T) {
	l := New(20*time.Millisecond, 2)
	l.Acquire()
	l.Acquire()

	// Idle long enough for many intervals; only capacity tokens may appear.
	time.Sleep(150 * time.Millisecond)

	start := time.Now()
	l.Acquire()
	l.Acquire()
	if burst := time.Since(start); burst > 10*time.Millisecond {
		t.Errorf("refilled burst took %v", burst)
	}
	l.Acquire()
	if total := time.Since(start); total < 20*time.Millisecond {
		t.Errorf("bucket overflowed: third acquire after idle took only %v", total)
	}
}

func TestConcurrentAcquiresRespectRate(t *testing.T) {
	if testing.Short() {
		t.Skip("timing-sensitive")
	}
	l := New(30*time.Millisecond, 1)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Acquire()
		}()
	}
	wg.Wait()

	// 1 immediate + 3 refills of 30ms each.
	if total := time.Since(start); total < 90*time.Millisecond {
		t.Errorf("4 acquires at capacity 1 finished in %v, want >= 90ms", total)
	}
}

func TestNewNormalizesArguments(t *testing.T) {
	l := New(0, 0)
	if l.Interval() != time.Second || l.Capacity() != 1 {
		t.Errorf("defaults = (%v, %d), want (1s, 1)", l.Interval(), l.Capacity())
	}
}

func BenchmarkAcquireUncontended(b *testing.B) {
	l := New(time.Nanosecond, 1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Acquire()
	}
}
