package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTasksRun(t *testing.T) {
	p := New(4)
	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		p.AddTask(func() {
			ran.Add(1)
			wg.Done()
		})
	}
	wg.Wait()
	if ran.Load() != 100 {
		t.Errorf("ran = %d, want 100", ran.Load())
	}
	p.Shutdown()
}

func TestShutdownDrainsQueue(t *testing.T) {
	p := New(1)
	var ran atomic.Int64

	// Head task stalls the single worker so the rest queue up.
	release := make(chan struct{})
	p.AddTask(func() {
		<-release
		ran.Add(1)
	})
	for i := 0; i < 50; i++ {
		p.AddTask(func() { ran.Add(1) })
	}

	done := make(chan struct{})
	go func() {
		p.Shutdown()
		close(done)
	}()
	close(release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}
	if ran.Load() != 51 {
		t.Errorf("ran = %d after drain, want 51", ran.Load())
	}
}

func TestShutdownIdempotent(t *testing.T) {
	p := New(2)
	p.Shutdown()
	p.Shutdown()
}

func TestZeroWorkersClampedToOne(t *testing.T) {
	p := New(0)
	done := make(chan struct{})
	p.AddTask(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran with clamped worker count")
	}
	p.Shutdown()
}
