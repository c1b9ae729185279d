package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/runner"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/vm"
)

func newTestWorker(t *testing.T) *VMWorker {
	t.Helper()
	w := NewVMWorker(runner.New(vm.NewVM(vm.WithIO(vm.NewDefaultIO())), runner.Config{}))
	t.Cleanup(w.Stop)
	return w
}

// within fails the test if fn does not return in time.
func within(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("call did not return")
	}
}

func TestVMWorkerPanicHaltsSession(t *testing.T) {
	w := newTestWorker(t)

	err := w.Submit(bg(), func(r *runner.Runner) error {
		r.Load([]asm.Segment{
			asm.InstructionSegment([]int{0}, asm.NewInstruction(asm.OpRet).At(1, 1)),
		}, asm.EpisodeI)
		return r.Start()
	})
	if err != nil {
		t.Fatal(err)
	}

	err = w.Submit(bg(), func(*runner.Runner) error { panic("boom") })
	if !errors.Is(err, ErrSessionPanic) {
		t.Fatalf("err = %v, want ErrSessionPanic", err)
	}

	// The worker keeps serving, and the VM was halted by the panic.
	halted, err := Do(bg(), w, func(r *runner.Runner) (bool, error) {
		return r.VM().Halted(), nil
	})
	if err != nil || !halted {
		t.Errorf("Halted = %v, %v", halted, err)
	}
}

func TestVMWorkerTypedResult(t *testing.T) {
	w := newTestWorker(t)

	n, err := Do(bg(), w, func(*runner.Runner) (int, error) { return 42, nil })
	if err != nil || n != 42 {
		t.Errorf("Do = %d, %v", n, err)
	}

	_, err = Do(bg(), w, func(*runner.Runner) (int, error) { return 7, vm.ErrNotLoaded })
	if !errors.Is(err, vm.ErrNotLoaded) {
		t.Errorf("err = %v, want ErrNotLoaded", err)
	}
}

func TestVMWorkerSerializes(t *testing.T) {
	w := newTestWorker(t)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Submit(bg(), func(*runner.Runner) error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestVMWorkerSubmitAfterStop(t *testing.T) {
	w := newTestWorker(t)
	w.Stop()
	w.Stop()

	within(t, time.Second, func() {
		ran := false
		err := w.Submit(bg(), func(*runner.Runner) error {
			ran = true
			return nil
		})
		if !errors.Is(err, ErrWorkerStopped) {
			t.Errorf("err = %v, want ErrWorkerStopped", err)
		}
		if ran {
			t.Error("job ran after Stop")
		}
	})
}

func TestVMWorkerCanceledContext(t *testing.T) {
	w := newTestWorker(t)
	ctx, cancel := context.WithCancel(bg())
	cancel()

	err := w.Submit(ctx, func(*runner.Runner) error {
		t.Error("job ran with a canceled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// ---------------------------------------------------------------------------
// Server shutdown
// ---------------------------------------------------------------------------

func TestRequestsAfterStopFailFast(t *testing.T) {
	s := New()
	c := newHandlerClient(t, s)
	s.Stop()

	within(t, time.Second, func() {
		_, err := c.Threads(bg())
		if connect.CodeOf(err) != connect.CodeUnavailable {
			t.Errorf("err = %v, want unavailable", err)
		}
	})
}

func TestListenAndServeReturnsOnStop(t *testing.T) {
	s := New()
	errs := make(chan error, 1)
	go func() { errs <- s.ListenAndServe("127.0.0.1:0") }()

	// Stop may land before or after the listener starts; both must return.
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	select {
	case err := <-errs:
		if err != nil {
			t.Errorf("ListenAndServe = %v, want nil", err)
		}
	case <-time.After(2 * shutdownTimeout):
		t.Fatal("ListenAndServe did not return after Stop")
	}
}

func TestListenAndServeAfterStop(t *testing.T) {
	s := New()
	s.Stop()
	within(t, time.Second, func() {
		if err := s.ListenAndServe("127.0.0.1:0"); err != nil {
			t.Errorf("ListenAndServe = %v", err)
		}
	})
}
