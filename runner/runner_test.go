package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/vm"
)

type resultLog []vm.ExecutionResult

func (l *resultLog) RecordResult(res vm.ExecutionResult) error {
	*l = append(*l, res)
	return nil
}

func dialogueQuest() []asm.Segment {
	return []asm.Segment{
		asm.InstructionSegment([]int{0},
			asm.NewInstruction(asm.OpArgPushl, 1).At(1, 1),
			asm.NewInstruction(asm.OpArgPushs, "welcome").At(2, 1),
			asm.NewInstruction(asm.OpMessage).At(3, 1),
			asm.NewInstruction(asm.OpMesend).At(4, 1),
			asm.NewInstruction(asm.OpArgPushb, 100).At(5, 1),
			asm.NewInstruction(asm.OpArgPushs, "yes\nno\nmaybe\nlater").At(6, 1),
			asm.NewInstruction(asm.OpList).At(7, 1),
			asm.NewInstruction(asm.OpSync).At(8, 1),
			asm.NewInstruction(asm.OpLeti, 1, 42).At(9, 1),
			asm.NewInstruction(asm.OpRet).At(10, 1),
		),
	}
}

func loopingQuest() []asm.Segment {
	return []asm.Segment{
		asm.InstructionSegment([]int{0},
			asm.NewInstruction(asm.OpAddi, 1, 1),
			asm.NewInstruction(asm.OpSync),
			asm.NewInstruction(asm.OpJmp, 0),
		),
	}
}

func newTestRunner(t *testing.T, code []asm.Segment, cfg Config, opts ...Option) *Runner {
	t.Helper()
	v := vm.NewVM(vm.WithRandom(vm.NewRandom(0)))
	r := New(v, cfg, opts...)
	r.Load(code, asm.EpisodeI)
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return r
}

func TestRunToCompletion(t *testing.T) {
	var results resultLog
	r := newTestRunner(t, dialogueQuest(), Config{ListSelection: 3}, WithRecorder(&results))

	out, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Result != vm.Suspended {
		t.Errorf("result = %s, want Suspended", out.Result)
	}
	if out.Inputs != 1 || out.Selections != 1 || out.Frames != 1 {
		t.Errorf("outcome = %+v", out)
	}
	if got := r.VM().RegisterUnsigned(100); got != 3 {
		t.Errorf("r100 = %d, want 3", got)
	}
	if got := r.VM().RegisterSigned(1); got != 42 {
		t.Errorf("r1 = %d, want 42", got)
	}

	want := []vm.ExecutionResult{vm.WaitingInput, vm.WaitingSelection, vm.WaitingVsync, vm.Suspended}
	if len(results) != len(want) {
		t.Fatalf("results = %v, want %v", results, want)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("results[%d] = %s, want %s", i, results[i], want[i])
		}
	}
}

func TestFrameLimit(t *testing.T) {
	r := newTestRunner(t, loopingQuest(), Config{MaxFrames: 5})

	out, err := r.Run(context.Background())
	if !errors.Is(err, ErrFrameLimit) {
		t.Fatalf("err = %v, want ErrFrameLimit", err)
	}
	if out.Frames != 5 {
		t.Errorf("frames = %d, want 5", out.Frames)
	}
	if got := r.VM().RegisterSigned(1); got != 5 {
		t.Errorf("r1 = %d, want 5", got)
	}
}

func TestRunStopsAtBreakpoint(t *testing.T) {
	r := newTestRunner(t, dialogueQuest(), Config{Breakpoints: []int{9}})

	out, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Result != vm.Paused {
		t.Fatalf("result = %s, want Paused", out.Result)
	}
	if r.VM().RegisterSigned(1) != 0 {
		t.Error("the instruction at the breakpoint must not run yet")
	}

	out, err = r.Run(context.Background())
	if err != nil || out.Result != vm.Suspended {
		t.Errorf("resume: %s, %v", out.Result, err)
	}
}

func TestStartWithStepMode(t *testing.T) {
	r := newTestRunner(t, dialogueQuest(), Config{StepMode: vm.StepIn})

	out, _ := r.Run(context.Background())
	if out.Result != vm.Paused {
		t.Fatalf("result = %s, want Paused", out.Result)
	}
	ip := r.VM().InstructionPointer()
	if ip == nil || ip.InstIdx != 0 {
		t.Errorf("paused at %v, want the first instruction", ip)
	}
}

func TestStartRestarts(t *testing.T) {
	r := newTestRunner(t, loopingQuest(), Config{MaxFrames: 3})
	r.Run(context.Background())

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if r.Frames() != 0 {
		t.Errorf("frames after restart = %d", r.Frames())
	}
	if r.VM().RegisterSigned(1) != 0 {
		t.Error("restart should reset registers")
	}
	if ids := r.VM().ThreadIDs(); len(ids) != 1 || ids[0] != 0 {
		t.Errorf("ThreadIDs = %v", ids)
	}
}

func TestStartErrors(t *testing.T) {
	r := New(vm.NewVM(), Config{})
	if err := r.Start(); !errors.Is(err, vm.ErrNotLoaded) {
		t.Errorf("Start before load = %v", err)
	}

	r = New(vm.NewVM(), Config{EntryLabels: []int{0, 7}})
	r.Load(loopingQuest(), asm.EpisodeI)
	if err := r.Start(); !errors.Is(err, vm.ErrNoSuchLabel) {
		t.Errorf("Start with unknown label = %v", err)
	}
}

func TestRunHonorsContext(t *testing.T) {
	r := newTestRunner(t, loopingQuest(), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
