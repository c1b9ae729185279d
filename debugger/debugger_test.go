package debugger

import (
	"testing"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/vm"
)

// Lines:
//
//	1 leti r1, 1
//	2 call 1
//	3 leti r2, 1
//	4 ret
//	6 leti r3, 1
//	7 ret
func testProgram() []asm.Segment {
	return []asm.Segment{
		asm.InstructionSegment([]int{0},
			asm.NewInstruction(asm.OpLeti, 1, 1).At(1, 5),
			asm.NewInstruction(asm.OpCall, 1).At(2, 5),
			asm.NewInstruction(asm.OpLeti, 2, 1).At(3, 5),
			asm.NewInstruction(asm.OpRet).At(4, 5),
		),
		asm.DataSegment([]int{2}, []byte{1, 2, 3, 4}),
		asm.InstructionSegment([]int{1},
			asm.NewInstruction(asm.OpLeti, 3, 1).At(6, 5),
			asm.NewInstruction(asm.OpRet).At(7, 5),
		),
	}
}

func newTestDebugger(t *testing.T) (*Debugger, *vm.VM) {
	t.Helper()
	v := vm.NewVM(vm.WithIO(vm.NewDefaultIO()), vm.WithRandom(vm.NewRandom(0)))
	d := New(v)
	v.LoadObjectCode(testProgram(), asm.EpisodeI)
	d.ActivateBreakpoints()
	if err := v.StartThread(0); err != nil {
		t.Fatal(err)
	}
	return d, v
}

func expectPausedAtLine(t *testing.T, d *Debugger, line int) {
	t.Helper()
	if res := d.Execute(); res != vm.Paused {
		t.Fatalf("result = %s, want Paused", res)
	}
	ip := d.InstructionPointer()
	if ip == nil {
		t.Fatal("no instruction pointer while paused")
	}
	if loc := ip.SourceLocation(); loc == nil || loc.LineNo != line {
		t.Fatalf("paused at %v, want line %d", loc, line)
	}
}

func TestResolveLine(t *testing.T) {
	code := testProgram()

	ip := ResolveLine(code, 6)
	if ip == nil || ip.SegIdx != 2 || ip.InstIdx != 0 {
		t.Errorf("ResolveLine(6) = %v, want 2:0", ip)
	}
	if ip := ResolveLine(code, 5); ip != nil {
		t.Errorf("ResolveLine(5) = %v, want nil", ip)
	}
	if ip := ResolveLine(nil, 1); ip != nil {
		t.Errorf("ResolveLine on empty code = %v", ip)
	}
}

func TestSetAndRemoveBreakpoint(t *testing.T) {
	d, v := newTestDebugger(t)

	if !d.SetBreakpoint(3) {
		t.Fatal("SetBreakpoint(3) should succeed")
	}
	if d.SetBreakpoint(3) {
		t.Error("duplicate SetBreakpoint should return false")
	}
	if len(v.Breakpoints()) != 1 {
		t.Errorf("vm breakpoints = %v", v.Breakpoints())
	}
	if !d.HasBreakpoint(3) {
		t.Error("HasBreakpoint(3) should be true")
	}

	if !d.RemoveBreakpoint(3) {
		t.Error("RemoveBreakpoint(3) should succeed")
	}
	if d.RemoveBreakpoint(3) {
		t.Error("removing a missing breakpoint should return false")
	}
	if len(v.Breakpoints()) != 0 {
		t.Errorf("vm breakpoints = %v, want none", v.Breakpoints())
	}
}

func TestUnresolvedBreakpointIsInert(t *testing.T) {
	d, v := newTestDebugger(t)

	if !d.SetBreakpoint(5) {
		t.Fatal("SetBreakpoint(5) should succeed")
	}
	bps := d.Breakpoints()
	if len(bps) != 1 || bps[0].Line != 5 || bps[0].Active {
		t.Errorf("breakpoints = %+v", bps)
	}
	if len(v.Breakpoints()) != 0 {
		t.Error("an unresolved breakpoint must not reach the VM")
	}
	if res := d.Execute(); res != vm.Suspended {
		t.Errorf("result = %s, want Suspended", res)
	}
}

func TestToggleAndClear(t *testing.T) {
	d, v := newTestDebugger(t)

	if !d.ToggleBreakpoint(1) {
		t.Error("toggle should set a missing breakpoint")
	}
	if d.ToggleBreakpoint(1) {
		t.Error("toggle should remove an existing breakpoint")
	}

	d.SetBreakpoint(1)
	d.SetBreakpoint(6)
	d.SetBreakpoint(9)
	bps := d.Breakpoints()
	if len(bps) != 3 || bps[0].Line != 1 || bps[1].Line != 6 || bps[2].Line != 9 {
		t.Errorf("breakpoints = %+v, want lines 1, 6, 9", bps)
	}

	d.ClearBreakpoints()
	if len(d.Breakpoints()) != 0 || len(v.Breakpoints()) != 0 {
		t.Error("ClearBreakpoints should remove everything")
	}
}

func TestBreakpointsSurviveReload(t *testing.T) {
	d, v := newTestDebugger(t)
	d.SetBreakpoint(6)

	// Loading halts the VM, which drops its breakpoints.
	v.LoadObjectCode(testProgram(), asm.EpisodeI)
	if len(v.Breakpoints()) != 0 {
		t.Fatal("VM breakpoints should be cleared by a reload")
	}
	d.ActivateBreakpoints()
	if len(v.Breakpoints()) != 1 {
		t.Fatalf("vm breakpoints after activation = %v", v.Breakpoints())
	}

	v.StartThread(0)
	expectPausedAtLine(t, d, 6)
	if v.RegisterSigned(1) != 1 {
		t.Error("line 1 should have run")
	}

	d.DeactivateBreakpoints()
	if len(v.Breakpoints()) != 0 {
		t.Error("DeactivateBreakpoints should unregister from the VM")
	}
	if !d.HasBreakpoint(6) {
		t.Error("DeactivateBreakpoints should keep the source list")
	}
	if res := d.Execute(); res != vm.Suspended {
		t.Errorf("result = %s, want Suspended", res)
	}
}

func TestReloadWhileHaltedDropsStaleBreakpoints(t *testing.T) {
	d, v := newTestDebugger(t)
	v.Halt()
	// Resolves to 0:1 in the old code.
	d.SetBreakpoint(2)

	// Line 2 moves to 0:2; 0:1 is now line 11.
	v.LoadObjectCode([]asm.Segment{
		asm.InstructionSegment([]int{0},
			asm.NewInstruction(asm.OpLeti, 1, 1).At(10, 5),
			asm.NewInstruction(asm.OpLeti, 2, 1).At(11, 5),
			asm.NewInstruction(asm.OpLeti, 3, 1).At(2, 5),
			asm.NewInstruction(asm.OpRet).At(12, 5),
		),
	}, asm.EpisodeI)
	d.ActivateBreakpoints()

	bps := v.Breakpoints()
	if len(bps) != 1 || bps[0].SegIdx != 0 || bps[0].InstIdx != 2 {
		t.Fatalf("vm breakpoints = %v, want [0:2]", bps)
	}
	if err := v.StartThread(0); err != nil {
		t.Fatal(err)
	}
	expectPausedAtLine(t, d, 2)
	if v.RegisterSigned(2) != 1 || v.RegisterSigned(3) != 0 {
		t.Errorf("r2 = %d, r3 = %d", v.RegisterSigned(2), v.RegisterSigned(3))
	}
}

func TestActivateBreakpointsReplacesOldPointers(t *testing.T) {
	d, v := newTestDebugger(t)
	d.SetBreakpoint(3)
	d.SetBreakpoint(6)

	d.ActivateBreakpoints()
	d.ActivateBreakpoints()
	if len(v.Breakpoints()) != 2 {
		t.Errorf("vm breakpoints = %v, want 2", v.Breakpoints())
	}
}

func TestStepping(t *testing.T) {
	d, _ := newTestDebugger(t)
	d.SetBreakpoint(2)
	expectPausedAtLine(t, d, 2)

	d.StepIn()
	expectPausedAtLine(t, d, 6)

	d.StepOut()
	expectPausedAtLine(t, d, 3)

	d.StepOver()
	expectPausedAtLine(t, d, 4)

	d.Resume()
	if res := d.Execute(); res != vm.Suspended {
		t.Errorf("result = %s, want Suspended", res)
	}
}

func TestStepOverSkipsCall(t *testing.T) {
	d, v := newTestDebugger(t)
	d.SetBreakpoint(2)
	expectPausedAtLine(t, d, 2)

	d.StepOver()
	expectPausedAtLine(t, d, 3)
	if v.RegisterSigned(3) != 1 {
		t.Error("the callee should have run")
	}
}

func TestEvents(t *testing.T) {
	d, _ := newTestDebugger(t)
	d.SetBreakpoint(3)
	expectPausedAtLine(t, d, 3)

	select {
	case ev := <-d.Events():
		if ev.Type != "stopped" || ev.ThreadID != 0 || ev.Location == nil || ev.Location.LineNo != 3 {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Fatal("expected a stopped event")
	}

	d.StepIn()
	select {
	case ev := <-d.Events():
		if ev.Type != "continued" || ev.Reason != "step in" {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Fatal("expected a continued event")
	}
}

func TestThreadQueries(t *testing.T) {
	d, v := newTestDebugger(t)
	v.StartThread(1)

	ids := d.ThreadIDs()
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Fatalf("ThreadIDs = %v", ids)
	}
	if id, ok := d.CurrentThreadID(); !ok || id != 0 {
		t.Errorf("CurrentThreadID = %d, %v", id, ok)
	}
	if !d.SelectThread(1) {
		t.Fatal("SelectThread(1) should succeed")
	}
	if d.SelectThread(42) {
		t.Error("SelectThread(42) should fail")
	}
	if id, ok := d.DebuggingThreadID(); !ok || id != 1 {
		t.Errorf("DebuggingThreadID = %d, %v", id, ok)
	}
	ip := d.ThreadInstructionPointer(1)
	if ip == nil || ip.SegIdx != 2 || ip.InstIdx != 0 {
		t.Errorf("ThreadInstructionPointer(1) = %v", ip)
	}
}
