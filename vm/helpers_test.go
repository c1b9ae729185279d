package vm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
)

// recordingIO records every callback for later assertions.
type recordingIO struct {
	calls    []string
	lists    [][]string
	warnings []string
	errors   []error
	pDead    bool

	floorHandlers [][2]uint32
	designations  [][2]int32
}

func (r *recordingIO) WindowMsg(msg string) { r.calls = append(r.calls, "window_msg "+msg) }
func (r *recordingIO) Message(msg string)   { r.calls = append(r.calls, "message "+msg) }
func (r *recordingIO) AddMsg(msg string)    { r.calls = append(r.calls, "add_msg "+msg) }
func (r *recordingIO) WinEnd()              { r.calls = append(r.calls, "winend") }
func (r *recordingIO) MesEnd()              { r.calls = append(r.calls, "mesend") }

func (r *recordingIO) List(items []string) {
	r.calls = append(r.calls, "list")
	r.lists = append(r.lists, items)
}

func (r *recordingIO) PDeadV3(slot uint32) bool {
	r.calls = append(r.calls, fmt.Sprintf("p_dead_v3 %d", slot))
	return r.pDead
}

func (r *recordingIO) SetFloorHandler(area uint32, label uint32) {
	r.floorHandlers = append(r.floorHandlers, [2]uint32{area, label})
}

func (r *recordingIO) MapDesignate(area int32, variant int32) {
	r.designations = append(r.designations, [2]int32{area, variant})
}

func (r *recordingIO) Warning(msg string, loc *asm.AsmToken) {
	r.warnings = append(r.warnings, msg)
}

func (r *recordingIO) Error(err error, loc *asm.AsmToken) {
	r.errors = append(r.errors, err)
}

func (r *recordingIO) count(prefix string) int {
	n := 0
	for _, c := range r.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func ins(op *asm.Opcode, args ...any) asm.Instruction {
	return asm.NewInstruction(op, args...)
}

// newTestVM loads the segments, starts a thread at label 0 and returns the
// VM with its recording IO.
func newTestVM(t *testing.T, segments []asm.Segment, opts ...Option) (*VM, *recordingIO) {
	t.Helper()
	io := &recordingIO{}
	opts = append([]Option{WithIO(io), WithRandom(NewRandom(0))}, opts...)
	vm := NewVM(opts...)
	vm.LoadObjectCode(segments, asm.EpisodeI)
	if err := vm.StartThread(0); err != nil {
		t.Fatalf("StartThread: %v", err)
	}
	return vm, io
}

// program builds a single entry segment labelled 0.
func program(instructions ...asm.Instruction) []asm.Segment {
	return []asm.Segment{asm.InstructionSegment([]int{0}, instructions...)}
}

func runToEnd(t *testing.T, vm *VM) ExecutionResult {
	t.Helper()
	for i := 0; i < 100; i++ {
		switch res := vm.Execute(); res {
		case WaitingVsync:
			vm.Vsync()
		case WaitingInput:
		default:
			return res
		}
	}
	t.Fatal("program did not finish")
	return Halted
}

func expectFatal(t *testing.T, vm *VM, io *recordingIO, target error) {
	t.Helper()
	if res := runToEnd(t, vm); res != Halted {
		t.Fatalf("result = %s, want Halted", res)
	}
	if len(io.errors) != 1 {
		t.Fatalf("errors = %v, want exactly one", io.errors)
	}
	if !errors.Is(io.errors[0], target) {
		t.Errorf("error = %v, want %v", io.errors[0], target)
	}
	if !vm.Halted() {
		t.Error("VM should be halted")
	}
}
