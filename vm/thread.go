package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
)

const (
	ArgStackSlots    = 8
	ArgStackSlotSize = 4
	// VariableStackSize is the number of register values a thread can save
	// with stack_push and stack_pushm.
	VariableStackSize = 16
)

// StepMode controls when Execute pauses a thread for the debugger.
type StepMode uint8

const (
	// StepBreakPoint runs until a breakpoint is hit.
	StepBreakPoint StepMode = iota
	// StepOver pauses at the next source instruction in the same or an outer
	// frame.
	StepOver
	// StepIn pauses at the next source instruction.
	StepIn
	// StepOut pauses at the next source instruction in an outer frame.
	StepOut
)

func (m StepMode) String() string {
	switch m {
	case StepBreakPoint:
		return "BreakPoint"
	case StepOver:
		return "Over"
	case StepIn:
		return "In"
	case StepOut:
		return "Out"
	}
	return fmt.Sprintf("StepMode(%d)", uint8(m))
}

// ParseStepMode parses a step mode name as produced by StepMode.String or
// its lowercase form. The empty string yields StepBreakPoint.
func ParseStepMode(s string) (StepMode, error) {
	switch s {
	case "", "BreakPoint", "breakpoint":
		return StepBreakPoint, nil
	case "Over", "over":
		return StepOver, nil
	case "In", "in":
		return StepIn, nil
	case "Out", "out":
		return StepOut, nil
	}
	return 0, fmt.Errorf("unknown step mode %q", s)
}

// StackFrame is one call stack entry. Idx is the frame's depth, 0 being the
// thread's entry frame.
type StackFrame struct {
	Idx int
	IP  *InstructionPointer
}

// Thread is a cooperative execution context. A thread is alive while its
// call stack is non-empty.
type Thread struct {
	ID int
	// AreaID is the floor a floor-local thread belongs to. Only meaningful
	// when Global is false.
	AreaID int
	Global bool

	StepMode  StepMode
	stepFrame *StackFrame

	callStack []StackFrame

	argStack [ArgStackSlots * ArgStackSlotSize]byte
	argKinds [ArgStackSlots]asm.Kind
	argCount int

	varStack []uint32

	io IO
}

func newThread(id int, io IO, entry *InstructionPointer, areaID int, global bool) *Thread {
	return &Thread{
		ID:        id,
		AreaID:    areaID,
		Global:    global,
		callStack: []StackFrame{{Idx: 0, IP: entry}},
		varStack:  make([]uint32, 0, VariableStackSize),
		io:        io,
	}
}

// CurrentStackFrame returns the innermost frame, or nil for a dead thread.
func (t *Thread) CurrentStackFrame() *StackFrame {
	if len(t.callStack) == 0 {
		return nil
	}
	return &t.callStack[len(t.callStack)-1]
}

// CallStack returns a copy of the call stack, outermost frame first.
func (t *Thread) CallStack() []StackFrame {
	return append([]StackFrame(nil), t.callStack...)
}

// StepFrame returns the frame that was current when the step mode was last
// set.
func (t *Thread) StepFrame() *StackFrame {
	return t.stepFrame
}

// SetStepMode sets the step mode and remembers the current frame as the
// reference for Over and Out.
func (t *Thread) SetStepMode(mode StepMode) {
	t.StepMode = mode
	if f := t.CurrentStackFrame(); f != nil {
		frame := *f
		t.stepFrame = &frame
	} else {
		t.stepFrame = nil
	}
}

func (t *Thread) pushFrame(ip *InstructionPointer) {
	t.callStack = append(t.callStack, StackFrame{Idx: len(t.callStack), IP: ip})
}

func (t *Thread) popCallStack() {
	if len(t.callStack) > 0 {
		t.callStack = t.callStack[:len(t.callStack)-1]
	}
}

func (t *Thread) setCurrentIP(ip *InstructionPointer) {
	t.callStack[len(t.callStack)-1].IP = ip
}

// ---------------------------------------------------------------------------
// Argument stack
// ---------------------------------------------------------------------------

// ArgCount returns the number of values currently on the argument stack.
func (t *Thread) ArgCount() int {
	return t.argCount
}

func (t *Thread) pushArg(value uint32, kind asm.Kind) error {
	if t.argCount >= ArgStackSlots {
		return ErrArgStackOverflow
	}
	off := t.argCount * ArgStackSlotSize
	slot := t.argStack[off : off+ArgStackSlotSize]
	switch kind {
	case asm.KindByte:
		slot[0] = uint8(value)
	case asm.KindWord:
		binary.LittleEndian.PutUint16(slot, uint16(value))
	default:
		binary.LittleEndian.PutUint32(slot, value)
	}
	t.argKinds[t.argCount] = kind
	t.argCount++
	return nil
}

// fetchArgs pops the stack arguments of the instruction at ip. Count and
// type mismatches are reported as warnings; the stack is emptied either way.
func (t *Thread) fetchArgs(ip *InstructionPointer) []uint32 {
	params := ip.Instruction().Opcode.StackParams()
	if params == nil {
		return nil
	}
	defer func() { t.argCount = 0 }()

	if len(params) != t.argCount {
		t.io.Warning(fmt.Sprintf("Argument stack: argument count mismatch, expected %d but got %d.", len(params), t.argCount), ip.SourceLocation())
	}

	args := make([]uint32, len(params))
	for i, param := range params {
		if i >= ArgStackSlots {
			break
		}
		if i < t.argCount && !argKindCompatible(param.Kind, t.argKinds[i]) {
			t.io.Warning(fmt.Sprintf("Argument stack: argument type mismatch at position %d, expected %s but got %s.", i, param.Kind, t.argKinds[i]), ip.SourceLocation())
		}
		off := i * ArgStackSlotSize
		slot := t.argStack[off : off+ArgStackSlotSize]
		switch param.Kind.Size() {
		case 1:
			args[i] = uint32(slot[0])
		case 2:
			args[i] = uint32(binary.LittleEndian.Uint16(slot))
		default:
			args[i] = binary.LittleEndian.Uint32(slot)
		}
	}
	return args
}

// argKindCompatible reports whether a value pushed with kind got may be
// consumed as a parameter of kind want.
func argKindCompatible(want, got asm.Kind) bool {
	if want == asm.KindAny {
		return true
	}
	switch want.Size() {
	case 1:
		return got == asm.KindByte
	case 2:
		return got == asm.KindWord
	}
	if want == asm.KindString {
		return got == asm.KindString || got == asm.KindDWord
	}
	return got == asm.KindDWord
}

// ---------------------------------------------------------------------------
// Variable stack
// ---------------------------------------------------------------------------

// VariableStack returns a copy of the saved register values, bottom first.
func (t *Thread) VariableStack() []uint32 {
	return append([]uint32(nil), t.varStack...)
}

func (t *Thread) pushVariables(values []uint32) error {
	if len(t.varStack)+len(values) > VariableStackSize {
		return fmt.Errorf("%w: stack overflow", ErrVariableStack)
	}
	t.varStack = append(t.varStack, values...)
	return nil
}

func (t *Thread) popVariables(n int) ([]uint32, error) {
	if n > len(t.varStack) {
		return nil, fmt.Errorf("%w: stack underflow", ErrVariableStack)
	}
	start := len(t.varStack) - n
	values := append([]uint32(nil), t.varStack[start:]...)
	t.varStack = t.varStack[:start]
	return values, nil
}
