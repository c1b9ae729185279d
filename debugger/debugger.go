// Package debugger maps source lines to VM breakpoints and drives the VM's
// step modes.
package debugger

import (
	"sort"
	"sync"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/vm"
)

// ---------------------------------------------------------------------------
// Debugger: source-level breakpoints and stepping for a quest VM
// ---------------------------------------------------------------------------

// Debugger keeps the list of source breakpoints across VM halts and reloads.
// Each breakpoint is registered with the VM when its line resolves to an
// instruction.
type Debugger struct {
	vm          *vm.VM
	breakpoints map[int]*vm.InstructionPointer // line -> resolved pointer or nil
	eventChan   chan DebugEvent
	mu          sync.Mutex
}

// Breakpoint is a source breakpoint.
type Breakpoint struct {
	Line int
	// Active is true when the line resolved to an instruction and the
	// breakpoint is registered with the VM.
	Active bool
}

// DebugEvent reports a debugger state change to clients.
type DebugEvent struct {
	Type     string // "stopped", "continued"
	Reason   string
	ThreadID int
	Location *asm.AsmToken
}

// New returns a debugger for v.
func New(v *vm.VM) *Debugger {
	return &Debugger{
		vm:          v,
		breakpoints: make(map[int]*vm.InstructionPointer),
		eventChan:   make(chan DebugEvent, 16),
	}
}

// Events returns the channel debug events are sent on. Events are dropped
// when nobody drains it.
func (d *Debugger) Events() <-chan DebugEvent {
	return d.eventChan
}

func (d *Debugger) sendEvent(ev DebugEvent) {
	select {
	case d.eventChan <- ev:
	default:
	}
}

// ---------------------------------------------------------------------------
// Breakpoint management
// ---------------------------------------------------------------------------

// SetBreakpoint adds a breakpoint at the given source line. Returns false if
// one already exists.
func (d *Debugger) SetBreakpoint(line int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.breakpoints[line]; exists {
		return false
	}
	d.breakpoints[line] = d.activate(line)
	return true
}

// RemoveBreakpoint removes the breakpoint at the given line. Returns false if
// there is none.
func (d *Debugger) RemoveBreakpoint(line int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	ip, exists := d.breakpoints[line]
	if !exists {
		return false
	}
	if ip != nil {
		d.vm.RemoveBreakpoint(ip)
	}
	delete(d.breakpoints, line)
	return true
}

// ToggleBreakpoint removes the breakpoint at line if present, otherwise sets
// one. Returns whether a breakpoint exists afterwards.
func (d *Debugger) ToggleBreakpoint(line int) bool {
	if d.RemoveBreakpoint(line) {
		return false
	}
	return d.SetBreakpoint(line)
}

// ClearBreakpoints removes every breakpoint.
func (d *Debugger) ClearBreakpoints() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, ip := range d.breakpoints {
		if ip != nil {
			d.vm.RemoveBreakpoint(ip)
		}
	}
	d.breakpoints = make(map[int]*vm.InstructionPointer)
}

// Breakpoints returns all breakpoints ordered by line.
func (d *Debugger) Breakpoints() []Breakpoint {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make([]Breakpoint, 0, len(d.breakpoints))
	for line, ip := range d.breakpoints {
		result = append(result, Breakpoint{Line: line, Active: ip != nil})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Line < result[j].Line })
	return result
}

// HasBreakpoint reports whether a breakpoint is set at line.
func (d *Debugger) HasBreakpoint(line int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, exists := d.breakpoints[line]
	return exists
}

// ActivateBreakpoints resolves every breakpoint against the loaded object
// code and registers it with the VM. Call after loading new object code.
func (d *Debugger) ActivateBreakpoints() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, ip := range d.breakpoints {
		if ip != nil {
			d.vm.RemoveBreakpoint(ip)
		}
	}
	for line := range d.breakpoints {
		d.breakpoints[line] = d.activate(line)
	}
}

// DeactivateBreakpoints unregisters every breakpoint from the VM but keeps
// the source list.
func (d *Debugger) DeactivateBreakpoints() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for line, ip := range d.breakpoints {
		if ip != nil {
			d.vm.RemoveBreakpoint(ip)
		}
		d.breakpoints[line] = nil
	}
}

func (d *Debugger) activate(line int) *vm.InstructionPointer {
	ip := ResolveLine(d.vm.ObjectCode(), line)
	if ip != nil {
		d.vm.SetBreakpoint(ip)
	}
	return ip
}

// ResolveLine returns a pointer to the first instruction assembled from the
// given source line, or nil.
func ResolveLine(objectCode []asm.Segment, line int) *vm.InstructionPointer {
	for segIdx := range objectCode {
		seg := &objectCode[segIdx]
		if seg.Type != asm.SegmentInstructions {
			continue
		}
		for instIdx := range seg.Instructions {
			a := seg.Instructions[instIdx].Asm
			if a == nil || a.Mnemonic == nil || a.Mnemonic.LineNo != line {
				continue
			}
			ip, err := vm.NewInstructionPointer(segIdx, instIdx, objectCode)
			if err != nil {
				return nil
			}
			return ip
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Execution control
// ---------------------------------------------------------------------------

// Execute runs the VM once and reports pauses as "stopped" events.
func (d *Debugger) Execute() vm.ExecutionResult {
	res := d.vm.Execute()
	if res == vm.Paused {
		ev := DebugEvent{Type: "stopped", Reason: "pause"}
		if id, ok := d.vm.DebuggingThreadID(); ok {
			ev.ThreadID = id
		}
		if ip := d.vm.InstructionPointer(); ip != nil {
			ev.Location = ip.SourceLocation()
		}
		d.sendEvent(ev)
	}
	return res
}

// Resume continues until the next breakpoint.
func (d *Debugger) Resume() {
	d.step(vm.StepBreakPoint, "resume")
}

// StepOver pauses at the next line in the current or an outer frame.
func (d *Debugger) StepOver() {
	d.step(vm.StepOver, "step over")
}

// StepIn pauses at the next line, entering calls.
func (d *Debugger) StepIn() {
	d.step(vm.StepIn, "step in")
}

// StepOut pauses at the next line after the current frame returns.
func (d *Debugger) StepOut() {
	d.step(vm.StepOut, "step out")
}

func (d *Debugger) step(mode vm.StepMode, reason string) {
	d.vm.SetStepMode(mode)
	id, _ := d.vm.DebuggingThreadID()
	d.sendEvent(DebugEvent{Type: "continued", Reason: reason, ThreadID: id})
}

// ---------------------------------------------------------------------------
// Thread queries
// ---------------------------------------------------------------------------

// SelectThread selects the thread step commands apply to.
func (d *Debugger) SelectThread(id int) bool {
	return d.vm.SetDebuggingThread(id)
}

func (d *Debugger) DebuggingThreadID() (int, bool) {
	return d.vm.DebuggingThreadID()
}

func (d *Debugger) CurrentThreadID() (int, bool) {
	return d.vm.CurrentThreadID()
}

func (d *Debugger) ThreadIDs() []int {
	return d.vm.ThreadIDs()
}

// InstructionPointer returns the pending instruction of the current thread.
func (d *Debugger) InstructionPointer() *vm.InstructionPointer {
	return d.vm.InstructionPointer()
}

// ThreadInstructionPointer returns the pending instruction of a thread.
func (d *Debugger) ThreadInstructionPointer(id int) *vm.InstructionPointer {
	return d.vm.ThreadInstructionPointer(id)
}
