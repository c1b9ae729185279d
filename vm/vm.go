package vm

import (
	"fmt"
	"time"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("questvm.vm")

const (
	// DefaultExecutionLimit is the number of instructions a single Execute
	// call may dispatch.
	DefaultExecutionLimit = 10_000
	// EntryLabel names the segment a quest starts executing in.
	EntryLabel = 0

	noThread = -1
)

// ExecutionResult tells the host why Execute returned.
type ExecutionResult uint8

const (
	// Suspended means there are no live threads.
	Suspended ExecutionResult = iota
	// Paused means a breakpoint was hit or a step completed.
	Paused
	// WaitingVsync means every thread has yielded for the current frame.
	WaitingVsync
	// WaitingInput means a message is shown; call Execute to continue.
	WaitingInput
	// WaitingSelection means a list is shown; call ListSelect.
	WaitingSelection
	// Halted means exit was executed, a fatal error occurred or Halt was
	// called.
	Halted

	// continueExecution is returned by instructions that do not interrupt
	// the dispatch loop.
	continueExecution ExecutionResult = 0xff
)

var executionResultNames = [...]string{
	Suspended:        "Suspended",
	Paused:           "Paused",
	WaitingVsync:     "WaitingVsync",
	WaitingInput:     "WaitingInput",
	WaitingSelection: "WaitingSelection",
	Halted:           "Halted",
}

func (r ExecutionResult) String() string {
	if int(r) < len(executionResultNames) {
		return executionResultNames[r]
	}
	return fmt.Sprintf("ExecutionResult(%d)", uint8(r))
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Option configures a VM.
type Option func(*VM)

// WithIO sets the host I/O boundary. Defaults to a DefaultIO.
func WithIO(io IO) Option {
	return func(vm *VM) { vm.io = io }
}

// WithRandom sets the random generator used by get_random.
func WithRandom(r *Random) Option {
	return func(vm *VM) { vm.random = r }
}

// WithExecutionLimit sets the number of instructions one Execute call may
// dispatch before the VM halts with ErrExecutionLimit.
func WithExecutionLimit(n int) Option {
	return func(vm *VM) {
		if n > 0 {
			vm.executionLimit = n
		}
	}
}

// WithClock sets the clock read by gettime.
func WithClock(now func() time.Time) Option {
	return func(vm *VM) { vm.now = now }
}

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM emulates the quest script engine: registers, threads and instruction
// dispatch. A VM is not safe for concurrent use.
type VM struct {
	io             IO
	random         *Random
	executionLimit int
	now            func() time.Time

	episode       asm.Episode
	objectCode    []asm.Segment
	labelToSegIdx map[int]int

	registers        Memory
	stringArgStore   []byte
	threads          []*Thread
	threadIdx        int
	nextThreadID     int
	windowMsgOpen    bool
	messageOpen      bool
	setEpisodeCalled bool
	listOpen         bool
	selectionReg     uint8
	halted           bool

	// Pauses are ignored until an instruction on ignoreLine is reached.
	ignoringPauses bool
	ignoreLine     int

	breakpoints     []*InstructionPointer
	paused          bool
	debuggingThread int

	// Unsupported opcodes are only reported once.
	unsupportedLogged map[uint16]struct{}
}

// NewVM returns a halted VM with no object code loaded.
func NewVM(opts ...Option) *VM {
	vm := &VM{
		executionLimit:    DefaultExecutionLimit,
		now:               time.Now,
		labelToSegIdx:     map[int]int{},
		halted:            true,
		debuggingThread:   noThread,
		unsupportedLogged: map[uint16]struct{}{},
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.io == nil {
		vm.io = NewDefaultIO()
	}
	if vm.random == nil {
		vm.random = NewClockRandom()
	}
	return vm
}

// ObjectCode returns the loaded object code, nil before the first load.
func (vm *VM) ObjectCode() []asm.Segment { return vm.objectCode }

// Episode returns the episode the object code was loaded for.
func (vm *VM) Episode() asm.Episode { return vm.episode }

// Halted reports whether the VM is halted.
func (vm *VM) Halted() bool { return vm.halted }

// IsPaused reports whether the last Execute call returned Paused.
func (vm *VM) IsPaused() bool { return vm.paused }

// LoadObjectCode halts the VM, then installs new object code. No thread is
// started. Breakpoints always refer to the previous code and are dropped,
// even when the VM was already halted.
func (vm *VM) LoadObjectCode(objectCode []asm.Segment, episode asm.Episode) {
	vm.Halt()
	vm.breakpoints = nil

	log.Debug("Starting.")

	vm.objectCode = objectCode
	vm.episode = episode

	clear(vm.labelToSegIdx)
	for i := range objectCode {
		for _, label := range objectCode[i].Labels {
			vm.labelToSegIdx[label] = i
		}
	}

	vm.halted = false
}

// SegmentIndexByLabel resolves a label to the index of the segment it names.
func (vm *VM) SegmentIndexByLabel(label int) (int, error) {
	idx, ok := vm.labelToSegIdx[label]
	if !ok {
		return 0, fmt.Errorf("%w %d", ErrNoSuchLabel, label)
	}
	return idx, nil
}

// StartThread schedules a global thread at the given label. The label must
// name an instructions segment; otherwise no thread is registered.
func (vm *VM) StartThread(label int) error {
	_, err := vm.startThread(label, 0, true)
	return err
}

// StartFloorThread schedules a thread local to the given floor.
func (vm *VM) StartFloorThread(label int, areaID int) error {
	_, err := vm.startThread(label, areaID, false)
	return err
}

func (vm *VM) startThread(label int, areaID int, global bool) (*Thread, error) {
	entry, err := vm.labelEntry(label)
	if err != nil {
		return nil, err
	}

	thread := newThread(vm.nextThreadID, vm.io, entry, areaID, global)
	vm.nextThreadID++
	if vm.debuggingThread == noThread {
		vm.debuggingThread = thread.ID
	}
	vm.threads = append(vm.threads, thread)
	return thread, nil
}

// labelEntry returns a pointer to the first instruction of the segment named
// by label.
func (vm *VM) labelEntry(label int) (*InstructionPointer, error) {
	segIdx, err := vm.SegmentIndexByLabel(label)
	if err != nil {
		return nil, err
	}
	seg := &vm.objectCode[segIdx]
	if seg.Type != asm.SegmentInstructions {
		return nil, fmt.Errorf("%w: label %d points to a %s segment", ErrNotInstructionSegment, label, seg.Type)
	}
	return NewInstructionPointer(segIdx, 0, vm.objectCode)
}

// Execute runs instructions until a thread needs the host, all threads have
// yielded, a pause is due or the VM halts.
func (vm *VM) Execute() (result ExecutionResult) {
	if vm.halted {
		return Halted
	}

	var ip *InstructionPointer

	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			vm.fail(err, ip)
			result = Halted
		}
	}()

	for count := 0; count < vm.executionLimit; count++ {
		if len(vm.threads) >= 1 && vm.threadIdx >= len(vm.threads) {
			return WaitingVsync
		}

		thread := vm.currentThread()
		if thread == nil {
			vm.ignoringPauses = false
			return Suspended
		}

		debuggingCurrent := thread.ID == vm.debuggingThread
		frame := thread.CurrentStackFrame()
		ip = frame.IP

		// A paused VM is resuming: the pending instruction runs unchecked.
		if !vm.paused {
			if vm.hasBreakpoint(ip) {
				vm.paused = true
				vm.debuggingThread = thread.ID
				vm.ignoringPauses = false
				return Paused
			}

			if debuggingCurrent && !vm.ignoringPauses && vm.stepPauseDue(thread, frame, ip) {
				vm.paused = true
				return Paused
			}

			if debuggingCurrent && vm.ignoringPauses {
				if loc := ip.SourceLocation(); loc != nil && loc.LineNo == vm.ignoreLine {
					vm.ignoringPauses = false
				}
			}
		}

		vm.paused = false

		res, err := vm.executeInstruction(thread, ip)
		if err != nil {
			vm.fail(err, ip)
			return Halted
		}
		if res != continueExecution && res != WaitingVsync {
			return res
		}
	}

	vm.fail(ErrExecutionLimit, ip)
	return Halted
}

func (vm *VM) stepPauseDue(thread *Thread, frame *StackFrame, ip *InstructionPointer) bool {
	a := ip.Instruction().Asm
	if a == nil || a.Mnemonic == nil {
		return false
	}
	switch thread.StepMode {
	case StepOver:
		return thread.stepFrame != nil && frame.Idx <= thread.stepFrame.Idx
	case StepIn:
		return true
	case StepOut:
		return thread.stepFrame != nil && frame.Idx < thread.stepFrame.Idx
	}
	return false
}

func (vm *VM) fail(err error, ip *InstructionPointer) {
	var loc *asm.AsmToken
	if ip != nil {
		loc = ip.SourceLocation()
	}
	defer vm.Halt()
	vm.io.Error(err, loc)
}

// Vsync signals a new frame. Once every thread has yielded, scheduling
// restarts at the first thread.
func (vm *VM) Vsync() {
	if vm.threadIdx >= len(vm.threads) {
		vm.threadIdx = 0
	}
}

// Halt stops all threads and resets execution state. Loaded object code is
// kept, VM-side breakpoints are removed.
func (vm *VM) Halt() {
	if vm.halted {
		return
	}

	log.Debug("Halting.")

	vm.registers.Zero()
	vm.stringArgStore = nil
	vm.threads = nil
	vm.threadIdx = 0
	vm.nextThreadID = 0
	vm.windowMsgOpen = false
	vm.messageOpen = false
	vm.setEpisodeCalled = false
	vm.listOpen = false
	vm.selectionReg = 0
	vm.halted = true
	vm.paused = false
	vm.breakpoints = nil
	vm.debuggingThread = noThread
	clear(vm.unsupportedLogged)
	vm.ignoringPauses = false
}

// ListSelect answers the list shown by the last list instruction. Without an
// open list it returns ErrNoListOpen; the VM is not halted and IO.Error is
// not called.
func (vm *VM) ListSelect(idx uint32) error {
	if !vm.listOpen {
		return ErrNoListOpen
	}
	vm.registers.SetUnsigned(vm.selectionReg, idx)
	return nil
}

// ---------------------------------------------------------------------------
// Breakpoints and debugging
// ---------------------------------------------------------------------------

// SetBreakpoint registers a breakpoint. Duplicates are ignored.
func (vm *VM) SetBreakpoint(ip *InstructionPointer) {
	if !vm.hasBreakpoint(ip) {
		vm.breakpoints = append(vm.breakpoints, ip)
	}
}

// RemoveBreakpoint unregisters a breakpoint if present.
func (vm *VM) RemoveBreakpoint(ip *InstructionPointer) {
	for i, bp := range vm.breakpoints {
		if bp.Equal(ip) {
			vm.breakpoints = append(vm.breakpoints[:i], vm.breakpoints[i+1:]...)
			return
		}
	}
}

// ClearBreakpoints unregisters every breakpoint.
func (vm *VM) ClearBreakpoints() {
	vm.breakpoints = nil
}

// Breakpoints returns the registered breakpoints.
func (vm *VM) Breakpoints() []*InstructionPointer {
	return append([]*InstructionPointer(nil), vm.breakpoints...)
}

func (vm *VM) hasBreakpoint(ip *InstructionPointer) bool {
	for _, bp := range vm.breakpoints {
		if bp.Equal(ip) {
			return true
		}
	}
	return false
}

// SetStepMode sets the step mode of the thread being debugged.
func (vm *VM) SetStepMode(mode StepMode) {
	if t := vm.threadByID(vm.debuggingThread); t != nil {
		t.SetStepMode(mode)
	}
}

// SetDebuggingThread selects the thread step commands apply to. Returns
// false when no such thread exists.
func (vm *VM) SetDebuggingThread(id int) bool {
	if vm.threadByID(id) == nil {
		return false
	}
	vm.debuggingThread = id

	if cur := vm.currentThread(); cur != nil && cur.ID == id {
		vm.ignoringPauses = false
		return true
	}

	// Switching away from the executing thread: the selected thread looks
	// paused but has not reached its next pause yet. Skip one pause so a
	// single step command is enough.
	ip := vm.ThreadInstructionPointer(id)
	vm.ignoringPauses = false
	if ip != nil {
		if loc := ip.SourceLocation(); loc != nil {
			vm.ignoringPauses = true
			vm.ignoreLine = loc.LineNo
		}
	}
	return true
}

// DebuggingThreadID returns the id of the thread being debugged.
func (vm *VM) DebuggingThreadID() (int, bool) {
	return vm.debuggingThread, vm.debuggingThread != noThread
}

// CurrentThreadID returns the id of the thread that executes next.
func (vm *VM) CurrentThreadID() (int, bool) {
	if t := vm.currentThread(); t != nil {
		return t.ID, true
	}
	return 0, false
}

// ThreadIDs returns the ids of all live threads in scheduling order.
func (vm *VM) ThreadIDs() []int {
	ids := make([]int, len(vm.threads))
	for i, t := range vm.threads {
		ids[i] = t.ID
	}
	return ids
}

// Thread returns the live thread with the given id, or nil.
func (vm *VM) Thread(id int) *Thread {
	return vm.threadByID(id)
}

// InstructionPointer returns the pending instruction of the current thread.
func (vm *VM) InstructionPointer() *InstructionPointer {
	return framePointer(vm.currentThread())
}

// ThreadInstructionPointer returns the pending instruction of a thread.
func (vm *VM) ThreadInstructionPointer(id int) *InstructionPointer {
	return framePointer(vm.threadByID(id))
}

func framePointer(t *Thread) *InstructionPointer {
	if t == nil {
		return nil
	}
	if f := t.CurrentStackFrame(); f != nil {
		return f.IP
	}
	return nil
}

func (vm *VM) currentThread() *Thread {
	if vm.threadIdx < len(vm.threads) {
		return vm.threads[vm.threadIdx]
	}
	return nil
}

func (vm *VM) threadByID(id int) *Thread {
	for _, t := range vm.threads {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (vm *VM) threadIndex(thread *Thread) int {
	for i, t := range vm.threads {
		if t == thread {
			return i
		}
	}
	return -1
}

func (vm *VM) terminateThread(idx int) {
	thread := vm.threads[idx]
	vm.threads = append(vm.threads[:idx], vm.threads[idx+1:]...)

	if thread.ID == vm.debuggingThread {
		if len(vm.threads) == 0 {
			vm.debuggingThread = noThread
		} else {
			vm.debuggingThread = vm.threads[0].ID
		}
	}

	// The next thread moved into idx; only threads before it shift the
	// cursor.
	if vm.threadIdx > idx {
		vm.threadIdx--
	}

	log.Debugf("Thread #%d terminated.", thread.ID)
}

// ---------------------------------------------------------------------------
// Registers
// ---------------------------------------------------------------------------

// Registers returns the register bank.
func (vm *VM) Registers() *Memory { return &vm.registers }

// RegisterSigned reads register reg as int32.
func (vm *VM) RegisterSigned(reg uint8) int32 {
	return vm.registers.Signed(reg)
}

// SetRegisterSigned writes v to register reg as int32.
func (vm *VM) SetRegisterSigned(reg uint8, v int32) {
	vm.registers.SetSigned(reg, v)
}

// RegisterUnsigned reads register reg as uint32.
func (vm *VM) RegisterUnsigned(reg uint8) uint32 {
	return vm.registers.Unsigned(reg)
}

// SetRegisterUnsigned writes v to register reg as uint32.
func (vm *VM) SetRegisterUnsigned(reg uint8, v uint32) {
	vm.registers.SetUnsigned(reg, v)
}

// RegisterWord reads register reg as uint16.
func (vm *VM) RegisterWord(reg uint8) uint16 {
	return vm.registers.Word(reg)
}

// SetRegisterWord writes v to register reg as uint16.
func (vm *VM) SetRegisterWord(reg uint8, v uint16) {
	vm.registers.SetWord(reg, v)
}

// RegisterByte reads register reg as uint8.
func (vm *VM) RegisterByte(reg uint8) uint8 {
	return vm.registers.Byte(reg)
}

// SetRegisterByte writes v to register reg as uint8.
func (vm *VM) SetRegisterByte(reg uint8, v uint8) {
	vm.registers.SetByte(reg, v)
}

// RegisterFloat reads register reg as float32.
func (vm *VM) RegisterFloat(reg uint8) float32 {
	return vm.registers.Float(reg)
}

// SetRegisterFloat writes v to register reg as float32.
func (vm *VM) SetRegisterFloat(reg uint8, v float32) {
	vm.registers.SetFloat(reg, v)
}
