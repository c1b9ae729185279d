package vm

import (
	"fmt"
	"math"
	"strings"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
)

const listItemDelimiter = "\n"

// operandError is raised by operand accessors when object code refers to a
// register that does not exist. Execute recovers it as a fatal error.
type operandError struct {
	err error
}

func (e operandError) Error() string { return e.err.Error() }

func (e operandError) Unwrap() error { return e.err }

// operands decodes the direct arguments of an instruction.
type operands struct {
	ins *asm.Instruction
}

func (o operands) int(i int) int32 {
	return o.ins.Arg(i).Int()
}

func (o operands) float(i int) float32 {
	return float32(o.ins.Arg(i).Float())
}

func (o operands) label(i int) int {
	return int(o.ins.Arg(i).Int())
}

// reg returns argument i as a register number. n is the number of
// consecutive registers the instruction accesses from there.
func (o operands) reg(i int, n int) uint8 {
	r := o.ins.Arg(i).Int()
	if r < 0 || int(r)+n > RegisterCount {
		panic(operandError{fmt.Errorf("%w r%d", ErrInvalidRegister, r)})
	}
	return uint8(r)
}

// bits returns a literal pushed with arg_pushl. Floats are pushed as their
// IEEE-754 single precision representation.
func (o operands) bits(i int) uint32 {
	switch v := o.ins.Arg(i).Value.(type) {
	case float32:
		return math.Float32bits(v)
	case float64:
		return math.Float32bits(float32(v))
	}
	return uint32(o.int(i))
}

func (vm *VM) executeInstruction(thread *Thread, ip *InstructionPointer) (ExecutionResult, error) {
	ins := ip.Instruction()
	args := operands{ins}
	regs := &vm.registers

	result := continueExecution
	advance := true

	// A list is only answerable until the next instruction runs.
	vm.listOpen = false

	stackArgs := thread.fetchArgs(ip)

	var err error

	switch ins.Opcode.Code {
	case asm.CodeNop:

	case asm.CodeRet:
		thread.popCallStack()
		if len(thread.callStack) == 0 {
			vm.terminateThread(vm.threadIndex(thread))
		} else {
			// Resume the caller after its call instruction.
			err = vm.advance(thread)
		}
		advance = false

	case asm.CodeSync:
		advance = false
		if err = vm.advance(thread); err == nil {
			if vm.threadIndex(thread) >= 0 {
				vm.threadIdx++
			}
			result = WaitingVsync
		}

	case asm.CodeExit:
		vm.Halt()
		return Halted, nil

	case asm.CodeThread, asm.CodeThreadStg:
		_, err = vm.startThread(args.label(0), 0, true)

	// ========================================================================
	// Register assignment
	// ========================================================================

	case asm.CodeLet:
		regs.SetSigned(args.reg(0, 1), regs.Signed(args.reg(1, 1)))
	case asm.CodeLeti:
		regs.SetSigned(args.reg(0, 1), args.int(1))
	case asm.CodeLetb:
		regs.SetByte(args.reg(0, 1), uint8(args.int(1)))
	case asm.CodeLetw:
		regs.SetWord(args.reg(0, 1), uint16(args.int(1)))
	case asm.CodeLeta:
		regs.SetUnsigned(args.reg(0, 1), Address(args.reg(1, 1)))
	case asm.CodeFlet:
		regs.SetFloat(args.reg(0, 1), regs.Float(args.reg(1, 1)))
	case asm.CodeFleti:
		regs.SetFloat(args.reg(0, 1), args.float(1))
	case asm.CodeSet:
		regs.SetSigned(args.reg(0, 1), 1)
	case asm.CodeClear:
		regs.SetSigned(args.reg(0, 1), 0)
	case asm.CodeRev:
		r := args.reg(0, 1)
		if regs.Signed(r) == 0 {
			regs.SetSigned(r, 1)
		} else {
			regs.SetSigned(r, 0)
		}

	// ========================================================================
	// Arithmetic
	// ========================================================================

	case asm.CodeAdd, asm.CodeSub, asm.CodeMul, asm.CodeDiv, asm.CodeMod,
		asm.CodeAnd, asm.CodeOr, asm.CodeXor, asm.CodeShiftLeft, asm.CodeShiftRight:
		r := args.reg(0, 1)
		err = vm.integerOp(ins.Opcode.Code, r, regs.Signed(args.reg(1, 1)))

	case asm.CodeAddi, asm.CodeSubi, asm.CodeMuli, asm.CodeDivi, asm.CodeModi,
		asm.CodeAndi, asm.CodeOri, asm.CodeXori:
		err = vm.integerOp(ins.Opcode.Code, args.reg(0, 1), args.int(1))

	case asm.CodeFadd, asm.CodeFsub, asm.CodeFmul, asm.CodeFdiv:
		r := args.reg(0, 1)
		err = vm.floatOp(ins.Opcode.Code, r, regs.Float(args.reg(1, 1)))

	case asm.CodeFaddi, asm.CodeFsubi, asm.CodeFmuli, asm.CodeFdivi:
		// Literals are rounded to single precision first, as the engine does.
		err = vm.floatOp(ins.Opcode.Code, args.reg(0, 1), args.float(1))

	// ========================================================================
	// Jumps
	// ========================================================================

	case asm.CodeJmp:
		err = vm.jumpToLabel(thread, args.label(0))
		advance = false

	case asm.CodeCall:
		var entry *InstructionPointer
		if entry, err = vm.labelEntry(args.label(0)); err == nil {
			thread.pushFrame(entry)
		}
		advance = false

	case asm.CodeJmpOn, asm.CodeJmpOff:
		wantNonZero := ins.Opcode.Code == asm.CodeJmpOn
		cond := true
		for i := 1; i < len(ins.Args) && cond; i++ {
			cond = (regs.Signed(args.reg(i, 1)) != 0) == wantNonZero
		}
		err = vm.conditionalJump(thread, args.label(0), cond)
		advance = false

	case asm.CodeJmpE, asm.CodeJmpNe, asm.CodeJmpG, asm.CodeJmpL, asm.CodeJmpGe, asm.CodeJmpLe:
		a, b := regs.Signed(args.reg(0, 1)), regs.Signed(args.reg(1, 1))
		err = vm.conditionalJump(thread, args.label(2), compare(ins.Opcode.Code, a, b))
		advance = false

	case asm.CodeJmpiE, asm.CodeJmpiNe, asm.CodeJmpiG, asm.CodeJmpiL, asm.CodeJmpiGe, asm.CodeJmpiLe:
		a := regs.Signed(args.reg(0, 1))
		err = vm.conditionalJump(thread, args.label(2), compare(ins.Opcode.Code, a, args.int(1)))
		advance = false

	case asm.CodeUjmpG, asm.CodeUjmpL, asm.CodeUjmpGe, asm.CodeUjmpLe:
		a, b := regs.Unsigned(args.reg(0, 1)), regs.Unsigned(args.reg(1, 1))
		err = vm.conditionalJump(thread, args.label(2), compare(ins.Opcode.Code, a, b))
		advance = false

	case asm.CodeUjmpiG, asm.CodeUjmpiL, asm.CodeUjmpiGe, asm.CodeUjmpiLe:
		a := regs.Unsigned(args.reg(0, 1))
		err = vm.conditionalJump(thread, args.label(2), compare(ins.Opcode.Code, a, uint32(args.int(1))))
		advance = false

	// ========================================================================
	// Stacks
	// ========================================================================

	case asm.CodeStackPush:
		err = vm.pushVariableStack(thread, args.reg(0, 1), 1)
	case asm.CodeStackPop:
		err = vm.popVariableStack(thread, args.reg(0, 1), 1)
	case asm.CodeStackPushm:
		n := int(args.int(1))
		err = vm.pushVariableStack(thread, args.reg(0, max(n, 0)), n)
	case asm.CodeStackPopm:
		n := int(args.int(1))
		err = vm.popVariableStack(thread, args.reg(0, max(n, 0)), n)

	case asm.CodeArgPushr:
		err = thread.pushArg(regs.Unsigned(args.reg(0, 1)), asm.KindDWord)
	case asm.CodeArgPushl:
		err = thread.pushArg(args.bits(0), asm.KindDWord)
	case asm.CodeArgPushb:
		err = thread.pushArg(uint32(args.int(0)), asm.KindByte)
	case asm.CodeArgPushw:
		err = thread.pushArg(uint32(args.int(0)), asm.KindWord)
	case asm.CodeArgPusha:
		err = thread.pushArg(Address(args.reg(0, 1)), asm.KindDWord)
	case asm.CodeArgPushs:
		if s, ok := ins.Arg(0).Value.(string); ok {
			vm.stringArgStore = encodeStringArg(vm.renderTemplate(s))
			err = thread.pushArg(StringArgStoreAddress, asm.KindString)
		}

	// ========================================================================
	// Dialogs
	// ========================================================================

	case asm.CodeMessage:
		var text string
		if text, err = vm.derefString(stackArgs[1]); err == nil {
			vm.messageOpen = true
			vm.io.Message(text)
			result = WaitingInput
		}

	case asm.CodeMesend:
		if vm.messageOpen {
			vm.messageOpen = false
			vm.io.MesEnd()
		}

	case asm.CodeList:
		// List and message windows cannot coexist.
		if !vm.windowMsgOpen {
			var text string
			if text, err = vm.derefString(stackArgs[1]); err == nil {
				vm.listOpen = true
				vm.selectionReg = uint8(stackArgs[0])
				vm.io.List(strings.Split(text, listItemDelimiter))
				result = WaitingSelection
			}
		}

	case asm.CodeWindowMsg:
		if !vm.windowMsgOpen {
			var text string
			if text, err = vm.derefString(stackArgs[0]); err == nil {
				vm.windowMsgOpen = true
				vm.io.WindowMsg(text)
				result = WaitingInput
			}
		}

	case asm.CodeAddMsg:
		if vm.windowMsgOpen {
			var text string
			if text, err = vm.derefString(stackArgs[0]); err == nil {
				vm.io.AddMsg(text)
				result = WaitingInput
			}
		}

	case asm.CodeWinend:
		if vm.windowMsgOpen {
			vm.windowMsgOpen = false
			vm.io.WinEnd()
		}

	// ========================================================================
	// Engine effects
	// ========================================================================

	case asm.CodeGettime:
		regs.SetUnsigned(args.reg(0, 1), uint32(vm.now().Unix()))

	case asm.CodePDeadV3:
		var dead int32
		if vm.io.PDeadV3(stackArgs[1]) {
			dead = 1
		}
		regs.SetSigned(uint8(stackArgs[0]), dead)

	case asm.CodeSetFloorHandler:
		vm.io.SetFloorHandler(stackArgs[0], stackArgs[1])

	case asm.CodeMapDesignate:
		r := args.reg(0, 3)
		vm.io.MapDesignate(regs.Signed(r), regs.Signed(r+2))

	case asm.CodeMapDesignateEx:
		r := args.reg(0, 5)
		vm.io.MapDesignate(regs.Signed(r), regs.Signed(r+3))

	case asm.CodeBbMapDesignate:
		vm.io.MapDesignate(args.int(0), args.int(2))

	case asm.CodeGetRandom:
		r := args.reg(0, 2)
		low, hi := regs.Signed(r), regs.Signed(r+1)
		n := vm.random.Next()
		v := math.Floor(float64(float32(float64(n)/32768.0)) * float64(hi))
		// Values below low are raised to low but nothing lowers values above
		// hi. The engine behaves the same.
		if float64(low) >= v {
			v = float64(low)
		}
		regs.SetSigned(args.reg(1, 1), int32(v))

	case asm.CodeSetEpisode:
		vm.setEpisode(ip, args.int(0))

	default:
		if _, logged := vm.unsupportedLogged[ins.Opcode.Code]; !logged {
			vm.unsupportedLogged[ins.Opcode.Code] = struct{}{}
			vm.io.Warning(fmt.Sprintf("Unsupported instruction %s.", ins.Opcode.Mnemonic), ip.SourceLocation())
		}
	}

	if err != nil {
		return continueExecution, err
	}

	if advance && !vm.halted {
		if err := vm.advance(thread); err != nil {
			return continueExecution, err
		}
	}

	return result, nil
}

// advance moves the thread to its next instruction. A thread running off the
// end of the object code from its entry frame terminates.
func (vm *VM) advance(thread *Thread) error {
	frame := thread.CurrentStackFrame()
	if frame == nil {
		return nil
	}

	if next := frame.IP.Next(); next != nil {
		thread.setCurrentIP(next)
		return nil
	}

	if len(thread.callStack) > 1 {
		return ErrEndOfObjectCode
	}
	thread.popCallStack()
	if idx := vm.threadIndex(thread); idx >= 0 {
		vm.terminateThread(idx)
	}
	return nil
}

func (vm *VM) jumpToLabel(thread *Thread, label int) error {
	segIdx, err := vm.SegmentIndexByLabel(label)
	if err != nil {
		return err
	}
	ip, err := NewInstructionPointer(segIdx, 0, vm.objectCode)
	if err != nil {
		return err
	}
	thread.setCurrentIP(ip)
	return nil
}

func (vm *VM) conditionalJump(thread *Thread, label int, cond bool) error {
	if cond {
		return vm.jumpToLabel(thread, label)
	}
	return vm.advance(thread)
}

func compare[T int32 | uint32](code uint16, a, b T) bool {
	switch code {
	case asm.CodeJmpE, asm.CodeJmpiE:
		return a == b
	case asm.CodeJmpNe, asm.CodeJmpiNe:
		return a != b
	case asm.CodeJmpG, asm.CodeJmpiG, asm.CodeUjmpG, asm.CodeUjmpiG:
		return a > b
	case asm.CodeJmpL, asm.CodeJmpiL, asm.CodeUjmpL, asm.CodeUjmpiL:
		return a < b
	case asm.CodeJmpGe, asm.CodeJmpiGe, asm.CodeUjmpGe, asm.CodeUjmpiGe:
		return a >= b
	case asm.CodeJmpLe, asm.CodeJmpiLe, asm.CodeUjmpLe, asm.CodeUjmpiLe:
		return a <= b
	}
	return false
}

// integerOp applies a 32-bit integer operation to register r. Results wrap
// on overflow.
func (vm *VM) integerOp(code uint16, r uint8, b int32) error {
	a := vm.registers.Signed(r)
	var v int32

	switch code {
	case asm.CodeAdd, asm.CodeAddi:
		v = a + b
	case asm.CodeSub, asm.CodeSubi:
		v = a - b
	case asm.CodeMul, asm.CodeMuli:
		v = a * b
	case asm.CodeDiv, asm.CodeDivi:
		if b == 0 {
			return ErrDivisionByZero
		}
		v = floorDiv(a, b)
	case asm.CodeMod, asm.CodeModi:
		if b == 0 {
			return ErrDivisionByZero
		}
		v = a % b
	case asm.CodeAnd, asm.CodeAndi:
		v = a & b
	case asm.CodeOr, asm.CodeOri:
		v = a | b
	case asm.CodeXor, asm.CodeXori:
		v = a ^ b
	case asm.CodeShiftLeft:
		v = a << (uint32(b) & 31)
	case asm.CodeShiftRight:
		v = int32(uint32(a) >> (uint32(b) & 31))
	}

	vm.registers.SetSigned(r, v)
	return nil
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int32) int32 {
	q := int64(a) / int64(b)
	if (int64(a)%int64(b) != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return int32(q)
}

// floatOp applies a single precision operation to register r.
func (vm *VM) floatOp(code uint16, r uint8, b float32) error {
	a := vm.registers.Float(r)
	var v float32

	switch code {
	case asm.CodeFadd, asm.CodeFaddi:
		v = a + b
	case asm.CodeFsub, asm.CodeFsubi:
		v = a - b
	case asm.CodeFmul, asm.CodeFmuli:
		v = a * b
	case asm.CodeFdiv, asm.CodeFdivi:
		if b == 0 {
			return ErrDivisionByZero
		}
		v = a / b
	}

	vm.registers.SetFloat(r, v)
	return nil
}

func (vm *VM) pushVariableStack(thread *Thread, base uint8, n int) error {
	if n < 0 || int(base)+n > RegisterCount {
		return fmt.Errorf("%w: invalid register", ErrVariableStack)
	}
	values := make([]uint32, n)
	for i := range values {
		values[i] = vm.registers.Unsigned(base + uint8(i))
	}
	return thread.pushVariables(values)
}

func (vm *VM) popVariableStack(thread *Thread, base uint8, n int) error {
	if n < 0 || int(base)+n > RegisterCount {
		return fmt.Errorf("%w: invalid register", ErrVariableStack)
	}
	values, err := thread.popVariables(n)
	if err != nil {
		return err
	}
	for i, v := range values {
		vm.registers.SetUnsigned(base+uint8(i), v)
	}
	return nil
}

func (vm *VM) setEpisode(ip *InstructionPointer, episode int32) {
	if vm.setEpisodeCalled {
		vm.io.Warning("Calling set_episode more than once is not supported.", ip.SourceLocation())
		return
	}
	vm.setEpisodeCalled = true

	if !ip.Segment().HasLabel(EntryLabel) {
		vm.io.Warning(fmt.Sprintf("Calling set_episode outside of segment %d is not supported.", EntryLabel), ip.SourceLocation())
		return
	}

	if int32(vm.episode) != episode {
		vm.io.Warning("Calling set_episode with an argument that does not match the quest's designated episode is not supported.", ip.SourceLocation())
	}
}
