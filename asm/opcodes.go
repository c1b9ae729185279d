package asm

import "fmt"

// Kind enumerates the parameter types opcodes declare.
type Kind uint8

const (
	KindAny Kind = iota
	KindByte
	KindWord
	KindDWord
	KindFloat
	KindLabel
	KindILabel
	KindDLabel
	KindSLabel
	KindString
	KindILabelVar
	KindRegRef
	KindRegTupRef
	KindRegRefVar
	KindPointer
)

var kindNames = [...]string{
	KindAny:       "Any",
	KindByte:      "Byte",
	KindWord:      "Word",
	KindDWord:     "DWord",
	KindFloat:     "Float",
	KindLabel:     "Label",
	KindILabel:    "ILabel",
	KindDLabel:    "DLabel",
	KindSLabel:    "SLabel",
	KindString:    "String",
	KindILabelVar: "ILabelVar",
	KindRegRef:    "RegRef",
	KindRegTupRef: "RegTupRef",
	KindRegRefVar: "RegRefVar",
	KindPointer:   "Pointer",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Size returns the number of bytes a value of this kind occupies when passed
// on the argument stack.
func (k Kind) Size() int {
	switch k {
	case KindByte, KindRegRef, KindRegTupRef:
		return 1
	case KindWord, KindLabel, KindILabel, KindDLabel, KindSLabel:
		return 2
	default:
		return 4
	}
}

// IsLabel reports whether k names an instruction, data or string label.
func (k Kind) IsLabel() bool {
	switch k {
	case KindLabel, KindILabel, KindDLabel, KindSLabel, KindILabelVar:
		return true
	}
	return false
}

// ParamAccess is the way an instruction accesses the registers a parameter
// refers to. Only meaningful for register references.
type ParamAccess uint8

const (
	AccessNone ParamAccess = iota
	AccessRead
	AccessWrite
	AccessReadWrite
)

// Param describes one opcode parameter.
type Param struct {
	Kind   Kind
	Access ParamAccess
	// RegisterTuple lists the registers referenced by a KindRegTupRef
	// parameter, starting at the referenced register.
	RegisterTuple []Param
	Doc           string
}

// StackInteraction tells whether an opcode pushes to or pops from the
// argument stack.
type StackInteraction uint8

const (
	StackNone StackInteraction = iota
	StackPush
	StackPop
)

// Opcode is an immutable description of one object code operation.
// Opcodes are shared between all instructions that invoke them.
type Opcode struct {
	// Code is the 1- or 2-byte big-endian representation used in object code.
	Code     uint16
	Mnemonic string
	Doc      string
	// Params are passed in directly or via the argument stack, depending on
	// Stack.
	Params []Param
	Stack  StackInteraction
}

// Size returns the encoded byte size of the opcode, 1 or 2.
func (op *Opcode) Size() int {
	if op.Code < 0x100 {
		return 1
	}
	return 2
}

// StackParams returns the parameters an instruction pops from the argument
// stack, or nil when the opcode takes no stack arguments.
func (op *Opcode) StackParams() []Param {
	if op.Stack != StackPop {
		return nil
	}
	return op.Params
}

func (op *Opcode) String() string {
	return op.Mnemonic
}

// ---------------------------------------------------------------------------
// Opcode codes
// ---------------------------------------------------------------------------

const (
	// ========================================================================
	// Control flow and threads (0x00-0x07)
	// ========================================================================

	CodeNop    uint16 = 0x00
	CodeRet    uint16 = 0x01
	CodeSync   uint16 = 0x02
	CodeExit   uint16 = 0x03
	CodeThread uint16 = 0x04

	// ========================================================================
	// Register assignment (0x08-0x12)
	// ========================================================================

	CodeLet   uint16 = 0x08
	CodeLeti  uint16 = 0x09
	CodeLetb  uint16 = 0x0a
	CodeLetw  uint16 = 0x0b
	CodeLeta  uint16 = 0x0c
	CodeSet   uint16 = 0x10
	CodeClear uint16 = 0x11
	CodeRev   uint16 = 0x12

	// ========================================================================
	// Integer arithmetic and bit operations (0x18-0x27)
	// ========================================================================

	CodeAdd  uint16 = 0x18
	CodeAddi uint16 = 0x19
	CodeSub  uint16 = 0x1a
	CodeSubi uint16 = 0x1b
	CodeMul  uint16 = 0x1c
	CodeMuli uint16 = 0x1d
	CodeDiv  uint16 = 0x1e
	CodeDivi uint16 = 0x1f
	CodeAnd  uint16 = 0x20
	CodeAndi uint16 = 0x21
	CodeOr   uint16 = 0x22
	CodeOri  uint16 = 0x23
	CodeXor  uint16 = 0x24
	CodeXori uint16 = 0x25
	CodeMod  uint16 = 0x26
	CodeModi uint16 = 0x27

	// ========================================================================
	// Jumps (0x28-0x3F)
	// ========================================================================

	CodeJmp     uint16 = 0x28
	CodeCall    uint16 = 0x29
	CodeJmpOn   uint16 = 0x2a
	CodeJmpOff  uint16 = 0x2b
	CodeJmpE    uint16 = 0x2c
	CodeJmpiE   uint16 = 0x2d
	CodeJmpNe   uint16 = 0x2e
	CodeJmpiNe  uint16 = 0x2f
	CodeUjmpG   uint16 = 0x30
	CodeUjmpiG  uint16 = 0x31
	CodeJmpG    uint16 = 0x32
	CodeJmpiG   uint16 = 0x33
	CodeUjmpL   uint16 = 0x34
	CodeUjmpiL  uint16 = 0x35
	CodeJmpL    uint16 = 0x36
	CodeJmpiL   uint16 = 0x37
	CodeUjmpGe  uint16 = 0x38
	CodeUjmpiGe uint16 = 0x39
	CodeJmpGe   uint16 = 0x3a
	CodeJmpiGe  uint16 = 0x3b
	CodeUjmpLe  uint16 = 0x3c
	CodeUjmpiLe uint16 = 0x3d
	CodeJmpLe   uint16 = 0x3e
	CodeJmpiLe  uint16 = 0x3f

	// ========================================================================
	// Variable and argument stacks (0x42-0x4E)
	// ========================================================================

	CodeStackPush  uint16 = 0x42
	CodeStackPop   uint16 = 0x43
	CodeStackPushm uint16 = 0x44
	CodeStackPopm  uint16 = 0x45
	CodeArgPushr   uint16 = 0x48
	CodeArgPushl   uint16 = 0x49
	CodeArgPushb   uint16 = 0x4a
	CodeArgPushw   uint16 = 0x4b
	CodeArgPusha   uint16 = 0x4c
	CodeArgPushs   uint16 = 0x4e

	// ========================================================================
	// Dialogs (0x50-0x5E)
	// ========================================================================

	CodeMessage   uint16 = 0x50
	CodeList      uint16 = 0x51
	CodeWindowMsg uint16 = 0x5a
	CodeAddMsg    uint16 = 0x5b
	CodeMesend    uint16 = 0x5c
	CodeGettime   uint16 = 0x5d
	CodeWinend    uint16 = 0x5e

	// ========================================================================
	// Engine queries and handlers (0x6A-0xC4)
	// ========================================================================

	CodePDeadV3         uint16 = 0x6a
	CodeSetFloorHandler uint16 = 0x95
	CodeThreadStg       uint16 = 0xb1
	CodeMapDesignate    uint16 = 0xc4

	// ========================================================================
	// Two-byte opcodes (0xF8xx-0xF9xx)
	// ========================================================================

	CodeMapDesignateEx uint16 = 0xf80d
	CodeShiftLeft      uint16 = 0xf898
	CodeShiftRight     uint16 = 0xf899
	CodeGetRandom      uint16 = 0xf89a
	CodeSetEpisode     uint16 = 0xf8bc
	CodeFlet           uint16 = 0xf903
	CodeFleti          uint16 = 0xf904
	CodeFadd           uint16 = 0xf908
	CodeFaddi          uint16 = 0xf909
	CodeFsub           uint16 = 0xf90a
	CodeFsubi          uint16 = 0xf90b
	CodeFmul           uint16 = 0xf90c
	CodeFmuli          uint16 = 0xf90d
	CodeFdiv           uint16 = 0xf90e
	CodeFdivi          uint16 = 0xf90f
	CodeBbMapDesignate uint16 = 0xf951
)

// ---------------------------------------------------------------------------
// Parameter constructors
// ---------------------------------------------------------------------------

func p(k Kind) Param { return Param{Kind: k} }

func pdoc(k Kind, doc string) Param { return Param{Kind: k, Doc: doc} }

func r(k Kind) Param { return Param{Kind: k, Access: AccessRead} }

func w(k Kind) Param { return Param{Kind: k, Access: AccessWrite} }

func rw(k Kind) Param { return Param{Kind: k, Access: AccessReadWrite} }

// tup declares a register tuple reference.
func tup(regs ...Param) Param { return Param{Kind: KindRegTupRef, RegisterTuple: regs} }

func params(ps ...Param) []Param { return ps }

// ---------------------------------------------------------------------------
// Opcode table
// ---------------------------------------------------------------------------

var (
	OpNop    = def(CodeNop, "nop", "No operation, does nothing.", nil, StackNone)
	OpRet    = def(CodeRet, "ret", "Returns control to caller.", nil, StackNone)
	OpSync   = def(CodeSync, "sync", "Yields control for the rest of the current frame.", nil, StackNone)
	OpExit   = def(CodeExit, "exit", "", params(p(KindDWord)), StackPop)
	OpThread = def(CodeThread, "thread", "Starts a new thread at the given label.", params(p(KindILabel)), StackNone)

	OpLet   = def(CodeLet, "let", "Sets the first register's value to the second one's value.", params(tup(w(KindDWord)), tup(r(KindDWord))), StackNone)
	OpLeti  = def(CodeLeti, "leti", "Sets a register to the given value.", params(tup(w(KindDWord)), p(KindDWord)), StackNone)
	OpLetb  = def(CodeLetb, "letb", "Sets a register to the given value.", params(tup(w(KindByte)), p(KindByte)), StackNone)
	OpLetw  = def(CodeLetw, "letw", "Sets a register to the given value.", params(tup(w(KindWord)), p(KindWord)), StackNone)
	OpLeta  = def(CodeLeta, "leta", "Sets the first register to the memory address of the second register.", params(tup(w(KindPointer)), tup(r(KindAny))), StackNone)
	OpSet   = def(CodeSet, "set", "Sets a register to 1.", params(tup(w(KindDWord))), StackNone)
	OpClear = def(CodeClear, "clear", "Sets a register to 0.", params(tup(w(KindDWord))), StackNone)
	OpRev   = def(CodeRev, "rev", "Sets a register to 1 if its value is 0, otherwise to 0.", params(tup(rw(KindDWord))), StackNone)

	OpAdd  = intRegOp(CodeAdd, "add")
	OpAddi = intLitOp(CodeAddi, "addi")
	OpSub  = intRegOp(CodeSub, "sub")
	OpSubi = intLitOp(CodeSubi, "subi")
	OpMul  = intRegOp(CodeMul, "mul")
	OpMuli = intLitOp(CodeMuli, "muli")
	OpDiv  = intRegOp(CodeDiv, "div")
	OpDivi = intLitOp(CodeDivi, "divi")
	OpAnd  = intRegOp(CodeAnd, "and")
	OpAndi = intLitOp(CodeAndi, "andi")
	OpOr   = intRegOp(CodeOr, "or")
	OpOri  = intLitOp(CodeOri, "ori")
	OpXor  = intRegOp(CodeXor, "xor")
	OpXori = intLitOp(CodeXori, "xori")
	OpMod  = intRegOp(CodeMod, "mod")
	OpModi = intLitOp(CodeModi, "modi")

	OpJmp    = def(CodeJmp, "jmp", "", params(p(KindILabel)), StackNone)
	OpCall   = def(CodeCall, "call", "", params(p(KindILabel)), StackNone)
	OpJmpOn  = def(CodeJmpOn, "jmp_on", "Jumps when all given registers are nonzero.", params(p(KindILabel), p(KindRegRefVar)), StackNone)
	OpJmpOff = def(CodeJmpOff, "jmp_off", "Jumps when all given registers are zero.", params(p(KindILabel), p(KindRegRefVar)), StackNone)

	OpJmpE   = def(CodeJmpE, "jmp_=", "", params(tup(r(KindAny)), tup(r(KindAny)), p(KindILabel)), StackNone)
	OpJmpiE  = jmpLitOp(CodeJmpiE, "jmpi_=")
	OpJmpNe  = def(CodeJmpNe, "jmp_!=", "", params(tup(r(KindAny)), tup(r(KindAny)), p(KindILabel)), StackNone)
	OpJmpiNe = jmpLitOp(CodeJmpiNe, "jmpi_!=")

	OpUjmpG   = jmpRegOp(CodeUjmpG, "ujmp_>")
	OpUjmpiG  = jmpLitOp(CodeUjmpiG, "ujmpi_>")
	OpJmpG    = jmpRegOp(CodeJmpG, "jmp_>")
	OpJmpiG   = jmpLitOp(CodeJmpiG, "jmpi_>")
	OpUjmpL   = jmpRegOp(CodeUjmpL, "ujmp_<")
	OpUjmpiL  = jmpLitOp(CodeUjmpiL, "ujmpi_<")
	OpJmpL    = jmpRegOp(CodeJmpL, "jmp_<")
	OpJmpiL   = jmpLitOp(CodeJmpiL, "jmpi_<")
	OpUjmpGe  = jmpRegOp(CodeUjmpGe, "ujmp_>=")
	OpUjmpiGe = jmpLitOp(CodeUjmpiGe, "ujmpi_>=")
	OpJmpGe   = jmpRegOp(CodeJmpGe, "jmp_>=")
	OpJmpiGe  = jmpLitOp(CodeJmpiGe, "jmpi_>=")
	OpUjmpLe  = jmpRegOp(CodeUjmpLe, "ujmp_<=")
	OpUjmpiLe = jmpLitOp(CodeUjmpiLe, "ujmpi_<=")
	OpJmpLe   = jmpRegOp(CodeJmpLe, "jmp_<=")
	OpJmpiLe  = jmpLitOp(CodeJmpiLe, "jmpi_<=")

	OpStackPush  = def(CodeStackPush, "stack_push", "Pushes a register onto the variable stack.", params(tup(r(KindAny))), StackNone)
	OpStackPop   = def(CodeStackPop, "stack_pop", "Pops the variable stack into a register.", params(tup(w(KindAny))), StackNone)
	OpStackPushm = def(CodeStackPushm, "stack_pushm", "Pushes consecutive registers onto the variable stack.", params(p(KindRegRef), p(KindDWord)), StackNone)
	OpStackPopm  = def(CodeStackPopm, "stack_popm", "Pops consecutive registers from the variable stack.", params(p(KindRegRef), p(KindDWord)), StackNone)

	OpArgPushr = def(CodeArgPushr, "arg_pushr", "Pushes the value of the given register.", params(tup(r(KindAny))), StackPush)
	OpArgPushl = def(CodeArgPushl, "arg_pushl", "", params(p(KindDWord)), StackPush)
	OpArgPushb = def(CodeArgPushb, "arg_pushb", "", params(p(KindByte)), StackPush)
	OpArgPushw = def(CodeArgPushw, "arg_pushw", "", params(p(KindWord)), StackPush)
	OpArgPusha = def(CodeArgPusha, "arg_pusha", "Pushes the memory address of the given register.", params(tup(r(KindAny))), StackPush)
	OpArgPushs = def(CodeArgPushs, "arg_pushs", "", params(p(KindString)), StackPush)

	OpMessage   = def(CodeMessage, "message", "", params(p(KindDWord), p(KindString)), StackPop)
	OpList      = def(CodeList, "list", "Displays a list of newline separated items and stores the selected index in the given register.", params(tup(w(KindByte)), p(KindString)), StackPop)
	OpWindowMsg = def(CodeWindowMsg, "window_msg", "", params(p(KindString)), StackPop)
	OpAddMsg    = def(CodeAddMsg, "add_msg", "", params(p(KindString)), StackPop)
	OpMesend    = def(CodeMesend, "mesend", "", nil, StackNone)
	OpGettime   = def(CodeGettime, "gettime", "", params(tup(w(KindDWord))), StackNone)
	OpWinend    = def(CodeWinend, "winend", "", nil, StackNone)

	OpPDeadV3         = def(CodePDeadV3, "p_dead_v3", "", params(tup(w(KindDWord)), pdoc(KindDWord, "Player slot.")), StackPop)
	OpSetFloorHandler = def(CodeSetFloorHandler, "set_floor_handler", "", params(pdoc(KindDWord, "Floor number."), pdoc(KindILabel, "Handler function label.")), StackPop)
	OpThreadStg       = def(CodeThreadStg, "thread_stg", "", params(p(KindILabel)), StackNone)
	OpMapDesignate    = def(CodeMapDesignate, "map_designate", "", params(tup(r(KindAny))), StackNone)

	OpMapDesignateEx = def(CodeMapDesignateEx, "map_designate_ex", "", params(tup(r(KindDWord), r(KindDWord), r(KindDWord), r(KindDWord), r(KindDWord))), StackNone)
	OpShiftLeft      = intRegOp(CodeShiftLeft, "shift_left")
	OpShiftRight     = intRegOp(CodeShiftRight, "shift_right")
	OpGetRandom      = def(CodeGetRandom, "get_random", "Stores a random number between the bounds held by the first register tuple.", params(tup(r(KindDWord), r(KindDWord)), tup(w(KindDWord))), StackNone)
	OpSetEpisode     = def(CodeSetEpisode, "set_episode", "", params(p(KindDWord)), StackNone)
	OpFlet           = def(CodeFlet, "flet", "", params(tup(w(KindFloat)), tup(r(KindFloat))), StackNone)
	OpFleti          = def(CodeFleti, "fleti", "", params(tup(w(KindFloat)), p(KindFloat)), StackNone)
	OpFadd           = floatRegOp(CodeFadd, "fadd")
	OpFaddi          = floatLitOp(CodeFaddi, "faddi")
	OpFsub           = floatRegOp(CodeFsub, "fsub")
	OpFsubi          = floatLitOp(CodeFsubi, "fsubi")
	OpFmul           = floatRegOp(CodeFmul, "fmul")
	OpFmuli          = floatLitOp(CodeFmuli, "fmuli")
	OpFdiv           = floatRegOp(CodeFdiv, "fdiv")
	OpFdivi          = floatLitOp(CodeFdivi, "fdivi")
	OpBbMapDesignate = def(CodeBbMapDesignate, "bb_map_designate", "", params(p(KindByte), p(KindWord), p(KindByte), p(KindByte)), StackNone)
)

var (
	opcodesByCode     = map[uint16]*Opcode{}
	opcodesByMnemonic = map[string]*Opcode{}
)

func def(code uint16, mnemonic, doc string, ps []Param, stack StackInteraction) *Opcode {
	op := &Opcode{Code: code, Mnemonic: mnemonic, Doc: doc, Params: ps, Stack: stack}
	if _, dup := opcodesByCode[code]; dup {
		panic(fmt.Sprintf("asm: duplicate opcode 0x%04x", code))
	}
	opcodesByCode[code] = op
	opcodesByMnemonic[mnemonic] = op
	return op
}

func intRegOp(code uint16, mnemonic string) *Opcode {
	return def(code, mnemonic, "", params(tup(w(KindDWord)), tup(r(KindDWord))), StackNone)
}

func intLitOp(code uint16, mnemonic string) *Opcode {
	return def(code, mnemonic, "", params(tup(w(KindDWord)), p(KindDWord)), StackNone)
}

func floatRegOp(code uint16, mnemonic string) *Opcode {
	return def(code, mnemonic, "", params(tup(w(KindFloat)), tup(r(KindFloat))), StackNone)
}

func floatLitOp(code uint16, mnemonic string) *Opcode {
	return def(code, mnemonic, "", params(tup(w(KindFloat)), p(KindFloat)), StackNone)
}

func jmpRegOp(code uint16, mnemonic string) *Opcode {
	return def(code, mnemonic, "", params(tup(r(KindDWord)), tup(r(KindDWord)), p(KindILabel)), StackNone)
}

func jmpLitOp(code uint16, mnemonic string) *Opcode {
	return def(code, mnemonic, "", params(tup(r(KindDWord)), p(KindDWord), p(KindILabel)), StackNone)
}

// OpcodeByCode returns the opcode with the given code, or nil.
func OpcodeByCode(code uint16) *Opcode {
	return opcodesByCode[code]
}

// OpcodeByMnemonic returns the opcode with the given mnemonic, or nil.
func OpcodeByMnemonic(mnemonic string) *Opcode {
	return opcodesByMnemonic[mnemonic]
}

// LookupOpcode returns the known opcode for code, or a parameterless
// placeholder named after the code. Object code may legally contain opcodes
// this package has no description for.
func LookupOpcode(code uint16) *Opcode {
	if op := opcodesByCode[code]; op != nil {
		return op
	}
	return UnknownOpcode(code)
}

// UnknownOpcode builds a placeholder for an opcode without a description.
func UnknownOpcode(code uint16) *Opcode {
	var mnemonic string
	if code < 0x100 {
		mnemonic = fmt.Sprintf("unknown_%02x", code)
	} else {
		mnemonic = fmt.Sprintf("unknown_%04x", code)
	}
	return &Opcode{Code: code, Mnemonic: mnemonic}
}

// AllOpcodes returns every described opcode.
func AllOpcodes() []*Opcode {
	ops := make([]*Opcode, 0, len(opcodesByCode))
	for _, op := range opcodesByCode {
		ops = append(ops, op)
	}
	return ops
}
