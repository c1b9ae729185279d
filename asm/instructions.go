package asm

import (
	"fmt"
	"math"
)

// Episode identifies which game episode a quest belongs to.
type Episode uint8

const (
	EpisodeI  Episode = 0
	EpisodeII Episode = 1
	// EpisodeIV is encoded as 2; there is no episode III quest format.
	EpisodeIV Episode = 2
)

func (e Episode) String() string {
	switch e {
	case EpisodeI:
		return "I"
	case EpisodeII:
		return "II"
	case EpisodeIV:
		return "IV"
	}
	return fmt.Sprintf("Episode(%d)", uint8(e))
}

// ParseEpisode accepts roman ("I", "II", "IV") or numeric ("1", "2", "4")
// episode names.
func ParseEpisode(s string) (Episode, error) {
	switch s {
	case "I", "1":
		return EpisodeI, nil
	case "II", "2":
		return EpisodeII, nil
	case "IV", "4":
		return EpisodeIV, nil
	}
	return 0, fmt.Errorf("unknown episode %q", s)
}

// SegmentType tags the variant held by a Segment.
type SegmentType uint8

const (
	SegmentInstructions SegmentType = iota
	SegmentData
	SegmentString
)

func (t SegmentType) String() string {
	switch t {
	case SegmentInstructions:
		return "Instructions"
	case SegmentData:
		return "Data"
	case SegmentString:
		return "String"
	}
	return fmt.Sprintf("SegmentType(%d)", uint8(t))
}

// Segment is a labelled block of object code. Only one of Instructions, Data
// and String is meaningful, depending on Type.
type Segment struct {
	Type         SegmentType
	Labels       []int
	Instructions []Instruction
	Data         []byte
	String       string
}

// InstructionSegment builds an executable segment.
func InstructionSegment(labels []int, instructions ...Instruction) Segment {
	return Segment{Type: SegmentInstructions, Labels: labels, Instructions: instructions}
}

// DataSegment builds a data segment.
func DataSegment(labels []int, data []byte) Segment {
	return Segment{Type: SegmentData, Labels: labels, Data: data}
}

// StringSegment builds a string segment.
func StringSegment(labels []int, s string) Segment {
	return Segment{Type: SegmentString, Labels: labels, String: s}
}

// HasLabel reports whether the segment is named by label.
func (s *Segment) HasLabel(label int) bool {
	for _, l := range s.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// AsmToken is a position in assembly source. Lines and columns are 1-based.
type AsmToken struct {
	LineNo int
	Col    int
	Len    int
}

func (t AsmToken) String() string {
	return fmt.Sprintf("%d:%d", t.LineNo, t.Col)
}

// InstructionAsm holds the source positions an instruction was assembled
// from.
type InstructionAsm struct {
	Mnemonic *AsmToken
	Args     []AsmToken
}

// Arg is an already resolved argument value: an integer, a float or a string.
type Arg struct {
	Value any
}

// Int returns the argument as a 32-bit integer. Floats are truncated and
// strings yield 0.
func (a Arg) Int() int32 {
	switch v := a.Value.(type) {
	case int:
		return int32(v)
	case int8:
		return int32(v)
	case int16:
		return int32(v)
	case int32:
		return v
	case int64:
		return int32(v)
	case uint:
		return int32(v)
	case uint8:
		return int32(v)
	case uint16:
		return int32(v)
	case uint32:
		return int32(v)
	case uint64:
		return int32(v)
	case float32:
		return int32(v)
	case float64:
		return int32(v)
	}
	return 0
}

// Float returns the argument as a float64.
func (a Arg) Float() float64 {
	switch v := a.Value.(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	case string:
		return math.NaN()
	}
	return float64(a.Int())
}

// Str returns the argument as a string, formatting numbers in decimal.
func (a Arg) Str() string {
	switch v := a.Value.(type) {
	case string:
		return v
	case float32, float64:
		return fmt.Sprint(v)
	}
	return fmt.Sprint(a.Int())
}

// Instruction is one opcode invocation with its resolved arguments.
type Instruction struct {
	Opcode *Opcode
	Args   []Arg
	// Asm is nil when the instruction was not assembled from text.
	Asm *InstructionAsm
}

// NewInstruction builds an instruction. Each argument must be an integer,
// a float or a string.
func NewInstruction(op *Opcode, args ...any) Instruction {
	ins := Instruction{Opcode: op}
	if len(args) > 0 {
		ins.Args = make([]Arg, len(args))
		for i, v := range args {
			ins.Args[i] = Arg{Value: v}
		}
	}
	return ins
}

// At returns a copy of the instruction with its mnemonic located at the
// given source position.
func (ins Instruction) At(lineNo, col int) Instruction {
	asm := &InstructionAsm{Mnemonic: &AsmToken{LineNo: lineNo, Col: col, Len: len(ins.Opcode.Mnemonic)}}
	if ins.Asm != nil {
		asm.Args = ins.Asm.Args
	}
	ins.Asm = asm
	return ins
}

// Arg returns argument i, or a zero Arg when absent.
func (ins *Instruction) Arg(i int) Arg {
	if i < len(ins.Args) {
		return ins.Args[i]
	}
	return Arg{}
}

func (ins Instruction) String() string {
	s := ins.Opcode.Mnemonic
	for i, a := range ins.Args {
		if i == 0 {
			s += " "
		} else {
			s += ", "
		}
		if str, ok := a.Value.(string); ok {
			s += fmt.Sprintf("%q", str)
		} else {
			s += fmt.Sprint(a.Value)
		}
	}
	return s
}
