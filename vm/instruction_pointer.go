package vm

import (
	"fmt"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
)

// InstructionPointer is an immutable cursor pointing at an instruction inside
// an instructions segment. It shares the object code it points into and never
// modifies it.
type InstructionPointer struct {
	SegIdx  int
	InstIdx int

	objectCode []asm.Segment
}

// NewInstructionPointer validates that (segIdx, instIdx) denotes an existing
// instruction.
func NewInstructionPointer(segIdx, instIdx int, objectCode []asm.Segment) (*InstructionPointer, error) {
	if segIdx < 0 || segIdx >= len(objectCode) {
		return nil, fmt.Errorf("%w: segment index %d out of bounds", ErrInvalidInstructionPointer, segIdx)
	}
	seg := &objectCode[segIdx]
	if seg.Type != asm.SegmentInstructions {
		return nil, fmt.Errorf("%w: segment %d is a %s segment", ErrInvalidInstructionPointer, segIdx, seg.Type)
	}
	if instIdx < 0 || instIdx >= len(seg.Instructions) {
		return nil, fmt.Errorf("%w: instruction index %d out of bounds for segment %d", ErrInvalidInstructionPointer, instIdx, segIdx)
	}
	return &InstructionPointer{SegIdx: segIdx, InstIdx: instIdx, objectCode: objectCode}, nil
}

// Segment returns the segment the pointer is in.
func (ip *InstructionPointer) Segment() *asm.Segment {
	return &ip.objectCode[ip.SegIdx]
}

// Instruction returns the instruction the pointer points at.
func (ip *InstructionPointer) Instruction() *asm.Instruction {
	return &ip.objectCode[ip.SegIdx].Instructions[ip.InstIdx]
}

// Next returns a pointer to the following instruction, crossing into later
// instructions segments as needed. Returns nil at the end of the object code.
func (ip *InstructionPointer) Next() *InstructionPointer {
	seg, inst := ip.SegIdx, ip.InstIdx+1
	for seg < len(ip.objectCode) {
		s := &ip.objectCode[seg]
		if s.Type == asm.SegmentInstructions && inst < len(s.Instructions) {
			return &InstructionPointer{SegIdx: seg, InstIdx: inst, objectCode: ip.objectCode}
		}
		seg++
		inst = 0
	}
	return nil
}

// SourceLocation returns the source token of the instruction's mnemonic or,
// lacking that, of its first argument. Returns nil when the instruction has
// no source information.
func (ip *InstructionPointer) SourceLocation() *asm.AsmToken {
	a := ip.Instruction().Asm
	if a == nil {
		return nil
	}
	if a.Mnemonic != nil {
		return a.Mnemonic
	}
	if len(a.Args) > 0 {
		return &a.Args[0]
	}
	return nil
}

// Equal reports whether both pointers denote the same instruction.
func (ip *InstructionPointer) Equal(other *InstructionPointer) bool {
	if ip == nil || other == nil {
		return ip == other
	}
	return ip.SegIdx == other.SegIdx && ip.InstIdx == other.InstIdx
}

func (ip *InstructionPointer) String() string {
	return fmt.Sprintf("%d:%d", ip.SegIdx, ip.InstIdx)
}
