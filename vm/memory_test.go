package vm

import (
	"errors"
	"testing"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
)

func TestMemoryAccessors(t *testing.T) {
	var m Memory

	m.SetSigned(0, -2)
	if m.Unsigned(0) != 0xfffffffe {
		t.Errorf("Unsigned(0) = 0x%x", m.Unsigned(0))
	}
	if m.Word(0) != 0xfffe || m.Byte(0) != 0xfe {
		t.Errorf("Word = 0x%x, Byte = 0x%x", m.Word(0), m.Byte(0))
	}

	m.SetFloat(255, 1.0)
	if m.Unsigned(255) != 0x3f800000 {
		t.Errorf("float bits = 0x%x", m.Unsigned(255))
	}
	if b := m.Bytes(int(Address(255))); len(b) != 4 || b[3] != 0x3f {
		t.Errorf("register 255 bytes = %v", b)
	}

	m.Zero()
	if m.Signed(0) != 0 || m.Float(255) != 0 {
		t.Error("Zero should clear every register")
	}
}

func TestRandomSequence(t *testing.T) {
	r := NewRandom(123)
	if got := r.Next(); got != 440 {
		t.Errorf("first draw = %d, want 440", got)
	}
	r.Seed(123)
	if got := r.Next(); got != 440 {
		t.Errorf("first draw after reseed = %d, want 440", got)
	}
	for i := 0; i < 1000; i++ {
		if v := r.Next(); v > 0x7fff {
			t.Fatalf("draw %d out of range: %d", i, v)
		}
	}
}

func TestInstructionPointer(t *testing.T) {
	code := []asm.Segment{
		asm.InstructionSegment([]int{0}, ins(asm.OpNop).At(1, 1), ins(asm.OpNop)),
		asm.DataSegment([]int{1}, nil),
		asm.InstructionSegment([]int{2}),
		asm.InstructionSegment([]int{3}, ins(asm.OpRet)),
	}

	ip, err := NewInstructionPointer(0, 0, code)
	if err != nil {
		t.Fatal(err)
	}
	if loc := ip.SourceLocation(); loc == nil || loc.LineNo != 1 {
		t.Errorf("SourceLocation = %v", loc)
	}

	ip = ip.Next()
	if ip == nil || ip.SegIdx != 0 || ip.InstIdx != 1 {
		t.Fatalf("Next = %v", ip)
	}
	if ip.SourceLocation() != nil {
		t.Error("instruction without source should have no location")
	}

	// Data and empty segments are skipped.
	ip = ip.Next()
	if ip == nil || ip.SegIdx != 3 || ip.InstIdx != 0 {
		t.Fatalf("Next = %v, want 3:0", ip)
	}
	if ip.Instruction().Opcode != asm.OpRet {
		t.Errorf("Instruction = %v", ip.Instruction())
	}
	if ip.Next() != nil {
		t.Error("Next at end of object code should be nil")
	}

	for _, bad := range [][2]int{{-1, 0}, {4, 0}, {1, 0}, {2, 0}, {0, 2}} {
		if _, err := NewInstructionPointer(bad[0], bad[1], code); !errors.Is(err, ErrInvalidInstructionPointer) {
			t.Errorf("NewInstructionPointer(%d, %d) = %v", bad[0], bad[1], err)
		}
	}
}

func TestSourceLocationFallsBackToArgument(t *testing.T) {
	in := ins(asm.OpLeti, 1, 2)
	in.Asm = &asm.InstructionAsm{Args: []asm.AsmToken{{LineNo: 9, Col: 3}}}
	code := []asm.Segment{asm.InstructionSegment([]int{0}, in)}

	ip, _ := NewInstructionPointer(0, 0, code)
	if loc := ip.SourceLocation(); loc == nil || loc.LineNo != 9 {
		t.Errorf("SourceLocation = %v, want line 9", loc)
	}
}

func TestArgKindCompatible(t *testing.T) {
	tests := []struct {
		want, got asm.Kind
		ok        bool
	}{
		{asm.KindRegTupRef, asm.KindByte, true},
		{asm.KindRegTupRef, asm.KindDWord, false},
		{asm.KindILabel, asm.KindWord, true},
		{asm.KindString, asm.KindString, true},
		{asm.KindString, asm.KindDWord, true},
		{asm.KindDWord, asm.KindString, false},
		{asm.KindFloat, asm.KindDWord, true},
		{asm.KindAny, asm.KindByte, true},
	}
	for _, tt := range tests {
		if got := argKindCompatible(tt.want, tt.got); got != tt.ok {
			t.Errorf("argKindCompatible(%s, %s) = %v, want %v", tt.want, tt.got, got, tt.ok)
		}
	}
}
