package asm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("asm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ObjectCode is the file form of an assembled quest script.
type ObjectCode struct {
	Episode  Episode
	Segments []Segment
}

type wireObjectCode struct {
	Version  int           `cbor:"v"`
	Episode  uint8         `cbor:"ep"`
	Segments []wireSegment `cbor:"segs"`
}

type wireSegment struct {
	Type         uint8             `cbor:"t"`
	Labels       []int             `cbor:"l,omitempty"`
	Instructions []wireInstruction `cbor:"ins,omitempty"`
	Data         []byte            `cbor:"d,omitempty"`
	String       string            `cbor:"s,omitempty"`
}

type wireInstruction struct {
	Code     uint16     `cbor:"op"`
	Args     []any      `cbor:"a,omitempty"`
	Mnemonic *AsmToken  `cbor:"m,omitempty"`
	ArgToks  []AsmToken `cbor:"at,omitempty"`
}

const wireVersion = 1

// MarshalObjectCode serializes object code to CBOR bytes. Opcodes are written
// by code.
func MarshalObjectCode(oc *ObjectCode) ([]byte, error) {
	w := wireObjectCode{
		Version:  wireVersion,
		Episode:  uint8(oc.Episode),
		Segments: make([]wireSegment, len(oc.Segments)),
	}
	for i, seg := range oc.Segments {
		ws := wireSegment{Type: uint8(seg.Type), Labels: seg.Labels}
		switch seg.Type {
		case SegmentInstructions:
			ws.Instructions = make([]wireInstruction, len(seg.Instructions))
			for j, ins := range seg.Instructions {
				wi := wireInstruction{Code: ins.Opcode.Code}
				for _, a := range ins.Args {
					wi.Args = append(wi.Args, a.Value)
				}
				if ins.Asm != nil {
					wi.Mnemonic = ins.Asm.Mnemonic
					wi.ArgToks = ins.Asm.Args
				}
				ws.Instructions[j] = wi
			}
		case SegmentData:
			ws.Data = seg.Data
		case SegmentString:
			ws.String = seg.String
		}
		w.Segments[i] = ws
	}
	return cborEncMode.Marshal(&w)
}

// UnmarshalObjectCode deserializes object code from CBOR bytes. Unknown
// opcode codes are kept as placeholder opcodes.
func UnmarshalObjectCode(data []byte) (*ObjectCode, error) {
	var w wireObjectCode
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("asm: unmarshal object code: %w", err)
	}
	if w.Version != wireVersion {
		return nil, fmt.Errorf("asm: unsupported object code version %d", w.Version)
	}
	oc := &ObjectCode{Episode: Episode(w.Episode), Segments: make([]Segment, len(w.Segments))}
	for i, ws := range w.Segments {
		seg := Segment{Type: SegmentType(ws.Type), Labels: ws.Labels}
		switch seg.Type {
		case SegmentInstructions:
			seg.Instructions = make([]Instruction, len(ws.Instructions))
			for j, wi := range ws.Instructions {
				ins := Instruction{Opcode: LookupOpcode(wi.Code)}
				if len(wi.Args) > 0 {
					ins.Args = make([]Arg, len(wi.Args))
					for k, v := range wi.Args {
						ins.Args[k] = Arg{Value: v}
					}
				}
				if wi.Mnemonic != nil || len(wi.ArgToks) > 0 {
					ins.Asm = &InstructionAsm{Mnemonic: wi.Mnemonic, Args: wi.ArgToks}
				}
				seg.Instructions[j] = ins
			}
		case SegmentData:
			seg.Data = ws.Data
		case SegmentString:
			seg.String = ws.String
		default:
			return nil, fmt.Errorf("asm: segment %d: unknown segment type %d", i, ws.Type)
		}
		oc.Segments[i] = seg
	}
	return oc, nil
}
