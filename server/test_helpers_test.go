package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
//
// Every test gets its own server and VM; the HTTP side runs on httptest.
// ---------------------------------------------------------------------------

func bg() context.Context {
	return context.Background()
}

// newTestClient starts a QuestServer behind httptest and returns a client
// for it.
func newTestClient(t *testing.T, opts ...ServerOption) *Client {
	t.Helper()
	return newHandlerClient(t, New(opts...))
}

// newHandlerClient serves s's handler on httptest. s is stopped on cleanup.
func newHandlerClient(t *testing.T, s *QuestServer) *Client {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
	})
	return NewClient(ts.Client(), ts.URL)
}

func encode(t *testing.T, segments []asm.Segment) []byte {
	t.Helper()
	data, err := asm.MarshalObjectCode(&asm.ObjectCode{Episode: asm.EpisodeI, Segments: segments})
	if err != nil {
		t.Fatalf("MarshalObjectCode: %v", err)
	}
	return data
}

func loadAndStart(t *testing.T, c *Client, segments []asm.Segment) {
	t.Helper()
	if _, err := c.Load(bg(), encode(t, segments)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := c.Start(bg()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func expectCode(t *testing.T, err error, want connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	var ce *connect.Error
	if !errors.As(err, &ce) {
		t.Fatalf("error %v is not a connect error", err)
	}
	if ce.Code() != want {
		t.Errorf("code = %s, want %s (%v)", ce.Code(), want, err)
	}
}

// dialogueProgram shows a window, then asks for a selection into r10.
func dialogueProgram() []asm.Segment {
	return []asm.Segment{
		asm.InstructionSegment([]int{0},
			asm.NewInstruction(asm.OpArgPushs, "hello").At(1, 1),
			asm.NewInstruction(asm.OpWindowMsg).At(2, 1),
			asm.NewInstruction(asm.OpWinend).At(3, 1),
			asm.NewInstruction(asm.OpArgPushb, 10).At(4, 1),
			asm.NewInstruction(asm.OpArgPushs, "a\nb").At(5, 1),
			asm.NewInstruction(asm.OpList).At(6, 1),
			asm.NewInstruction(asm.OpSync).At(7, 1),
			asm.NewInstruction(asm.OpLeti, 1, 7).At(8, 1),
			asm.NewInstruction(asm.OpRet).At(9, 1),
		),
	}
}

// callProgram is a caller/callee pair with source lines:
//
//	1 leti r1, 1
//	2 call 1
//	3 leti r2, 1
//	4 ret
//	6 leti r3, 1
//	7 ret
func callProgram() []asm.Segment {
	return []asm.Segment{
		asm.InstructionSegment([]int{0},
			asm.NewInstruction(asm.OpLeti, 1, 1).At(1, 5),
			asm.NewInstruction(asm.OpCall, 1).At(2, 5),
			asm.NewInstruction(asm.OpLeti, 2, 1).At(3, 5),
			asm.NewInstruction(asm.OpRet).At(4, 5),
		),
		asm.InstructionSegment([]int{1},
			asm.NewInstruction(asm.OpLeti, 3, 1).At(6, 5),
			asm.NewInstruction(asm.OpRet).At(7, 5),
		),
	}
}
