package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/debugger"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/runner"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/vm"
)

// DebugServiceName is the fully-qualified name of the debug service.
const DebugServiceName = "questvm.v1.DebugService"

// Procedure paths of the debug service.
const (
	LoadProcedure             = "/" + DebugServiceName + "/Load"
	StartProcedure            = "/" + DebugServiceName + "/Start"
	ExecuteProcedure          = "/" + DebugServiceName + "/Execute"
	VsyncProcedure            = "/" + DebugServiceName + "/Vsync"
	ListSelectProcedure       = "/" + DebugServiceName + "/ListSelect"
	HaltProcedure             = "/" + DebugServiceName + "/Halt"
	SetBreakpointProcedure    = "/" + DebugServiceName + "/SetBreakpoint"
	RemoveBreakpointProcedure = "/" + DebugServiceName + "/RemoveBreakpoint"
	ToggleBreakpointProcedure = "/" + DebugServiceName + "/ToggleBreakpoint"
	ClearBreakpointsProcedure = "/" + DebugServiceName + "/ClearBreakpoints"
	ResumeProcedure           = "/" + DebugServiceName + "/Resume"
	StepOverProcedure         = "/" + DebugServiceName + "/StepOver"
	StepInProcedure           = "/" + DebugServiceName + "/StepIn"
	StepOutProcedure          = "/" + DebugServiceName + "/StepOut"
	ThreadsProcedure          = "/" + DebugServiceName + "/Threads"
	SelectThreadProcedure     = "/" + DebugServiceName + "/SelectThread"
	RegistersProcedure        = "/" + DebugServiceName + "/Registers"
)

// DebugService implements the debug service handlers.
type DebugService struct {
	worker  *VMWorker
	capture *captureIO
}

// NewDebugService creates a DebugService.
func NewDebugService(worker *VMWorker, capture *captureIO) *DebugService {
	return &DebugService{worker: worker, capture: capture}
}

func (s *DebugService) register(mux *http.ServeMux, opts ...connect.HandlerOption) {
	handle(mux, LoadProcedure, s.Load, opts)
	handle(mux, StartProcedure, s.Start, opts)
	handle(mux, ExecuteProcedure, s.Execute, opts)
	handle(mux, VsyncProcedure, s.Vsync, opts)
	handle(mux, ListSelectProcedure, s.ListSelect, opts)
	handle(mux, HaltProcedure, s.Halt, opts)
	handle(mux, SetBreakpointProcedure, s.SetBreakpoint, opts)
	handle(mux, RemoveBreakpointProcedure, s.RemoveBreakpoint, opts)
	handle(mux, ToggleBreakpointProcedure, s.ToggleBreakpoint, opts)
	handle(mux, ClearBreakpointsProcedure, s.ClearBreakpoints, opts)
	handle(mux, ResumeProcedure, s.Resume, opts)
	handle(mux, StepOverProcedure, s.StepOver, opts)
	handle(mux, StepInProcedure, s.StepIn, opts)
	handle(mux, StepOutProcedure, s.StepOut, opts)
	handle(mux, ThreadsProcedure, s.Threads, opts)
	handle(mux, SelectThreadProcedure, s.SelectThread, opts)
	handle(mux, RegistersProcedure, s.Registers, opts)
}

func handle[Req, Res any](
	mux *http.ServeMux,
	procedure string,
	fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error),
	opts []connect.HandlerOption,
) {
	mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, opts...))
}

// do runs fn on the VM goroutine and maps its error to a Connect code.
func do[Res any](ctx context.Context, w *VMWorker, fn func(*runner.Runner) (*Res, error)) (*connect.Response[Res], error) {
	res, err := Do(ctx, w, fn)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(res), nil
}

// connectError maps VM errors to Connect codes.
func connectError(err error) error {
	var ce *connect.Error
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, vm.ErrNotLoaded), errors.Is(err, vm.ErrNoListOpen):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, vm.ErrNoSuchLabel), errors.Is(err, vm.ErrNoSuchThread):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, vm.ErrNotInstructionSegment):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ErrWorkerStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Load installs object code. Running threads are halted.
func (s *DebugService) Load(
	ctx context.Context,
	req *connect.Request[LoadRequest],
) (*connect.Response[LoadResponse], error) {
	oc, err := asm.UnmarshalObjectCode(req.Msg.ObjectCode)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	return do(ctx, s.worker, func(r *runner.Runner) (*LoadResponse, error) {
		r.Load(oc.Segments, oc.Episode)
		s.capture.drain()
		log.Infof("loaded %d segment(s), episode %s", len(oc.Segments), oc.Episode)
		return &LoadResponse{Episode: oc.Episode.String(), Segments: len(oc.Segments)}, nil
	})
}

// Start (re)starts the entry threads.
func (s *DebugService) Start(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StartResponse], error) {
	return do(ctx, s.worker, func(r *runner.Runner) (*StartResponse, error) {
		if err := r.Start(); err != nil {
			return nil, err
		}
		s.capture.drain()
		return &StartResponse{ThreadIDs: r.VM().ThreadIDs()}, nil
	})
}

// Execute runs the VM once and returns its result with the I/O it produced.
func (s *DebugService) Execute(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[ExecuteResponse], error) {
	return do(ctx, s.worker, func(r *runner.Runner) (*ExecuteResponse, error) {
		if r.VM().ObjectCode() == nil {
			return nil, vm.ErrNotLoaded
		}
		res := r.Execute()
		resp := &ExecuteResponse{Result: res.String(), Output: s.capture.drain()}
		if res == vm.Paused {
			resp.Location = location(r.VM().InstructionPointer())
		}
		return resp, nil
	})
}

// Vsync signals a new frame.
func (s *DebugService) Vsync(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Empty], error) {
	return do(ctx, s.worker, func(r *runner.Runner) (*Empty, error) {
		r.VM().Vsync()
		return &Empty{}, nil
	})
}

// ListSelect answers an open list.
func (s *DebugService) ListSelect(
	ctx context.Context,
	req *connect.Request[ListSelectRequest],
) (*connect.Response[Empty], error) {
	return do(ctx, s.worker, func(r *runner.Runner) (*Empty, error) {
		if err := r.VM().ListSelect(req.Msg.Index); err != nil {
			return nil, err
		}
		return &Empty{}, nil
	})
}

// Halt stops every thread.
func (s *DebugService) Halt(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Empty], error) {
	return do(ctx, s.worker, func(r *runner.Runner) (*Empty, error) {
		r.VM().Halt()
		return &Empty{}, nil
	})
}

// ---------------------------------------------------------------------------
// Breakpoints
// ---------------------------------------------------------------------------

func (s *DebugService) SetBreakpoint(
	ctx context.Context,
	req *connect.Request[BreakpointRequest],
) (*connect.Response[BreakpointResponse], error) {
	return s.breakpointOp(ctx, req.Msg.Line, (*debugger.Debugger).SetBreakpoint)
}

func (s *DebugService) RemoveBreakpoint(
	ctx context.Context,
	req *connect.Request[BreakpointRequest],
) (*connect.Response[BreakpointResponse], error) {
	return s.breakpointOp(ctx, req.Msg.Line, (*debugger.Debugger).RemoveBreakpoint)
}

func (s *DebugService) ToggleBreakpoint(
	ctx context.Context,
	req *connect.Request[BreakpointRequest],
) (*connect.Response[BreakpointResponse], error) {
	return s.breakpointOp(ctx, req.Msg.Line, func(d *debugger.Debugger, line int) bool {
		d.ToggleBreakpoint(line)
		return true
	})
}

func (s *DebugService) ClearBreakpoints(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[BreakpointResponse], error) {
	return do(ctx, s.worker, func(r *runner.Runner) (*BreakpointResponse, error) {
		changed := len(r.Debugger().Breakpoints()) > 0
		r.Debugger().ClearBreakpoints()
		return &BreakpointResponse{Changed: changed, Breakpoints: []BreakpointInfo{}}, nil
	})
}

func (s *DebugService) breakpointOp(
	ctx context.Context,
	line int,
	op func(*debugger.Debugger, int) bool,
) (*connect.Response[BreakpointResponse], error) {
	if line <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("line must be positive, got %d", line))
	}
	return do(ctx, s.worker, func(r *runner.Runner) (*BreakpointResponse, error) {
		changed := op(r.Debugger(), line)
		return &BreakpointResponse{Changed: changed, Breakpoints: breakpointInfos(r.Debugger())}, nil
	})
}

func breakpointInfos(d *debugger.Debugger) []BreakpointInfo {
	bps := d.Breakpoints()
	infos := make([]BreakpointInfo, len(bps))
	for i, bp := range bps {
		infos[i] = BreakpointInfo{Line: bp.Line, Active: bp.Active}
	}
	return infos
}

// ---------------------------------------------------------------------------
// Stepping
// ---------------------------------------------------------------------------

func (s *DebugService) Resume(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Empty], error) {
	return s.step(ctx, (*debugger.Debugger).Resume)
}

func (s *DebugService) StepOver(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Empty], error) {
	return s.step(ctx, (*debugger.Debugger).StepOver)
}

func (s *DebugService) StepIn(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Empty], error) {
	return s.step(ctx, (*debugger.Debugger).StepIn)
}

func (s *DebugService) StepOut(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Empty], error) {
	return s.step(ctx, (*debugger.Debugger).StepOut)
}

// step sets a step mode; the next Execute call applies it.
func (s *DebugService) step(ctx context.Context, fn func(*debugger.Debugger)) (*connect.Response[Empty], error) {
	return do(ctx, s.worker, func(r *runner.Runner) (*Empty, error) {
		if _, ok := r.Debugger().DebuggingThreadID(); !ok {
			return nil, connect.NewError(connect.CodeFailedPrecondition, errors.New("no thread is being debugged"))
		}
		fn(r.Debugger())
		return &Empty{}, nil
	})
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// Threads lists the live threads.
func (s *DebugService) Threads(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[ThreadsResponse], error) {
	return do(ctx, s.worker, func(r *runner.Runner) (*ThreadsResponse, error) {
		return threadsResponse(r.VM()), nil
	})
}

// SelectThread selects the thread step commands apply to.
func (s *DebugService) SelectThread(
	ctx context.Context,
	req *connect.Request[SelectThreadRequest],
) (*connect.Response[ThreadsResponse], error) {
	return do(ctx, s.worker, func(r *runner.Runner) (*ThreadsResponse, error) {
		if !r.Debugger().SelectThread(req.Msg.ID) {
			return nil, fmt.Errorf("%w: %d", vm.ErrNoSuchThread, req.Msg.ID)
		}
		return threadsResponse(r.VM()), nil
	})
}

// Registers returns the register bank.
func (s *DebugService) Registers(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[RegistersResponse], error) {
	return do(ctx, s.worker, func(r *runner.Runner) (*RegistersResponse, error) {
		regs := r.VM().Registers()
		values := make([]uint32, vm.RegisterCount)
		for i := range values {
			values[i] = regs.Unsigned(uint8(i))
		}
		return &RegistersResponse{Values: values}, nil
	})
}

func threadsResponse(v *vm.VM) *ThreadsResponse {
	resp := &ThreadsResponse{Threads: []ThreadInfo{}, Current: -1, Debugging: -1}
	for _, id := range v.ThreadIDs() {
		t := v.Thread(id)
		resp.Threads = append(resp.Threads, ThreadInfo{
			ID:       t.ID,
			AreaID:   t.AreaID,
			Global:   t.Global,
			Frames:   len(t.CallStack()),
			Location: location(v.ThreadInstructionPointer(id)),
		})
	}
	if id, ok := v.CurrentThreadID(); ok {
		resp.Current = id
	}
	if id, ok := v.DebuggingThreadID(); ok {
		resp.Debugging = id
	}
	return resp
}

func location(ip *vm.InstructionPointer) *Location {
	if ip == nil {
		return nil
	}
	loc := ip.SourceLocation()
	if loc == nil {
		return nil
	}
	return &Location{Line: loc.LineNo, Col: loc.Col}
}
