// Package runner drives a quest VM the way a game host would: it starts the
// entry threads, pumps Execute, signals vsync between frames and answers
// input requests.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/debugger"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("questvm.runner")

// ErrFrameLimit is returned by Run when the quest is still running after the
// configured number of frames.
var ErrFrameLimit = errors.New("frame limit reached")

// DefaultMaxFrames bounds Run when no limit is configured.
const DefaultMaxFrames = 600

// Config controls the host loop.
type Config struct {
	// EntryLabels are started as global threads, in order. Defaults to
	// label 0.
	EntryLabels []int
	// ListSelection answers every list prompt.
	ListSelection uint32
	// MaxFrames bounds the number of vsync frames Run will drive.
	MaxFrames int
	// Breakpoints are source lines to break on.
	Breakpoints []int
	// StepMode is applied to the debugging thread right after Start.
	StepMode vm.StepMode
}

// ResultRecorder receives every execution result the runner observes.
type ResultRecorder interface {
	RecordResult(res vm.ExecutionResult) error
}

// Outcome summarizes a Run call.
type Outcome struct {
	Result     vm.ExecutionResult
	Frames     int
	Inputs     int
	Selections int
}

// Runner owns the host side of a VM session.
type Runner struct {
	vm       *vm.VM
	debugger *debugger.Debugger
	cfg      Config
	recorder ResultRecorder

	frames int
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder forwards every execution result to rec.
func WithRecorder(rec ResultRecorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// New creates a runner. Breakpoints from cfg are registered with a fresh
// debugger.
func New(v *vm.VM, cfg Config, opts ...Option) *Runner {
	if len(cfg.EntryLabels) == 0 {
		cfg.EntryLabels = []int{vm.EntryLabel}
	}
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = DefaultMaxFrames
	}

	r := &Runner{
		vm:       v,
		debugger: debugger.New(v),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, line := range cfg.Breakpoints {
		r.debugger.SetBreakpoint(line)
	}
	return r
}

func (r *Runner) VM() *vm.VM { return r.vm }

func (r *Runner) Debugger() *debugger.Debugger { return r.debugger }

// Frames returns the number of vsync frames driven since the last Start.
func (r *Runner) Frames() int { return r.frames }

// Load installs object code and re-resolves the debugger's breakpoints.
func (r *Runner) Load(objectCode []asm.Segment, episode asm.Episode) {
	r.vm.LoadObjectCode(objectCode, episode)
	r.debugger.ActivateBreakpoints()
	r.frames = 0
}

// Start (re)starts the quest: it halts any running threads and schedules one
// thread per entry label.
func (r *Runner) Start() error {
	if r.vm.ObjectCode() == nil {
		return vm.ErrNotLoaded
	}
	r.Load(r.vm.ObjectCode(), r.vm.Episode())

	for _, label := range r.cfg.EntryLabels {
		if err := r.vm.StartThread(label); err != nil {
			return fmt.Errorf("start thread at label %d: %w", label, err)
		}
	}
	if r.cfg.StepMode != vm.StepBreakPoint {
		r.vm.SetStepMode(r.cfg.StepMode)
	}
	log.Infof("started %d thread(s)", len(r.cfg.EntryLabels))
	return nil
}

// Execute runs the VM once through the debugger without answering anything.
func (r *Runner) Execute() vm.ExecutionResult {
	res := r.debugger.Execute()
	if r.recorder != nil {
		if err := r.recorder.RecordResult(res); err != nil {
			log.Warningf("record result: %s", err)
		}
	}
	return res
}

// Step calls Execute once and answers whatever the VM is waiting for, except
// for Paused, Suspended and Halted which are returned to the caller.
func (r *Runner) Step() (vm.ExecutionResult, error) {
	res := r.Execute()

	switch res {
	case vm.WaitingVsync:
		r.vm.Vsync()
		r.frames++
	case vm.WaitingSelection:
		if err := r.vm.ListSelect(r.cfg.ListSelection); err != nil {
			return res, err
		}
		log.Debugf("selected list item %d", r.cfg.ListSelection)
	case vm.WaitingInput:
		log.Debug("input answered")
	}
	return res, nil
}

// Run drives the VM until it pauses, suspends or halts, the frame limit is
// reached or ctx is done.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	var out Outcome
	for {
		if err := ctx.Err(); err != nil {
			out.Frames = r.frames
			return out, err
		}
		if r.frames >= r.cfg.MaxFrames {
			out.Frames = r.frames
			return out, fmt.Errorf("%w (%d)", ErrFrameLimit, r.cfg.MaxFrames)
		}

		res, err := r.Step()
		out.Result = res
		out.Frames = r.frames
		if err != nil {
			return out, err
		}

		switch res {
		case vm.WaitingInput:
			out.Inputs++
		case vm.WaitingSelection:
			out.Selections++
		case vm.Paused, vm.Suspended, vm.Halted:
			log.Infof("stopped after %d frame(s): %s", r.frames, res)
			return out, nil
		}
	}
}
