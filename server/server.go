// Package server exposes a quest VM and its debugger over Connect.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/runner"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("questvm.server")

// QuestServer is the debug server wrapping a VM session.
type QuestServer struct {
	worker *VMWorker
	mux    *http.ServeMux

	mu         sync.Mutex
	httpServer *http.Server
	stopped    bool
}

// shutdownTimeout bounds how long Stop waits for in-flight requests.
const shutdownTimeout = 5 * time.Second

// ServerOption configures a QuestServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	io        vm.IO
	vmOptions []vm.Option
	runner    runner.Config
	recorder  runner.ResultRecorder
}

// WithIO sets the IO the VM's callbacks are forwarded to. Defaults to
// vm.DefaultIO.
func WithIO(io vm.IO) ServerOption {
	return func(c *serverConfig) { c.io = io }
}

// WithVMOptions passes options to the VM.
func WithVMOptions(opts ...vm.Option) ServerOption {
	return func(c *serverConfig) { c.vmOptions = append(c.vmOptions, opts...) }
}

// WithRunnerConfig sets entry labels and initial breakpoints.
func WithRunnerConfig(cfg runner.Config) ServerOption {
	return func(c *serverConfig) { c.runner = cfg }
}

// WithRecorder records every execution result.
func WithRecorder(rec runner.ResultRecorder) ServerOption {
	return func(c *serverConfig) { c.recorder = rec }
}

// New creates a QuestServer with a fresh VM.
func New(opts ...ServerOption) *QuestServer {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.io == nil {
		cfg.io = vm.NewDefaultIO()
	}

	capture := &captureIO{next: cfg.io}
	v := vm.NewVM(append(cfg.vmOptions, vm.WithIO(capture))...)

	var runnerOpts []runner.Option
	if cfg.recorder != nil {
		runnerOpts = append(runnerOpts, runner.WithRecorder(cfg.recorder))
	}
	r := runner.New(v, cfg.runner, runnerOpts...)

	s := &QuestServer{
		worker: NewVMWorker(r),
		mux:    http.NewServeMux(),
	}

	svc := NewDebugService(s.worker, capture)
	svc.register(s.mux, connect.WithCodec(newCBORCodec()))

	return s
}

// Handler returns the HTTP handler serving the debug service.
func (s *QuestServer) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves the debug service on addr ("host:port" or ":port")
// until Stop is called. It returns nil after a clean Stop.
func (s *QuestServer) ListenAndServe(addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.httpServer = srv
	s.mu.Unlock()

	log.Infof("debug server listening on %s", addr)
	log.Infof("  Connect (CBOR): http://%s/%s/Execute", addr, DebugServiceName)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts down the HTTP listener, waiting up to shutdownTimeout for
// in-flight requests, then stops the VM worker. Requests reaching the
// handler afterwards fail with CodeUnavailable.
func (s *QuestServer) Stop() {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.stopped = true
	s.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warningf("debug server shutdown: %s", err)
		}
	}
	s.worker.Stop()
}
