// questrun runs assembled quest object code headless, or serves it to a
// debugger client.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/manifest"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/runner"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/server"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/trace"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/vm"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("questvm.cmd")

func main() {
	configDir := flag.String("config", "", "Directory holding questrun.toml (default: search upwards from the working directory)")
	verbose := flag.Bool("v", false, "Verbose output (debug logging)")
	episode := flag.String("episode", "", "Episode override: I, II or IV")
	seed := flag.Uint("seed", 0, "Random seed (0 = from config, else clock)")
	maxFrames := flag.Int("max-frames", 0, "Stop after this many frames")
	selection := flag.Uint("select", 0, "Answer every list prompt with this index")
	breakpoints := flag.String("break", "", "Comma-separated source lines to break on")
	stepMode := flag.String("step", "", "Step mode after start: breakpoint, over, in, out")
	tracePath := flag.String("trace", "", "Record a transcript to this SQLite database")
	serveMode := flag.Bool("serve", false, "Start the debug server instead of running")
	addr := flag.String("addr", "", "Debug server address (used with --serve)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: questrun [options] [object-code-file]\n\n")
		fmt.Fprintf(os.Stderr, "Runs assembled quest object code until it finishes, pauses or halts.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  questrun quest.qobj                 # Run with questrun.toml settings\n")
		fmt.Fprintf(os.Stderr, "  questrun -select 1 -max-frames 60 quest.qobj\n")
		fmt.Fprintf(os.Stderr, "  questrun -break 12,40 -trace run.db quest.qobj\n")
		fmt.Fprintf(os.Stderr, "  questrun --serve --addr :7878       # Serve the debug service\n")
	}
	flag.Parse()

	m, err := loadManifest(*configDir)
	if err != nil {
		fatal(err)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["episode"] {
		m.Quest.Episode = *episode
	}
	if set["seed"] {
		m.VM.Seed = uint32(*seed)
	}
	if set["max-frames"] {
		m.Host.MaxFrames = *maxFrames
	}
	if set["select"] {
		m.Host.ListSelection = uint32(*selection)
	}
	if set["break"] {
		lines, err := parseLines(*breakpoints)
		if err != nil {
			fatal(err)
		}
		m.Debug.Breakpoints = lines
	}
	if set["step"] {
		m.Debug.StepMode = *stepMode
	}
	if set["trace"] {
		m.Trace.DB = *tracePath
	}
	if set["addr"] {
		m.Server.Addr = *addr
	}
	if *verbose {
		m.Log.Level = "debug"
	}
	if flag.NArg() > 0 {
		// Relative to the working directory, not the config.
		path, err := filepath.Abs(flag.Arg(0))
		if err != nil {
			fatal(err)
		}
		m.Quest.ObjectCode = path
	}
	if err := m.Validate(); err != nil {
		fatal(err)
	}

	commonlog.Configure(m.Verbosity(), nil)
	if m.Dir != "" {
		log.Debugf("using %s", filepath.Join(m.Dir, manifest.FileName))
	}

	cfg, err := m.RunnerConfig()
	if err != nil {
		fatal(err)
	}

	var io vm.IO = vm.NewDefaultIO()
	var rec *trace.Recorder
	if m.Trace.DB != "" {
		rec, err = trace.Open(m.Trace.DB, io)
		if err != nil {
			fatal(err)
		}
		defer rec.Close()
		io = rec
	}

	if *serveMode {
		opts := []server.ServerOption{
			server.WithIO(io),
			server.WithVMOptions(m.VMOptions(nil)...),
			server.WithRunnerConfig(cfg),
		}
		if rec != nil {
			opts = append(opts, server.WithRecorder(rec))
		}
		srv := server.New(opts...)
		defer srv.Stop()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		go func() {
			<-ctx.Done()
			srv.Stop()
		}()

		if err := srv.ListenAndServe(m.Server.Addr); err != nil {
			fatal(fmt.Errorf("server: %w", err))
		}
		return
	}

	if m.ObjectCodePath() == "" {
		flag.Usage()
		os.Exit(2)
	}
	oc, err := readObjectCode(m.ObjectCodePath())
	if err != nil {
		fatal(err)
	}
	if ep, ok, _ := m.EpisodeOverride(); ok {
		oc.Episode = ep
	}

	var runnerOpts []runner.Option
	if rec != nil {
		runnerOpts = append(runnerOpts, runner.WithRecorder(rec))
	}
	r := runner.New(vm.NewVM(m.VMOptions(io)...), cfg, runnerOpts...)
	r.Load(oc.Segments, oc.Episode)
	if err := r.Start(); err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out, err := r.Run(ctx)
	fmt.Printf("%s after %d frame(s), %d input(s), %d selection(s)\n",
		out.Result, out.Frames, out.Inputs, out.Selections)
	if out.Result == vm.Paused {
		if ip := r.VM().InstructionPointer(); ip != nil {
			fmt.Printf("paused at %s (%s)\n", ip, ip.Instruction())
		}
	}
	if err != nil {
		fatal(err)
	}
}

func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		return manifest.Default(), nil
	}
	return m, nil
}

func readObjectCode(path string) (*asm.ObjectCode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	oc, err := asm.UnmarshalObjectCode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return oc, nil
}

func parseLines(s string) ([]int, error) {
	var lines []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid breakpoint line %q", part)
		}
		lines = append(lines, n)
	}
	return lines, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
