// Package manifest handles questrun.toml configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/runner"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/vm"
)

// FileName is the name of the configuration file.
const FileName = "questrun.toml"

// Manifest represents a questrun.toml configuration.
type Manifest struct {
	Quest  Quest        `toml:"quest"`
	VM     VMConfig     `toml:"vm"`
	Debug  DebugConfig  `toml:"debug"`
	Host   HostConfig   `toml:"host"`
	Log    LogConfig    `toml:"log"`
	Server ServerConfig `toml:"server"`
	Trace  TraceConfig  `toml:"trace"`

	// Dir is the directory containing the questrun.toml file (set at load time).
	Dir string `toml:"-"`
}

// Quest selects the object code to run.
type Quest struct {
	ObjectCode  string `toml:"object_code"`
	Episode     string `toml:"episode"`
	EntryLabels []int  `toml:"entry_labels"`
}

// VMConfig configures the virtual machine.
type VMConfig struct {
	// Seed for the random number generator. Zero means seed from the clock.
	Seed           uint32 `toml:"seed"`
	ExecutionLimit int    `toml:"execution_limit"`
}

// DebugConfig configures the debugger.
type DebugConfig struct {
	Breakpoints []int  `toml:"breakpoints"`
	StepMode    string `toml:"step_mode"`
}

// HostConfig configures the simulated game host.
type HostConfig struct {
	ListSelection uint32 `toml:"list_selection"`
	MaxFrames     int    `toml:"max_frames"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// ServerConfig configures the debug service.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// TraceConfig configures the session transcript.
type TraceConfig struct {
	// DB is the SQLite database path. Empty disables tracing.
	DB string `toml:"db"`
}

// Default returns a manifest with every default applied.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if len(m.Quest.EntryLabels) == 0 {
		m.Quest.EntryLabels = []int{vm.EntryLabel}
	}
	if m.VM.ExecutionLimit <= 0 {
		m.VM.ExecutionLimit = vm.DefaultExecutionLimit
	}
	if m.Debug.StepMode == "" {
		m.Debug.StepMode = vm.StepBreakPoint.String()
	}
	if m.Host.MaxFrames <= 0 {
		m.Host.MaxFrames = runner.DefaultMaxFrames
	}
	if m.Log.Level == "" {
		m.Log.Level = "info"
	}
	if m.Server.Addr == "" {
		m.Server.Addr = "localhost:7878"
	}
}

// Load parses a questrun.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a questrun.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks fields that have a fixed set of values.
func (m *Manifest) Validate() error {
	if _, _, err := m.EpisodeOverride(); err != nil {
		return err
	}
	if _, err := m.StepModeValue(); err != nil {
		return err
	}
	switch strings.ToLower(m.Log.Level) {
	case "error", "warning", "info", "debug":
	default:
		return fmt.Errorf("unknown log level %q", m.Log.Level)
	}
	return nil
}

// EpisodeOverride parses Quest.Episode. ok is false when the episode is not
// set, in which case the object code file's episode applies.
func (m *Manifest) EpisodeOverride() (ep asm.Episode, ok bool, err error) {
	if m.Quest.Episode == "" {
		return asm.EpisodeI, false, nil
	}
	ep, err = asm.ParseEpisode(m.Quest.Episode)
	return ep, err == nil, err
}

// StepModeValue parses Debug.StepMode.
func (m *Manifest) StepModeValue() (vm.StepMode, error) {
	return vm.ParseStepMode(m.Debug.StepMode)
}

// Verbosity maps Log.Level to a commonlog verbosity.
func (m *Manifest) Verbosity() int {
	switch strings.ToLower(m.Log.Level) {
	case "error":
		return 0
	case "warning":
		return 1
	case "debug":
		return 3
	}
	return 2
}

// ObjectCodePath resolves Quest.ObjectCode relative to the manifest directory.
func (m *Manifest) ObjectCodePath() string {
	if m.Quest.ObjectCode == "" || filepath.IsAbs(m.Quest.ObjectCode) || m.Dir == "" {
		return m.Quest.ObjectCode
	}
	return filepath.Join(m.Dir, m.Quest.ObjectCode)
}

// RunnerConfig builds the host loop configuration.
func (m *Manifest) RunnerConfig() (runner.Config, error) {
	mode, err := m.StepModeValue()
	if err != nil {
		return runner.Config{}, err
	}
	return runner.Config{
		EntryLabels:   m.Quest.EntryLabels,
		ListSelection: m.Host.ListSelection,
		MaxFrames:     m.Host.MaxFrames,
		Breakpoints:   m.Debug.Breakpoints,
		StepMode:      mode,
	}, nil
}

// VMOptions builds the VM options. io may be nil.
func (m *Manifest) VMOptions(io vm.IO) []vm.Option {
	opts := []vm.Option{vm.WithExecutionLimit(m.VM.ExecutionLimit)}
	if m.VM.Seed != 0 {
		opts = append(opts, vm.WithRandom(vm.NewRandom(m.VM.Seed)))
	}
	if io != nil {
		opts = append(opts, vm.WithIO(io))
	}
	return opts
}
