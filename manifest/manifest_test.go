package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/runner"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[quest]
object_code = "quests/lost_heat_sword.qobj"
episode = "II"
entry_labels = [0, 150]

[vm]
seed = 1234
execution_limit = 500

[debug]
breakpoints = [12, 40]
step_mode = "in"

[host]
list_selection = 2
max_frames = 90

[log]
level = "debug"

[server]
addr = ":9000"

[trace]
db = "trace.db"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if want := filepath.Join(m.Dir, "quests/lost_heat_sword.qobj"); m.ObjectCodePath() != want {
		t.Errorf("object code path = %q, want %q", m.ObjectCodePath(), want)
	}
	if ep, ok, _ := m.EpisodeOverride(); !ok || ep != asm.EpisodeII {
		t.Errorf("episode = %s, %v, want II", ep, ok)
	}
	if len(m.Quest.EntryLabels) != 2 || m.Quest.EntryLabels[1] != 150 {
		t.Errorf("entry labels = %v", m.Quest.EntryLabels)
	}
	if m.VM.Seed != 1234 || m.VM.ExecutionLimit != 500 {
		t.Errorf("vm = %+v", m.VM)
	}
	if m.Host.ListSelection != 2 || m.Host.MaxFrames != 90 {
		t.Errorf("host = %+v", m.Host)
	}
	if m.Verbosity() != 3 {
		t.Errorf("verbosity = %d, want 3", m.Verbosity())
	}
	if m.Server.Addr != ":9000" || m.Trace.DB != "trace.db" {
		t.Errorf("server = %+v, trace = %+v", m.Server, m.Trace)
	}

	cfg, err := m.RunnerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StepMode != vm.StepIn || len(cfg.Breakpoints) != 2 || cfg.MaxFrames != 90 || cfg.ListSelection != 2 {
		t.Errorf("runner config = %+v", cfg)
	}
	if len(m.VMOptions(nil)) != 2 {
		t.Errorf("VMOptions should carry the execution limit and the seed")
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[quest]
object_code = "/abs/quest.qobj"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.ObjectCodePath() != "/abs/quest.qobj" {
		t.Errorf("absolute path rewritten to %q", m.ObjectCodePath())
	}
	if _, ok, _ := m.EpisodeOverride(); ok {
		t.Errorf("episode %q should not override the object code", m.Quest.Episode)
	}
	if len(m.Quest.EntryLabels) != 1 || m.Quest.EntryLabels[0] != 0 {
		t.Errorf("entry labels = %v, want [0]", m.Quest.EntryLabels)
	}
	if m.VM.ExecutionLimit != vm.DefaultExecutionLimit {
		t.Errorf("execution limit = %d", m.VM.ExecutionLimit)
	}
	if m.Host.MaxFrames != runner.DefaultMaxFrames {
		t.Errorf("max frames = %d", m.Host.MaxFrames)
	}
	if mode, _ := m.StepModeValue(); mode != vm.StepBreakPoint {
		t.Errorf("step mode = %s", mode)
	}
	if m.Verbosity() != 2 {
		t.Errorf("verbosity = %d, want 2", m.Verbosity())
	}
	if len(m.VMOptions(nil)) != 1 {
		t.Errorf("a zero seed should not add a random option")
	}
}

func TestLoadManifestRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"episode", "[quest]\nepisode = \"III\"\n"},
		{"step mode", "[debug]\nstep_mode = \"sideways\"\n"},
		{"log level", "[log]\nlevel = \"loud\"\n"},
		{"syntax", "[quest\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			if _, err := Load(dir); err == nil {
				t.Error("Load should fail")
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[host]\nmax_frames = 7\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Host.MaxFrames != 7 {
		t.Fatalf("manifest = %+v", m)
	}
	if m.Dir != root {
		t.Errorf("Dir = %q, want %q", m.Dir, root)
	}
}

func TestDefault(t *testing.T) {
	m := Default()
	if err := m.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if m.Server.Addr == "" {
		t.Error("default server address missing")
	}
}
