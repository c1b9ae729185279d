// Package trace records a transcript of a VM session in SQLite.
package trace

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/vm"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("questvm.trace")

// Event is a recorded I/O callback.
type Event struct {
	Seq  int64
	Kind string
	Text string
	// Line and Col are zero when the callback had no source location.
	Line int
	Col  int
}

// Recorder is a vm.IO that stores every callback before forwarding it to the
// wrapped IO. It also records execution results.
type Recorder struct {
	db   *sql.DB
	next vm.IO
	mu   sync.Mutex
}

// Open opens (or creates) the trace database at path. Use ":memory:" for a
// throwaway trace. Callbacks are forwarded to next; nil means vm.DefaultIO.
func Open(path string, next vm.IO) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening trace database: %w", err)
	}
	// Every connection to :memory: gets its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS events (
		seq  INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		text TEXT NOT NULL,
		line INTEGER NOT NULL,
		col  INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating events table: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS results (
		seq    INTEGER PRIMARY KEY AUTOINCREMENT,
		result TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating results table: %w", err)
	}

	if next == nil {
		next = vm.NewDefaultIO()
	}
	return &Recorder{db: db, next: next}, nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

func (r *Recorder) record(kind, text string, loc *asm.AsmToken) {
	var line, col int
	if loc != nil {
		line, col = loc.LineNo, loc.Col
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(
		"INSERT INTO events (kind, text, line, col) VALUES (?, ?, ?, ?)",
		kind, text, line, col,
	)
	if err != nil {
		log.Errorf("recording %s event: %s", kind, err)
	}
}

// RecordResult stores an execution result.
func (r *Recorder) RecordResult(res vm.ExecutionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.Exec("INSERT INTO results (result) VALUES (?)", res.String()); err != nil {
		return fmt.Errorf("recording result: %w", err)
	}
	return nil
}

// Events returns the recorded callbacks in order.
func (r *Recorder) Events() ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query("SELECT seq, kind, text, line, col FROM events ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.Kind, &e.Text, &e.Line, &e.Col); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Results returns the recorded execution results in order.
func (r *Recorder) Results() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query("SELECT result FROM results ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// Reset deletes everything recorded so far.
func (r *Recorder) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, table := range []string{"events", "results"} {
		if _, err := r.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("resetting %s: %w", table, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// vm.IO
// ---------------------------------------------------------------------------

func (r *Recorder) WindowMsg(msg string) {
	r.record("window_msg", msg, nil)
	r.next.WindowMsg(msg)
}

func (r *Recorder) Message(msg string) {
	r.record("message", msg, nil)
	r.next.Message(msg)
}

func (r *Recorder) AddMsg(msg string) {
	r.record("add_msg", msg, nil)
	r.next.AddMsg(msg)
}

func (r *Recorder) WinEnd() {
	r.record("winend", "", nil)
	r.next.WinEnd()
}

func (r *Recorder) MesEnd() {
	r.record("mesend", "", nil)
	r.next.MesEnd()
}

func (r *Recorder) List(items []string) {
	r.record("list", strings.Join(items, "\n"), nil)
	r.next.List(items)
}

func (r *Recorder) PDeadV3(slot uint32) bool {
	dead := r.next.PDeadV3(slot)
	r.record("p_dead_v3", fmt.Sprintf("%d %t", slot, dead), nil)
	return dead
}

func (r *Recorder) SetFloorHandler(area uint32, label uint32) {
	r.record("set_floor_handler", fmt.Sprintf("%d %d", area, label), nil)
	r.next.SetFloorHandler(area, label)
}

func (r *Recorder) MapDesignate(area int32, variant int32) {
	r.record("map_designate", fmt.Sprintf("%d %d", area, variant), nil)
	r.next.MapDesignate(area, variant)
}

func (r *Recorder) Warning(msg string, loc *asm.AsmToken) {
	r.record("warning", msg, loc)
	r.next.Warning(msg, loc)
}

func (r *Recorder) Error(err error, loc *asm.AsmToken) {
	r.record("error", err.Error(), loc)
	r.next.Error(err, loc)
}
