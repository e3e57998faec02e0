package runlog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// Index keeps run outcomes and per-run events queryable. Writes go
// through a single writer goroutine so the tick loop never waits on
// sqlite.
type Index struct {
	db *sql.DB

	ch     chan indexReq
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool
}

type indexReqKind int

const (
	reqRunStart indexReqKind = iota + 1
	reqRunFinish
	reqEvent
)

type indexReq struct {
	kind indexReqKind

	runID    string
	scenario string

	state          string
	ticks          uint64
	commandsSent   int
	actionsSkipped int
	stepsSent      uint64
	sensorRetries  int

	seq   int64
	tick  uint64
	evKnd string
	label string
	cmd   string
	y     sql.NullFloat64
	errS  string
}

func OpenIndex(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	x := &Index{
		db: db,
		ch: make(chan indexReq, 4096),
	}
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		x.loop()
	}()
	return x, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			scenario TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			state TEXT,
			ticks INTEGER,
			commands_sent INTEGER,
			actions_skipped INTEGER,
			steps_sent INTEGER,
			sensor_retries INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS run_events (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			kind TEXT NOT NULL,
			label TEXT,
			cmd TEXT,
			y REAL,
			err TEXT,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_events_tick ON run_events(run_id, tick);`,
	}
	for _, s := range schema {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

func (x *Index) loop() {
	for r := range x.ch {
		switch r.kind {
		case reqRunStart:
			_, _ = x.db.Exec(
				`INSERT OR REPLACE INTO runs (id, scenario, started_at) VALUES (?, ?, ?)`,
				r.runID, r.scenario, time.Now().UTC().Format(time.RFC3339Nano),
			)
		case reqRunFinish:
			_, _ = x.db.Exec(
				`UPDATE runs SET finished_at=?, state=?, ticks=?, commands_sent=?, actions_skipped=?, steps_sent=?, sensor_retries=? WHERE id=?`,
				time.Now().UTC().Format(time.RFC3339Nano),
				r.state, r.ticks, r.commandsSent, r.actionsSkipped, r.stepsSent, r.sensorRetries,
				r.runID,
			)
		case reqEvent:
			_, _ = x.db.Exec(
				`INSERT OR IGNORE INTO run_events (run_id, seq, tick, kind, label, cmd, y, err) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				r.runID, r.seq, r.tick, r.evKnd, r.label, r.cmd, r.y, r.errS,
			)
		}
	}
}

func (x *Index) submit(r indexReq) {
	if x.closed.Load() {
		return
	}
	select {
	case x.ch <- r:
	default:
		// Full buffer: drop rather than stall the tick loop.
	}
}

func (x *Index) StartRun(runID, scenario string) {
	x.submit(indexReq{kind: reqRunStart, runID: runID, scenario: scenario})
}

// Close drains pending writes and closes the database.
func (x *Index) Close() error {
	x.once.Do(func() {
		x.closed.Store(true)
		close(x.ch)
	})
	x.wg.Wait()
	return x.db.Close()
}

// RunRow is the queryable outcome of one run.
type RunRow struct {
	ID             string
	Scenario       string
	State          string
	Ticks          uint64
	CommandsSent   int
	ActionsSkipped int
}

// Run reads one run row back (nil if absent). Callers should Close or
// otherwise ensure the writer drained first.
func (x *Index) Run(runID string) (*RunRow, error) {
	row := x.db.QueryRow(
		`SELECT id, scenario, COALESCE(state,''), COALESCE(ticks,0), COALESCE(commands_sent,0), COALESCE(actions_skipped,0) FROM runs WHERE id=?`,
		runID,
	)
	var r RunRow
	if err := row.Scan(&r.ID, &r.Scenario, &r.State, &r.Ticks, &r.CommandsSent, &r.ActionsSkipped); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}
