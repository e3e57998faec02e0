package runlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"physlab.ai/internal/orchestrator"
	"physlab.ai/internal/protocol"
)

func TestEventWriter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl.zst")
	w, err := NewEventWriter(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	events := []orchestrator.Event{
		{Tick: 0, Kind: "command", Label: "floor", Cmd: &protocol.Command{Name: protocol.CmdSpawnFloor}},
		{Tick: 30, Kind: "sample", Sample: &protocol.SensorSample{Target: protocol.TargetFirstObject, Y: 5}},
		{Tick: 60, Kind: "skip", Label: "bad", Err: "invalid command parameters"},
	}
	for _, e := range events {
		if err := w.Write(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var got []orchestrator.Event
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e orchestrator.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line: %v", err)
		}
		got = append(got, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(got) != len(events) {
		t.Fatalf("read %d events, want %d", len(got), len(events))
	}
	if got[0].Cmd == nil || got[0].Cmd.Name != protocol.CmdSpawnFloor {
		t.Errorf("event 0 command lost: %+v", got[0])
	}
	if got[1].Sample == nil || got[1].Sample.Y != 5 {
		t.Errorf("event 1 sample lost: %+v", got[1])
	}
	if got[2].Err == "" {
		t.Errorf("event 2 error lost: %+v", got[2])
	}
}

func TestRecorder_IndexesRunOutcome(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, "run-test-1", "drop-test")
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}

	cmd := protocol.Command{Name: protocol.CmdSpawnBox, Params: []float64{0, 10, 0}}
	rec.Record(orchestrator.Event{Tick: 60, Kind: "command", Label: "box", Cmd: &cmd})
	rec.Record(orchestrator.Event{Tick: 90, Kind: "sample", Sample: &protocol.SensorSample{Target: protocol.TargetFirstObject, Y: 2.5}})

	rep := orchestrator.Report{
		Scenario:     "drop-test",
		State:        orchestrator.Complete,
		Ticks:        121,
		CommandsSent: 1,
	}
	if err := rec.Finish(rep); err != nil {
		t.Fatalf("finish: %v", err)
	}

	// Reopen the index and read the run back.
	idx, err := OpenIndex(filepath.Join(dir, "runs.db"))
	if err != nil {
		t.Fatalf("reopen index: %v", err)
	}
	defer idx.Close()

	row, err := idx.Run("run-test-1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if row == nil {
		t.Fatalf("run row missing")
	}
	if row.State != "COMPLETE" {
		t.Errorf("state: got %s, want COMPLETE", row.State)
	}
	if row.Ticks != 121 {
		t.Errorf("ticks: got %d, want 121", row.Ticks)
	}
	if row.CommandsSent != 1 {
		t.Errorf("commands: got %d, want 1", row.CommandsSent)
	}

	// Event file exists and is non-empty.
	fi, err := os.Stat(filepath.Join(dir, "events", "run-test-1.jsonl.zst"))
	if err != nil {
		t.Fatalf("event file: %v", err)
	}
	if fi.Size() == 0 {
		t.Errorf("event file empty")
	}
}

func TestIndex_UnknownRun(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	row, err := idx.Run("nope")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if row != nil {
		t.Fatalf("expected nil row, got %+v", row)
	}
}

func TestRecorder_GeneratesRunID(t *testing.T) {
	rec, err := NewRecorder(t.TempDir(), "", "s")
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	if rec.RunID == "" {
		t.Fatalf("empty run id")
	}
	if err := rec.Finish(orchestrator.Report{State: orchestrator.Complete}); err != nil {
		t.Fatalf("finish: %v", err)
	}
}
