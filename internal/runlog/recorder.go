package runlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"physlab.ai/internal/orchestrator"
)

// Recorder wires both persistence backends behind the orchestrator's
// event sink: every event goes to the per-run zstd JSONL file and to the
// sqlite index.
type Recorder struct {
	RunID string

	ev  *EventWriter
	idx *Index
	seq atomic.Int64
}

// NewRecorder opens (or creates) <dataDir>/runs.db and
// <dataDir>/events/<runID>.jsonl.zst.
func NewRecorder(dataDir, runID, scenarioName string) (*Recorder, error) {
	if runID == "" {
		runID = fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	idx, err := OpenIndex(filepath.Join(dataDir, "runs.db"))
	if err != nil {
		return nil, err
	}
	ev, err := NewEventWriter(filepath.Join(dataDir, "events", runID+".jsonl.zst"))
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	r := &Recorder{RunID: runID, ev: ev, idx: idx}
	idx.StartRun(runID, scenarioName)
	return r, nil
}

func (r *Recorder) Record(e orchestrator.Event) {
	_ = r.ev.Write(e)

	req := indexReq{
		kind:  reqEvent,
		runID: r.RunID,
		seq:   r.seq.Add(1),
		tick:  e.Tick,
		evKnd: e.Kind,
		label: e.Label,
		errS:  e.Err,
	}
	if e.Cmd != nil {
		if b, err := json.Marshal(e.Cmd); err == nil {
			req.cmd = string(b)
		}
	}
	if e.Sample != nil {
		req.y = sql.NullFloat64{Float64: e.Sample.Y, Valid: true}
	}
	r.idx.submit(req)
}

// Finish stores the final report and closes both backends.
func (r *Recorder) Finish(rep orchestrator.Report) error {
	r.idx.submit(indexReq{
		kind:           reqRunFinish,
		runID:          r.RunID,
		state:          rep.State.String(),
		ticks:          rep.Ticks,
		commandsSent:   rep.CommandsSent,
		actionsSkipped: rep.ActionsSkipped,
		stepsSent:      rep.StepsSent,
		sensorRetries:  rep.SensorRetries,
	})
	evErr := r.ev.Close()
	idxErr := r.idx.Close()
	if evErr != nil {
		return evErr
	}
	return idxErr
}
