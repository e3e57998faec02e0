// Package orchestrator owns a scenario script and a simulation proxy,
// runs the tick scheduler, and reacts to sensor feedback. One instance
// drives one run; Complete and Failed are terminal.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"physlab.ai/internal/channel"
	"physlab.ai/internal/protocol"
	"physlab.ai/internal/proxy"
	"physlab.ai/internal/scenario"
	"physlab.ai/internal/scheduler"
)

type State int

const (
	Idle State = iota
	Connected
	Running
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Connected:
		return "CONNECTED"
	case Running:
		return "RUNNING"
	case Complete:
		return "COMPLETE"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// Report is the user-visible outcome of a run.
type Report struct {
	Scenario       string
	State          State
	Ticks          uint64
	ActionsFired   int
	CommandsSent   int
	ActionsSkipped int
	StepsSent      uint64
	SensorRetries  int
}

// Event is one recorded occurrence on the tick timeline, handed to the
// run log.
type Event struct {
	Tick   uint64                 `json:"tick"`
	Kind   string                 `json:"kind"` // command | skip | sample | error
	Label  string                 `json:"label,omitempty"`
	Cmd    *protocol.Command      `json:"cmd,omitempty"`
	Sample *protocol.SensorSample `json:"sample,omitempty"`
	Err    string                 `json:"err,omitempty"`
}

// Sink receives events as they happen. Implementations must not block
// the tick loop for long.
type Sink interface {
	Record(Event)
}

type Orchestrator struct {
	def  scenario.Definition
	log  *log.Logger
	sink Sink

	state  State
	ch     channel.Channel
	px     *proxy.Proxy
	script *scenario.Script

	lastSample  *protocol.SensorSample
	exhaustedAt *uint64

	report Report
}

type Option func(*Orchestrator)

func WithSink(s Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

func New(def scenario.Definition, logger *log.Logger, opts ...Option) *Orchestrator {
	def.Normalize()
	o := &Orchestrator{
		def:   def,
		log:   logger,
		state: Idle,
		report: Report{
			Scenario: def.Name,
			State:    Idle,
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State { return o.state }

// Connect attaches an established channel. Idle -> Connected.
func (o *Orchestrator) Connect(ch channel.Channel) error {
	if o.state != Idle {
		return fmt.Errorf("connect in state %s", o.state)
	}
	o.ch = ch
	o.px = proxy.New(ch)
	o.state = Connected
	return nil
}

func (o *Orchestrator) record(ev Event) {
	if o.sink != nil {
		o.sink.Record(ev)
	}
}

// Run loads the script, starts the scheduler, and drives the scenario to
// a terminal state. Connected -> Running -> Complete|Failed. A consumed
// orchestrator cannot run again.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	if o.state != Connected {
		return o.report, fmt.Errorf("run in state %s", o.state)
	}

	script, err := o.def.Script()
	if err != nil {
		o.state = Failed
		o.report.State = Failed
		return o.report, fmt.Errorf("load scenario: %w", err)
	}
	o.script = script

	sched, err := scheduler.New(o.def.CadenceHz)
	if err != nil {
		o.state = Failed
		o.report.State = Failed
		return o.report, err
	}

	o.state = Running
	o.log.Printf("run start scenario=%s cadence=%dHz actions=%d", o.def.Name, o.def.CadenceHz, script.Len())

	runErr := sched.Run(ctx, o.onTick, o.stopCondition)

	switch {
	case runErr == nil:
		o.state = Complete
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		// Cooperative shutdown: the in-flight tick completed.
		o.state = Complete
	default:
		o.state = Failed
	}
	o.report.State = o.state
	o.log.Printf("run end state=%s ticks=%d commands=%d skipped=%d", o.state, o.report.Ticks, o.report.CommandsSent, o.report.ActionsSkipped)
	if o.state == Failed {
		return o.report, runErr
	}
	return o.report, nil
}

func (o *Orchestrator) stopCondition(st scheduler.TickState) bool {
	if o.def.MaxTicks > 0 && st.Tick >= o.def.MaxTicks {
		return true
	}
	if o.exhaustedAt != nil && st.Tick >= *o.exhaustedAt+o.def.GraceTicks {
		return true
	}
	return false
}

func (o *Orchestrator) onTick(st scheduler.TickState) error {
	o.report.Ticks = st.Tick + 1

	// Sensor poll first: predicates see the freshest sample this tick.
	if o.def.SensorEveryTicks > 0 && st.Tick%o.def.SensorEveryTicks == 0 {
		if err := o.pollSensor(st.Tick); err != nil {
			return err
		}
	}

	for _, fired := range o.script.Due(st.Tick, o.lastSample) {
		o.report.ActionsFired++
		if !fired.IsCmd {
			continue
		}
		err := o.px.Issue(fired.Cmd)
		switch {
		case err == nil:
			o.report.CommandsSent++
			cmd := fired.Cmd
			o.record(Event{Tick: st.Tick, Kind: "command", Label: fired.Label, Cmd: &cmd})
		case errors.Is(err, protocol.ErrInvalidParams):
			// Authoring error: isolated per action, the script moves on.
			o.report.ActionsSkipped++
			o.log.Printf("tick=%d skip %s: %v", st.Tick, fired.Label, err)
			o.record(Event{Tick: st.Tick, Kind: "skip", Label: fired.Label, Err: err.Error()})
		default:
			o.record(Event{Tick: st.Tick, Kind: "error", Label: fired.Label, Err: err.Error()})
			return fmt.Errorf("send %s: %w", fired.Label, err)
		}
	}

	if *o.def.StepEveryTick {
		if err := o.px.Step(); err != nil {
			return fmt.Errorf("step: %w", err)
		}
		o.report.StepsSent++
	}

	if o.exhaustedAt == nil && o.script.Exhausted() {
		t := st.Tick
		o.exhaustedAt = &t
	}
	return nil
}

// pollSensor performs the bounded sensor round trip. One retry is
// permitted on timeout; a second timeout is fatal. An empty world
// (ErrNoSample) is not an error, just the absence of a sample.
func (o *Orchestrator) pollSensor(tick uint64) error {
	sample, err := o.px.QuerySensor(o.def.SensorTarget)
	if errors.Is(err, channel.ErrSensorUnavailable) {
		o.report.SensorRetries++
		o.log.Printf("tick=%d sensor timeout, retrying", tick)
		sample, err = o.px.QuerySensor(o.def.SensorTarget)
	}
	switch {
	case err == nil:
		o.lastSample = &sample
		s := sample
		o.record(Event{Tick: tick, Kind: "sample", Sample: &s})
		return nil
	case errors.Is(err, channel.ErrNoSample):
		return nil
	default:
		o.record(Event{Tick: tick, Kind: "error", Err: err.Error()})
		return fmt.Errorf("sensor: %w", err)
	}
}
