// Package scenario models the orchestration payload: an ordered list of
// timed actions interpreted by the tick scheduler. Triggers are absolute
// ticks, delays relative to the previous action, or predicates over the
// last-known sensor sample.
package scenario

import (
	"fmt"

	"physlab.ai/internal/protocol"
)

// CmdWait is the no-op command: the action fires (consuming its trigger)
// without touching the channel.
const CmdWait = "wait"

// Predicate tests the most recent sensor sample known to the orchestrator.
// With no sample available the predicate holds its action: not fired, not
// skipped.
type Predicate struct {
	Target string   `yaml:"sensor" json:"sensor"`
	Below  *float64 `yaml:"below,omitempty" json:"below,omitempty"`
	Above  *float64 `yaml:"above,omitempty" json:"above,omitempty"`
}

func (p Predicate) Eval(s *protocol.SensorSample) bool {
	if s == nil || s.Target != p.Target {
		return false
	}
	if p.Below != nil && !(s.Y < *p.Below) {
		return false
	}
	if p.Above != nil && !(s.Y > *p.Above) {
		return false
	}
	return true
}

func (p Predicate) validate() error {
	if p.Target == "" {
		return fmt.Errorf("predicate needs a sensor target")
	}
	if p.Below == nil && p.Above == nil {
		return fmt.Errorf("predicate needs below and/or above")
	}
	return nil
}

// Action is one scripted step: exactly one trigger plus one command.
type Action struct {
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Trigger: exactly one of the three.
	AtTick *uint64    `yaml:"at_tick,omitempty" json:"at_tick,omitempty"`
	After  *uint64    `yaml:"after,omitempty" json:"after,omitempty"`
	When   *Predicate `yaml:"when,omitempty" json:"when,omitempty"`

	Command string    `yaml:"command" json:"command"`
	Params  []float64 `yaml:"params,omitempty" json:"params,omitempty"`
}

func (a Action) validate(i int) error {
	triggers := 0
	if a.AtTick != nil {
		triggers++
	}
	if a.After != nil {
		triggers++
	}
	if a.When != nil {
		triggers++
	}
	if triggers != 1 {
		return fmt.Errorf("action %d: exactly one of at_tick/after/when required", i)
	}
	if a.When != nil {
		if err := a.When.validate(); err != nil {
			return fmt.Errorf("action %d: %v", i, err)
		}
	}
	if a.Command != CmdWait && !protocol.KnownCommand(a.Command) {
		return fmt.Errorf("action %d: unknown command %q", i, a.Command)
	}
	return nil
}

// ToCommand builds the wire command. Wait actions have none.
func (a Action) ToCommand() (protocol.Command, bool) {
	if a.Command == CmdWait {
		return protocol.Command{}, false
	}
	return protocol.Command{Name: a.Command, Params: a.Params}, true
}

func (a Action) label(i int) string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("action_%d(%s)", i, a.Command)
}
