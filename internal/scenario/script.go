package scenario

import "physlab.ai/internal/protocol"

// Script interprets the ordered action list against the tick counter.
// Each action fires at most once, in declaration order. A relative delay
// is resolved into an absolute tick at the moment the previous action
// fires, so resolution is deterministic even when wall-clock pacing
// drifts. A trigger whose tick has already passed fires immediately,
// once. Held predicate actions do not block later tick-based actions.
//
// Script is not safe for concurrent use; the scheduling loop owns it.
type Script struct {
	actions []*actionState
}

type actionState struct {
	Action
	index    int
	resolved *uint64 // absolute tick; nil while waiting on the previous action or on a predicate
	fired    bool
}

// Fired describes one action the script released on a given tick.
type Fired struct {
	Index int
	Label string
	Tick  uint64
	Cmd   protocol.Command
	IsCmd bool
}

// NewScript validates the actions and resolves what can be resolved up
// front: absolute triggers, and a leading relative delay (its implicit
// previous action is the start of the run, tick 0).
func NewScript(actions []Action) (*Script, error) {
	s := &Script{}
	for i, a := range actions {
		if err := a.validate(i); err != nil {
			return nil, err
		}
		st := &actionState{Action: a, index: i}
		if a.AtTick != nil {
			t := *a.AtTick
			st.resolved = &t
		}
		s.actions = append(s.actions, st)
	}
	// A leading relative delay has no previous action; it resolves
	// against the start of the run.
	if len(s.actions) > 0 && s.actions[0].After != nil {
		t := *s.actions[0].After
		s.actions[0].resolved = &t
	}
	return s, nil
}

// Due returns, in order, every unfired action whose trigger has arrived
// at currentTick, marking each fired and resolving the successor's
// relative delay against this fire tick. sample is the last-known sensor
// value (nil if none has been observed yet).
func (s *Script) Due(currentTick uint64, sample *protocol.SensorSample) []Fired {
	var out []Fired
	for i, st := range s.actions {
		if st.fired {
			continue
		}
		eligible := false
		switch {
		case st.When != nil:
			eligible = st.When.Eval(sample)
		case st.resolved != nil:
			eligible = *st.resolved <= currentTick
		}
		if !eligible {
			// Held or future actions do not stop the scan: later
			// tick-based actions may still be due.
			continue
		}
		st.fired = true
		cmd, isCmd := st.ToCommand()
		out = append(out, Fired{
			Index: st.index,
			Label: st.label(st.index),
			Tick:  currentTick,
			Cmd:   cmd,
			IsCmd: isCmd,
		})
		// Resolve the successor's relative delay against this fire.
		if i+1 < len(s.actions) {
			next := s.actions[i+1]
			if next.After != nil && next.resolved == nil {
				t := currentTick + *next.After
				next.resolved = &t
			}
		}
	}
	return out
}

// Exhausted reports whether every action has fired.
func (s *Script) Exhausted() bool {
	for _, st := range s.actions {
		if !st.fired {
			return false
		}
	}
	return true
}

// Remaining counts unfired actions.
func (s *Script) Remaining() int {
	n := 0
	for _, st := range s.actions {
		if !st.fired {
			n++
		}
	}
	return n
}

func (s *Script) Len() int { return len(s.actions) }
