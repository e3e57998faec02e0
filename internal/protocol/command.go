package protocol

import (
	"errors"
	"fmt"
)

// Command names.
const (
	CmdSpawnBox    = "spawn_box"
	CmdSpawnSphere = "spawn_sphere"
	CmdSpawnLiquid = "spawn_liquid"
	CmdSpawnCloth  = "spawn_cloth"
	CmdSpawnFloor  = "spawn_floor"
	CmdStep        = "step"
)

// ErrInvalidParams marks a command that failed local validation and was
// never handed to the channel.
var ErrInvalidParams = errors.New("invalid command parameters")

// Command is a single physics intent on the wire: an enumerated name plus
// an ordered list of numeric parameters whose count depends on the name.
// Immutable once constructed.
type Command struct {
	Name   string    `json:"cmd"`
	Params []float64 `json:"params,omitempty"`
}

// arity maps each command name to its required parameter count.
var arity = map[string]int{
	CmdSpawnBox:    3,
	CmdSpawnSphere: 3,
	CmdSpawnLiquid: 3,
	CmdSpawnCloth:  5, // x, y, z, width, height
	CmdSpawnFloor:  0,
	CmdStep:        0,
}

func KnownCommand(name string) bool {
	_, ok := arity[name]
	return ok
}

// Validate checks the command name and parameter arity. Cloth grid
// dimensions must be whole numbers of at least 2 (a single row of
// particles cannot hold springs in both directions).
func (c Command) Validate() error {
	n, ok := arity[c.Name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", ErrInvalidParams, c.Name)
	}
	if len(c.Params) != n {
		return fmt.Errorf("%w: %s wants %d params, got %d", ErrInvalidParams, c.Name, n, len(c.Params))
	}
	if c.Name == CmdSpawnCloth {
		w, h := c.Params[3], c.Params[4]
		if w != float64(int(w)) || h != float64(int(h)) || w < 2 || h < 2 {
			return fmt.Errorf("%w: cloth grid must be integral and >= 2x2, got %gx%g", ErrInvalidParams, w, h)
		}
	}
	return nil
}

// SensorSample is a read-only snapshot of one observed coordinate, pulled
// on demand from the peer. Never cached across ticks.
type SensorSample struct {
	Target string  `json:"target"`
	Y      float64 `json:"y"`
}

// Sensor targets. The sandbox exposes a single convention today: the
// vertical coordinate of the first object spawned.
const TargetFirstObject = "first_object"
