package channel

import (
	"fmt"
	"sync/atomic"

	"physlab.ai/internal/protocol"
	"physlab.ai/internal/sim"
)

// Direct passes commands straight to an in-process world. Calls are
// synchronous and fail only on invalid arguments (or after Close).
type Direct struct {
	world  *sim.World
	closed atomic.Bool
}

func NewDirect(w *sim.World) *Direct {
	return &Direct{world: w}
}

func (d *Direct) Send(cmd protocol.Command) error {
	if d.closed.Load() {
		return ErrClosed
	}
	p := cmd.Params
	switch cmd.Name {
	case protocol.CmdSpawnBox:
		return d.world.SpawnBox(p[0], p[1], p[2])
	case protocol.CmdSpawnSphere:
		return d.world.SpawnSphere(p[0], p[1], p[2])
	case protocol.CmdSpawnLiquid:
		return d.world.SpawnLiquid(p[0], p[1], p[2])
	case protocol.CmdSpawnCloth:
		return d.world.SpawnCloth(p[0], p[1], p[2], int(p[3]), int(p[4]))
	case protocol.CmdSpawnFloor:
		return d.world.SpawnFloor()
	case protocol.CmdStep:
		return d.world.Step()
	default:
		return fmt.Errorf("%w: unknown command %q", protocol.ErrInvalidParams, cmd.Name)
	}
}

func (d *Direct) QuerySensor(target string) (protocol.SensorSample, error) {
	if d.closed.Load() {
		return protocol.SensorSample{}, ErrClosed
	}
	if target != protocol.TargetFirstObject {
		return protocol.SensorSample{}, fmt.Errorf("%w: unknown target %q", protocol.ErrInvalidParams, target)
	}
	y, ok := d.world.FirstObjectY()
	if !ok {
		return protocol.SensorSample{}, ErrNoSample
	}
	return protocol.SensorSample{Target: target, Y: y}, nil
}

func (d *Direct) Close() error {
	d.closed.Store(true)
	return nil
}
