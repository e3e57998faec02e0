// Package proxy is the typed facade over the command channel. It owns no
// simulation state: each method builds one Command, validates it locally,
// and performs a single atomic channel operation. It never batches or
// reorders.
package proxy

import (
	"physlab.ai/internal/channel"
	"physlab.ai/internal/protocol"
)

type Proxy struct {
	ch channel.Channel
}

func New(ch channel.Channel) *Proxy {
	return &Proxy{ch: ch}
}

// Issue validates and sends an already-built command. Scenario actions
// flow through here; the typed methods below are conveniences over it.
func (p *Proxy) Issue(cmd protocol.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	return p.ch.Send(cmd)
}

func (p *Proxy) SpawnBox(x, y, z float64) error {
	return p.Issue(protocol.Command{Name: protocol.CmdSpawnBox, Params: []float64{x, y, z}})
}

func (p *Proxy) SpawnSphere(x, y, z float64) error {
	return p.Issue(protocol.Command{Name: protocol.CmdSpawnSphere, Params: []float64{x, y, z}})
}

func (p *Proxy) SpawnLiquid(x, y, z float64) error {
	return p.Issue(protocol.Command{Name: protocol.CmdSpawnLiquid, Params: []float64{x, y, z}})
}

func (p *Proxy) SpawnCloth(x, y, z float64, width, height int) error {
	return p.Issue(protocol.Command{
		Name:   protocol.CmdSpawnCloth,
		Params: []float64{x, y, z, float64(width), float64(height)},
	})
}

func (p *Proxy) SpawnFloor() error {
	return p.Issue(protocol.Command{Name: protocol.CmdSpawnFloor})
}

func (p *Proxy) Step() error {
	return p.Issue(protocol.Command{Name: protocol.CmdStep})
}

// QuerySensor performs one request/response round trip. The channel
// bounds the wait; a peer that never answers surfaces as
// channel.ErrSensorUnavailable.
func (p *Proxy) QuerySensor(target string) (protocol.SensorSample, error) {
	return p.ch.QuerySensor(target)
}
