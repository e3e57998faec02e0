// Package channel is the conduit between the orchestrator and the
// simulation peer. Two variants exist: direct (in-process world handle)
// and remote (websocket). Both guarantee that commands sent in sequence
// are applied in that sequence.
package channel

import (
	"errors"

	"physlab.ai/internal/protocol"
)

// ErrClosed reports a transport that is gone. Fatal to the run.
var ErrClosed = errors.New("channel closed")

// ErrSensorUnavailable reports a sensor query the peer did not answer
// within the bounded timeout.
var ErrSensorUnavailable = errors.New("sensor unavailable")

// ErrNoSample reports a peer that answered but has nothing to measure yet
// (no object spawned). Not a transport failure.
var ErrNoSample = errors.New("no sensor sample")

type Channel interface {
	// Send delivers one command, fire-and-forget.
	Send(cmd protocol.Command) error
	// QuerySensor performs one request/response round trip.
	QuerySensor(target string) (protocol.SensorSample, error)
	Close() error
}
