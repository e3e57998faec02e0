package orchestrator_test

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"physlab.ai/internal/channel"
	"physlab.ai/internal/orchestrator"
	"physlab.ai/internal/protocol"
	"physlab.ai/internal/scenario"
	"physlab.ai/internal/sim"
	"physlab.ai/internal/transport/ws"
)

// Full stack: scenario -> orchestrator -> websocket -> sim world. The box
// drops under per-tick stepping until the sensor predicate releases the
// liquid spawn.
func TestOrchestrator_RemoteEndToEnd(t *testing.T) {
	world := sim.NewWorld()
	server, err := ws.NewServer(world, log.New(io.Discard, "", 0))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", server.Handler())
	ts := httptest.NewServer(mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
	remote, err := channel.Dial(url, "e2e")
	require.NoError(t, err)
	defer remote.Close()

	atTick := func(v uint64) *uint64 { return &v }
	below := 9.0
	step := true
	def := scenario.Definition{
		Name:             "e2e-drop",
		CadenceHz:        600,
		MaxTicks:         600,
		GraceTicks:       30,
		StepEveryTick:    &step,
		SensorEveryTicks: 5,
		SensorTarget:     protocol.TargetFirstObject,
		Actions: []scenario.Action{
			{Name: "floor", AtTick: atTick(0), Command: protocol.CmdSpawnFloor},
			{Name: "box", AtTick: atTick(1), Command: protocol.CmdSpawnBox, Params: []float64{0, 10, 0}},
			{Name: "splash", When: &scenario.Predicate{Target: protocol.TargetFirstObject, Below: &below}, Command: protocol.CmdSpawnLiquid, Params: []float64{0, 5, 0}},
		},
	}

	o := orchestrator.New(def, log.New(io.Discard, "", 0))
	require.NoError(t, o.Connect(remote))

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, orchestrator.Complete, report.State)
	assert.Equal(t, 3, report.CommandsSent, "floor, box, liquid")
	assert.Equal(t, 0, report.ActionsSkipped)
	assert.Less(t, report.Ticks, uint64(600), "predicate should fire well before the tick cap")

	// One more round trip flushes any step still in flight, then the
	// world must hold the box plus the liquid blob.
	_, err = remote.QuerySensor(protocol.TargetFirstObject)
	require.NoError(t, err)
	assert.Equal(t, 5, world.BodyCount())
	assert.Equal(t, report.StepsSent, world.Steps())
}
