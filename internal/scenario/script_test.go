package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"physlab.ai/internal/protocol"
)

func u64(v uint64) *uint64   { return &v }
func f64(v float64) *float64 { return &v }

func boxAt(tick uint64) Action {
	return Action{AtTick: u64(tick), Command: protocol.CmdSpawnBox, Params: []float64{0, 10, 0}}
}

func TestScript_FiresInOrderExactlyOnce(t *testing.T) {
	s, err := NewScript([]Action{
		{AtTick: u64(0), Command: protocol.CmdSpawnFloor},
		boxAt(60),
		{AtTick: u64(120), Command: protocol.CmdSpawnLiquid, Params: []float64{0, 5, 0}},
	})
	require.NoError(t, err)

	var fired []Fired
	for tick := uint64(0); tick < 121; tick++ {
		fired = append(fired, s.Due(tick, nil)...)
	}

	require.Len(t, fired, 3)
	assert.Equal(t, protocol.CmdSpawnFloor, fired[0].Cmd.Name)
	assert.Equal(t, uint64(0), fired[0].Tick)
	assert.Equal(t, protocol.CmdSpawnBox, fired[1].Cmd.Name)
	assert.Equal(t, uint64(60), fired[1].Tick)
	assert.Equal(t, protocol.CmdSpawnLiquid, fired[2].Cmd.Name)
	assert.Equal(t, uint64(120), fired[2].Tick)
	assert.True(t, s.Exhausted())

	// Re-scanning old ticks must not re-fire anything.
	for tick := uint64(0); tick < 121; tick++ {
		assert.Empty(t, s.Due(tick, nil))
	}
}

func TestScript_RelativeDelayResolvesAtFireTick(t *testing.T) {
	s, err := NewScript([]Action{
		boxAt(10),
		{After: u64(5), Command: protocol.CmdStep},
	})
	require.NoError(t, err)

	// Nothing due before the base action fires.
	for tick := uint64(0); tick < 10; tick++ {
		require.Empty(t, s.Due(tick, nil))
	}
	fired := s.Due(10, nil)
	require.Len(t, fired, 1)

	// The delay counts from the fire tick (10), so the step fires at 15.
	assert.Empty(t, s.Due(14, nil))
	fired = s.Due(15, nil)
	require.Len(t, fired, 1)
	assert.Equal(t, protocol.CmdStep, fired[0].Cmd.Name)
}

func TestScript_RelativeDelayDeterministicUnderLateFiring(t *testing.T) {
	// If the base action is scanned late (first Due call at tick 20), it
	// fires immediately and the delay resolves from that actual fire
	// tick, identically across runs.
	build := func() *Script {
		s, err := NewScript([]Action{
			boxAt(10),
			{After: u64(5), Command: protocol.CmdStep},
		})
		require.NoError(t, err)
		return s
	}
	for run := 0; run < 2; run++ {
		s := build()
		fired := s.Due(20, nil)
		require.Len(t, fired, 1, "run %d", run)
		assert.Equal(t, uint64(20), fired[0].Tick)
		assert.Empty(t, s.Due(24, nil))
		fired = s.Due(25, nil)
		require.Len(t, fired, 1, "run %d", run)
	}
}

func TestScript_LeadingRelativeDelayCountsFromStart(t *testing.T) {
	s, err := NewScript([]Action{
		{After: u64(3), Command: protocol.CmdSpawnFloor},
	})
	require.NoError(t, err)
	assert.Empty(t, s.Due(2, nil))
	assert.Len(t, s.Due(3, nil), 1)
}

func TestScript_ChainedFiresWithinOneTick(t *testing.T) {
	s, err := NewScript([]Action{
		{AtTick: u64(5), Command: protocol.CmdSpawnFloor},
		{After: u64(0), Command: protocol.CmdSpawnBox, Params: []float64{0, 10, 0}},
	})
	require.NoError(t, err)

	fired := s.Due(5, nil)
	require.Len(t, fired, 2)
	assert.Equal(t, protocol.CmdSpawnFloor, fired[0].Cmd.Name)
	assert.Equal(t, protocol.CmdSpawnBox, fired[1].Cmd.Name)
}

func TestScript_PredicateHeldWithoutSample(t *testing.T) {
	s, err := NewScript([]Action{
		{When: &Predicate{Target: protocol.TargetFirstObject, Below: f64(1.0)}, Command: protocol.CmdSpawnLiquid, Params: []float64{0, 5, 0}},
		boxAt(5),
	})
	require.NoError(t, err)

	var fired []Fired
	for tick := uint64(0); tick < 50; tick++ {
		fired = append(fired, s.Due(tick, nil)...)
	}
	// The predicate never fires without a sample, and it does not block
	// the tick-based action behind it.
	require.Len(t, fired, 1)
	assert.Equal(t, protocol.CmdSpawnBox, fired[0].Cmd.Name)
	assert.False(t, s.Exhausted())
	assert.Equal(t, 1, s.Remaining())
}

func TestScript_PredicateFiresOnSample(t *testing.T) {
	s, err := NewScript([]Action{
		{When: &Predicate{Target: protocol.TargetFirstObject, Below: f64(1.0)}, Command: protocol.CmdSpawnLiquid, Params: []float64{0, 5, 0}},
	})
	require.NoError(t, err)

	high := &protocol.SensorSample{Target: protocol.TargetFirstObject, Y: 5.0}
	assert.Empty(t, s.Due(0, high))

	low := &protocol.SensorSample{Target: protocol.TargetFirstObject, Y: 0.5}
	fired := s.Due(1, low)
	require.Len(t, fired, 1)
	assert.Equal(t, protocol.CmdSpawnLiquid, fired[0].Cmd.Name)

	// At most once, even if the predicate stays true.
	assert.Empty(t, s.Due(2, low))
}

func TestScript_WaitActionFiresNoCommand(t *testing.T) {
	s, err := NewScript([]Action{
		{AtTick: u64(0), Command: CmdWait},
		{After: u64(2), Command: protocol.CmdStep},
	})
	require.NoError(t, err)

	fired := s.Due(0, nil)
	require.Len(t, fired, 1)
	assert.False(t, fired[0].IsCmd)

	fired = s.Due(2, nil)
	require.Len(t, fired, 1)
	assert.True(t, fired[0].IsCmd)
}

func TestScript_ValidateRejectsBadActions(t *testing.T) {
	_, err := NewScript([]Action{{Command: protocol.CmdStep}})
	assert.Error(t, err, "no trigger")

	_, err = NewScript([]Action{{AtTick: u64(0), After: u64(1), Command: protocol.CmdStep}})
	assert.Error(t, err, "two triggers")

	_, err = NewScript([]Action{{AtTick: u64(0), Command: "explode"}})
	assert.Error(t, err, "unknown command")

	_, err = NewScript([]Action{{When: &Predicate{Target: protocol.TargetFirstObject}, Command: protocol.CmdStep}})
	assert.Error(t, err, "predicate without bound")
}

func TestPredicate_Eval(t *testing.T) {
	p := Predicate{Target: protocol.TargetFirstObject, Below: f64(1.0)}
	assert.False(t, p.Eval(nil))
	assert.False(t, p.Eval(&protocol.SensorSample{Target: "other", Y: 0.1}))
	assert.False(t, p.Eval(&protocol.SensorSample{Target: protocol.TargetFirstObject, Y: 1.0}))
	assert.True(t, p.Eval(&protocol.SensorSample{Target: protocol.TargetFirstObject, Y: 0.9}))

	band := Predicate{Target: protocol.TargetFirstObject, Above: f64(1.0), Below: f64(2.0)}
	assert.True(t, band.Eval(&protocol.SensorSample{Target: protocol.TargetFirstObject, Y: 1.5}))
	assert.False(t, band.Eval(&protocol.SensorSample{Target: protocol.TargetFirstObject, Y: 2.5}))
}
