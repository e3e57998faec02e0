package scenario

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"physlab.ai/internal/protocol"
)

//go:embed scenario.schema.json
var schemaBytes []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// checkSchema validates authored yaml against the scenario schema before
// it is decoded into a Definition. The yaml document is round-tripped
// through encoding/json so the validator sees canonical json types.
func checkSchema(b []byte) error {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if schemaErr = c.AddResource("scenario.schema.json", bytes.NewReader(schemaBytes)); schemaErr != nil {
			return
		}
		schema, schemaErr = c.Compile("scenario.schema.json")
	})
	if schemaErr != nil {
		return schemaErr
	}

	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return err
	}
	jb, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(jb, &v); err != nil {
		return err
	}
	return schema.Validate(v)
}

// Definition is the authored form of a run: pacing parameters plus the
// action list, loaded from yaml.
type Definition struct {
	Name      string `yaml:"name"`
	CadenceHz int    `yaml:"cadence_hz"`

	// MaxTicks stops the run; 0 means run until the script is exhausted
	// plus GraceTicks.
	MaxTicks   uint64 `yaml:"max_ticks"`
	GraceTicks uint64 `yaml:"grace_ticks"`

	// StepEveryTick sends a step command each tick so the peer's physics
	// advances with the schedule.
	StepEveryTick *bool `yaml:"step_every_tick,omitempty"`

	// SensorEveryTicks polls the sensor at that period; 0 disables
	// polling (predicate triggers will then never see a sample).
	SensorEveryTicks uint64 `yaml:"sensor_every_ticks"`
	SensorTarget     string `yaml:"sensor_target"`

	Actions []Action `yaml:"actions"`
}

func defaults() Definition {
	step := true
	return Definition{
		Name:             "scenario",
		CadenceHz:        60,
		GraceTicks:       60,
		StepEveryTick:    &step,
		SensorEveryTicks: 30,
		SensorTarget:     protocol.TargetFirstObject,
	}
}

// Load reads a scenario yaml. A missing path yields the defaults with an
// empty action list.
func Load(path string) (Definition, error) {
	def := defaults()
	if strings.TrimSpace(path) == "" {
		return def, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return def, err
	}
	if err := checkSchema(b); err != nil {
		return def, fmt.Errorf("scenario yaml: %w", err)
	}
	if err := yaml.Unmarshal(b, &def); err != nil {
		return def, fmt.Errorf("scenario yaml: %w", err)
	}
	def.Normalize()
	if err := def.Validate(); err != nil {
		return def, fmt.Errorf("scenario yaml: %w", err)
	}
	return def, nil
}

func (d *Definition) Normalize() {
	if d.Name == "" {
		d.Name = "scenario"
	}
	if d.CadenceHz <= 0 {
		d.CadenceHz = 60
	}
	if d.StepEveryTick == nil {
		step := true
		d.StepEveryTick = &step
	}
	if d.SensorTarget == "" {
		d.SensorTarget = protocol.TargetFirstObject
	}
}

func (d *Definition) Validate() error {
	if d.CadenceHz <= 0 || d.CadenceHz > 1000 {
		return fmt.Errorf("cadence_hz out of range: %d", d.CadenceHz)
	}
	for i, a := range d.Actions {
		if err := a.validate(i); err != nil {
			return err
		}
	}
	return nil
}

// Script builds the runtime form of the action list.
func (d *Definition) Script() (*Script, error) {
	return NewScript(d.Actions)
}
