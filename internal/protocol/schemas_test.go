package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"physlab.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		s, err := protocol.CompileSchema(name)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, raw string) error {
		t.Helper()
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("unmarshal sample: %v", err)
		}
		return s.Validate(v)
	}

	helloSchema := compile("hello.schema.json")
	cmdSchema := compile("cmd.schema.json")
	querySchema := compile("query.schema.json")

	if err := validate(helloSchema, `{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "client_name":"orchestrator"
	}`); err != nil {
		t.Fatalf("hello: %v", err)
	}

	if err := validate(cmdSchema, `{
	  "type":"CMD",
	  "protocol_version":"1.0",
	  "cmd":"spawn_box",
	  "params":[0,10,0]
	}`); err != nil {
		t.Fatalf("cmd: %v", err)
	}

	if err := validate(cmdSchema, `{
	  "type":"CMD",
	  "protocol_version":"1.0",
	  "cmd":"spawn_floor"
	}`); err != nil {
		t.Fatalf("cmd without params: %v", err)
	}

	if err := validate(querySchema, `{
	  "type":"QUERY",
	  "protocol_version":"1.0",
	  "query_id":1,
	  "target":"first_object"
	}`); err != nil {
		t.Fatalf("query: %v", err)
	}
}

func TestSchemas_RejectBadMessages(t *testing.T) {
	cmdSchema, err := protocol.CompileSchema("cmd.schema.json")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	bad := []string{
		`{"type":"CMD","protocol_version":"1.0","cmd":"explode"}`,
		`{"type":"CMD","protocol_version":"1.0"}`,
		`{"type":"ACT","protocol_version":"1.0","cmd":"step"}`,
		`{"type":"CMD","protocol_version":"1.0","cmd":"spawn_box","params":["a","b","c"]}`,
	}
	for i, raw := range bad {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("case %d: unmarshal: %v", i, err)
		}
		if err := cmdSchema.Validate(v); err == nil {
			t.Errorf("case %d: expected schema rejection for %s", i, raw)
		}
	}
}
