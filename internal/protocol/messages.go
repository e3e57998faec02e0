package protocol

// HELLO (orchestrator -> sim)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// WELCOME (sim -> orchestrator)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	SimName         string `json:"sim_name,omitempty"`
}

// CMD (orchestrator -> sim): fire-and-forget, applied in arrival order.
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Command
}

// QUERY (orchestrator -> sim): sensor read, answered by exactly one SENSOR.
// QueryID correlates the response; the orchestrator keeps at most one
// query outstanding at a time.
type QueryMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	QueryID         uint64 `json:"query_id"`
	Target          string `json:"target"`
}

// SENSOR (sim -> orchestrator)
type SensorMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	QueryID         uint64  `json:"query_id"`
	Target          string  `json:"target"`
	Y               float64 `json:"y"`
	Found           bool    `json:"found"`
}

// ERROR (sim -> orchestrator): rejection of a malformed inbound message.
// The sim keeps the connection open; ordering of accepted commands is
// unaffected.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
