package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Command layer.
	ErrBadCommand = "E_BAD_COMMAND"
	ErrBadParams  = "E_BAD_PARAMS"

	// Sensor layer.
	ErrBadTarget = "E_BAD_TARGET"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadCommand:      {},
	ErrBadParams:       {},
	ErrBadTarget:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
