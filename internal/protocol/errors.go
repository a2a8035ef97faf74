package protocol

const (
	// Request/transport validation.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrNotFound   = "E_NOT_FOUND"

	// Pipeline layer.
	ErrParseRejected = "E_PARSE_REJECTED"
	ErrValidation    = "E_VALIDATION_FAILED"
	ErrGridFull      = "E_GRID_FULL"
	ErrConflict      = "E_CONFLICT"
	ErrNoData        = "E_NO_DATA"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:    {},
	ErrNotFound:      {},
	ErrParseRejected: {},
	ErrValidation:    {},
	ErrGridFull:      {},
	ErrConflict:      {},
	ErrNoData:        {},
	ErrInternal:      {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
