package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Handshake admission.
	ErrVersionMismatch = "E_VERSION_MISMATCH"
	ErrWorldMismatch   = "E_WORLD_MISMATCH"
	ErrCatalogMismatch = "E_CATALOG_MISMATCH"

	// Content application.
	ErrBadCell      = "E_BAD_CELL"
	ErrUnknownEntry = "E_UNKNOWN_ENTRY"
	ErrStale        = "E_STALE"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrVersionMismatch: {},
	ErrWorldMismatch:   {},
	ErrCatalogMismatch: {},
	ErrBadCell:         {},
	ErrUnknownEntry:    {},
	ErrStale:           {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
