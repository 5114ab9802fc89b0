package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Rule/action layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoHit         = "E_NO_HIT"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrBlocked       = "E_BLOCKED"
	ErrEmptyCell     = "E_EMPTY_CELL"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrScarcity      = "E_SCARCITY"
	ErrUnknownType   = "E_UNKNOWN_TYPE"
	ErrNotBreakable  = "E_NOT_BREAKABLE"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrNoHit:           {},
	ErrInvalidTarget:   {},
	ErrBlocked:         {},
	ErrEmptyCell:       {},
	ErrNoResource:      {},
	ErrScarcity:        {},
	ErrUnknownType:     {},
	ErrNotBreakable:    {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

var outcomeCodes = map[string]string{
	"APPLIED":                       "",
	"REFUSED_NO_HIT":                ErrNoHit,
	"REFUSED_OUT_OF_BOUNDS":         ErrInvalidTarget,
	"REFUSED_OCCUPIED":              ErrBlocked,
	"REFUSED_EMPTY_CELL":            ErrEmptyCell,
	"REFUSED_INSUFFICIENT_RESOURCE": ErrNoResource,
	"REFUSED_SCARCITY_FLOOR":        ErrScarcity,
	"REFUSED_UNKNOWN_TYPE":          ErrUnknownType,
	"REFUSED_NOT_BREAKABLE":         ErrNotBreakable,
}

// CodeForOutcome maps a mutation outcome to its wire code. Applied maps to "".
func CodeForOutcome(outcome string) string {
	if c, ok := outcomeCodes[outcome]; ok {
		return c
	}
	return ErrInternal
}
