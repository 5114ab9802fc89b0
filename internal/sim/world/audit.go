package world

// AuditLogger receives one entry per attempted mutation. Entries are delivered after the
// world lock is released, so implementations may read the world but must not block for long.
type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type AuditEntry struct {
	Seq      uint64         `json:"seq"`
	Actor    string         `json:"actor"`
	Action   string         `json:"action"` // "BUILD", "DIG", "PLANT", "CLEAR"
	Block    string         `json:"block,omitempty"`
	Pos      [3]int         `json:"pos"`
	Outcome  string         `json:"outcome"`
	Reason   string         `json:"reason,omitempty"`
	Template string         `json:"template,omitempty"`
	Added    int            `json:"added,omitempty"`
	Removed  int            `json:"removed,omitempty"`
	Credited map[string]int `json:"credited,omitempty"`
	Chunks   []int          `json:"chunks,omitempty"`
	UnixMs   int64          `json:"unix_ms"`
}
