package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeAct     = "ACT"
	TypeResult  = "RESULT"
	TypeLedger  = "LEDGER"
	TypeChunk   = "CHUNK"
	TypeError   = "ERROR"
)

// Act kinds.
const (
	ActDig     = "DIG"
	ActBuild   = "BUILD"
	ActPreview = "PREVIEW"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
