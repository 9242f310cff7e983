package ingest

// Mode selects how a completed inbound line is dispatched.
type Mode int

const (
	// ModeNormal lines are only displayed.
	ModeNormal Mode = iota
	// ModeAssistant lines are forwarded to the responder.
	ModeAssistant
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}
