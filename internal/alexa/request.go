package alexa

// Request is the envelope the voice platform posts for every turn.
type Request struct {
	Version string  `json:"version"`
	Session Session `json:"session"`
	Body    Body    `json:"request"`
}

type Session struct {
	SessionID string `json:"sessionId"`
}

type Body struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
	Intent    Intent `json:"intent"`
}

const (
	TypeLaunch       = "LaunchRequest"
	TypeSessionEnded = "SessionEndedRequest"
	TypeIntent       = "IntentRequest"
)

type Intent struct {
	Name  string          `json:"name"`
	Slots map[string]Slot `json:"slots"`
}

type Slot struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SlotValue returns the spoken value of a slot, or "" when absent.
func (i Intent) SlotValue(name string) string {
	return i.Slots[name].Value
}

// SlotValues returns every non-empty spoken slot value.
func (i Intent) SlotValues() []string {
	values := make([]string, 0, len(i.Slots))
	for _, slot := range i.Slots {
		if slot.Value != "" {
			values = append(values, slot.Value)
		}
	}
	return values
}
