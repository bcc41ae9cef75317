package types

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Clone copies the attribute map.
func (e Event) Clone() Event {
	attrs := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return Event{Type: e.Type, Attributes: attrs}
}

// Receipt describes a committed transaction and the events it produced.
type Receipt struct {
	TxHash   string  `json:"txHash"`
	Sequence uint64  `json:"sequence"`
	Type     string  `json:"type"`
	From     string  `json:"from"`
	Events   []Event `json:"events"`
}
