package types

// Event represents a typed state transition emitted by the marketplace.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
