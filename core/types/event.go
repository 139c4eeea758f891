package types

// Event represents a typed notification emitted during account state
// transitions. Attributes are flat string pairs so downstream sinks can index
// them without schema knowledge.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
