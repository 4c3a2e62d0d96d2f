package transcript

// Kind distinguishes an in-progress hypothesis from a closed utterance.
type Kind string

const (
	Partial Kind = "partial"
	Final   Kind = "final"
)

// Event is one recognition result as pushed to clients.
type Event struct {
	Kind Kind   `json:"type"`
	Text string `json:"text"`
}
