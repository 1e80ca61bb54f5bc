package event

// Payload is the structured record describing one detected occurrence. It is
// what job processes receive, serialized as JSON, on standard input.
type Payload struct {
	// Event is the kind name that detected the occurrence.
	Event string `json:"event"`
	// Name is the configured event name, falling back to the kind, so one
	// script can serve several configured events.
	Name string `json:"name"`
	// Data is the full current state of the entity that changed.
	Data any `json:"data"`
	// Culprits lists the specific sub-entities that triggered the event
	// for multi-subject occurrences (e.g. the reviewers whose vote
	// changed). Omitted when the whole entity is the subject.
	Culprits any `json:"culprits,omitempty"`
}
