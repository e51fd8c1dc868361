package notify

import "time"

// Event describes a key request that did not deliver a key.
type Event struct {
	Endpoint   string    `json:"endpoint"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	KeyID      int       `json:"key_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent constructs an Event for a failure observed against endpoint.
// keyID is the id of the last key delivered before the failure.
func NewEvent(endpoint, kind, message string, keyID int) Event {
	return Event{
		Endpoint:   endpoint,
		Kind:       kind,
		Message:    message,
		KeyID:      keyID,
		OccurredAt: time.Now().UTC(),
	}
}
