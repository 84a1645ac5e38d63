package comm

import (
	"encoding/json"
)

// EventCardData is the only event the relay emits.
const EventCardData = "cardData"

// WSMessage is the frame written to subscribers.
type WSMessage struct {
	Type string          `json:"type"` // e.g. "cardData"
	Data json.RawMessage `json:"data"`
}

type CardData struct {
	CardData string `json:"cardData"`
}

// RelayEnvelope carries an emitted event between relay instances over NATS.
type RelayEnvelope struct {
	InstanceId string          `json:"instance_id"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
}

// NewWSMessage marshals payload into a frame for event.
func NewWSMessage(event string, payload any) (*WSMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &WSMessage{Type: event, Data: data}, nil
}
