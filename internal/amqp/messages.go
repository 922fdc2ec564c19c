package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"invoicer/internal/ports"
)

// NewDocumentEvent builds an event stamped with the current time.
func NewDocumentEvent(typ, tenantID, documentID string) ports.Event {
	return ports.Event{
		Type:       typ,
		TenantID:   tenantID,
		DocumentID: documentID,
		Timestamp:  time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func ToJSON(ev ports.Event) ([]byte, error) {
	return json.Marshal(ev)
}

// EventFromJSON decodes an event and rejects ones missing routing fields.
func EventFromJSON(data []byte) (ports.Event, error) {
	var ev ports.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return ports.Event{}, err
	}
	if ev.Type == "" || ev.TenantID == "" || ev.DocumentID == "" {
		return ports.Event{}, errors.New("event missing type, tenant_id or document_id")
	}
	return ev, nil
}
