package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TopicCollectionSynced = "evt.backoffice.collection.synced.v1"
	TopicSyncFailed       = "evt.backoffice.sync.failed.v1"

	EventCollectionSynced = "collection.synced"
	EventSyncFailed       = "sync.failed"
)

// Envelope is the canonical wrapper for every event the agent emits.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload for topic.
func NewEnvelope(topic, eventType, source string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Topic:         topic,
		EventType:     eventType,
		Version:       "1.0.0",
		Source:        source,
		Timestamp:     time.Now().UTC(),
		Payload:       data,
	}, nil
}

// CollectionSynced is emitted after a snapshot is stored.
type CollectionSynced struct {
	Collection       string    `json:"collection"`
	Count            int       `json:"count"`
	Checksum         string    `json:"checksum"`
	PreviousChecksum string    `json:"previous_checksum,omitempty"`
	Changed          bool      `json:"changed"`
	SyncedAt         time.Time `json:"synced_at"`
}

// SyncFailed is emitted when a collection could not be fetched or stored.
type SyncFailed struct {
	Collection string    `json:"collection"`
	Error      string    `json:"error"`
	Status     int       `json:"status,omitempty"`
	FailedAt   time.Time `json:"failed_at"`
}
