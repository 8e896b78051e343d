package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// UpdateOp defines realtime update stream operations.
type UpdateOp string

const (
	// Client to server
	UpdateOpSubscribe UpdateOp = "subscribe"

	// Server to client
	UpdateOpRecordUpdated UpdateOp = "record.updated"
	UpdateOpRecordDeleted UpdateOp = "record.deleted"
	UpdateOpPong          UpdateOp = "pong"
	UpdateOpError         UpdateOp = "error"
)

// SubscribeMessage is sent by the client to open an update subscription.
type SubscribeMessage struct {
	Op     UpdateOp `json:"op"`
	Token  string   `json:"token"`
	Kinds  []string `json:"kinds,omitempty"`
	Device string   `json:"device"`
}

// UpdateMessage is a frame on the realtime update stream. For record
// operations it carries the authoritative server-side copy of the record.
type UpdateMessage struct {
	Op        UpdateOp   `json:"op"`
	Kind      RecordKind `json:"kind,omitempty"`
	RecordID  string     `json:"record_id,omitempty"`
	Record    Record     `json:"record,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
	Code      string     `json:"code,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// ParseUpdateMessage parses a raw update stream frame.
func ParseUpdateMessage(data []byte) (*UpdateMessage, error) {
	var msg UpdateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse update message: %w", err)
	}

	switch msg.Op {
	case UpdateOpRecordUpdated, UpdateOpRecordDeleted:
		if msg.RecordID == "" {
			return nil, fmt.Errorf("update message %s missing record_id", msg.Op)
		}
		return &msg, nil
	case UpdateOpPong, UpdateOpError:
		return &msg, nil
	default:
		return nil, fmt.Errorf("unknown update op: %s", msg.Op)
	}
}

// Matches reports whether the message refers to the given record.
func (m *UpdateMessage) Matches(kind RecordKind, id string) bool {
	return m.Kind == kind && m.RecordID == id
}
