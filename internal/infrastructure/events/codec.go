package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
)

// Message is the wire form of an event shared by Redis and WebSocket
// subscribers
type Message struct {
	Type      auction.EventType `json:"type"`
	Seq       uint64            `json:"seq"`
	ID        uuid.UUID         `json:"id"`
	AuctionID uint64            `json:"auction_id"`
	At        time.Time         `json:"at"`
	Payload   json.RawMessage   `json:"payload"`
}

// Encode renders ev as a Message
func Encode(ev auction.Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", ev.Type, err)
	}
	return json.Marshal(Message{
		Type:      ev.Type,
		Seq:       ev.Seq,
		ID:        ev.ID,
		AuctionID: ev.AuctionID(),
		At:        ev.At.UTC(),
		Payload:   payload,
	})
}

// Decode parses a Message back into an event with a pointer payload
func Decode(data []byte) (auction.Event, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return auction.Event{}, fmt.Errorf("unmarshal message: %w", err)
	}
	payload, err := auction.NewPayload(msg.Type)
	if err != nil {
		return auction.Event{}, err
	}
	if err := json.Unmarshal(msg.Payload, payload); err != nil {
		return auction.Event{}, fmt.Errorf("unmarshal %s payload: %w", msg.Type, err)
	}
	return auction.Event{
		Seq:     msg.Seq,
		ID:      msg.ID,
		Type:    msg.Type,
		At:      msg.At,
		Payload: payload,
	}, nil
}
