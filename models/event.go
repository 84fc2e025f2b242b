package models

import "time"

// Event is an append-only log entry attached to a call
type Event struct {
	ID          string    `json:"_id" bson:"_id"`
	CallID      string    `json:"callId" bson:"callId"`
	Description string    `json:"description" bson:"description"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}
