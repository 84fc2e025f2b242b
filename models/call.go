package models

import "time"

// Call holds the structure for the 911 call collection in mongo. AssignedUnits
// and Events are never stored on the call document, they are joined in at
// read time from the units and call_events collections.
type Call struct {
	ID            string      `json:"_id" bson:"_id"`
	Details       CallDetails `json:"call" bson:"call"`
	AssignedUnits []Unit      `json:"assignedUnits" bson:"assignedUnits,omitempty"`
	Events        []Event     `json:"events" bson:"events,omitempty"`
	Version       int32       `json:"__v" bson:"__v"`
}

// CallDetails holds the structure for the inner call structure as
// defined in the call collection in mongo
type CallDetails struct {
	Location    string    `json:"location" bson:"location"`
	Description string    `json:"description" bson:"description"`
	Name        string    `json:"name" bson:"name"`
	UserID      string    `json:"userId" bson:"userId"`
	UpdatedBy   string    `json:"updatedBy,omitempty" bson:"updatedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// CallRequest is the request body for creating or updating a call
type CallRequest struct {
	Location      string   `json:"location"`
	Description   string   `json:"description"`
	Name          string   `json:"name"`
	AssignedUnits []string `json:"assignedUnits"`
}

// EndCallRequest is the request body for ending a call
type EndCallRequest struct {
	Description string `json:"description"`
}
