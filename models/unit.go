package models

import "time"

// Unit holds the structure for the units collection in mongo. A unit is a
// field officer that can be assigned to at most one call at a time.
type Unit struct {
	ID      string      `json:"_id" bson:"_id"`
	Details UnitDetails `json:"unit" bson:"unit"`
	Version int32       `json:"__v" bson:"__v"`
}

// UnitDetails holds the structure for the inner unit structure as
// defined in the units collection in mongo
type UnitDetails struct {
	Name        string `json:"name" bson:"name"`
	Callsign    string `json:"callsign" bson:"callsign"`
	BadgeNumber string `json:"badgeNumber" bson:"badgeNumber"`
	Department  string `json:"department" bson:"department"`
	Division    string `json:"division" bson:"division"`
	Rank        string `json:"rank" bson:"rank"`
	CitizenID   string `json:"citizenId" bson:"citizenId"`
	UserID      string `json:"userId" bson:"userId"`
	// CurrentCall is only written by call reassignment and the assignment sweep
	CurrentCall *string   `json:"currentCall" bson:"currentCall"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// UnitRequest is the request body for creating or updating a unit
type UnitRequest struct {
	Name        string `json:"name"`
	Callsign    string `json:"callsign"`
	BadgeNumber string `json:"badgeNumber"`
	Department  string `json:"department"`
	Division    string `json:"division"`
	Rank        string `json:"rank"`
	CitizenID   string `json:"citizenId"`
}
