package databases

// go generate: mockery --name EventDatabase

import (
	"context"

	"github.com/linesmerrill/police-dispatch-api/models"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EventCollection is the mongo collection holding call events
const EventCollection = "call_events"

// EventDatabase contains the methods to use with the call event database.
// Events are append only, so there is no update or delete.
type EventDatabase interface {
	Find(context.Context, interface{}, ...*options.FindOptions) ([]models.Event, error)
	InsertOne(context.Context, interface{}, ...*options.InsertOneOptions) (InsertOneResultHelper, error)
}

type eventDatabase struct {
	db DatabaseHelper
}

// NewEventDatabase initializes a new instance of event database with the provided db connection
func NewEventDatabase(db DatabaseHelper) EventDatabase {
	return &eventDatabase{
		db: db,
	}
}

func (e *eventDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Event, error) {
	var events []models.Event
	cr, err := e.db.Collection(EventCollection).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	err = cr.Decode(&events)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (e *eventDatabase) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (InsertOneResultHelper, error) {
	return e.db.Collection(EventCollection).InsertOne(ctx, document, opts...)
}
