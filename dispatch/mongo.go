package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/police-dispatch-api/databases"
	"github.com/linesmerrill/police-dispatch-api/models"
)

// MongoStore is the Store backed by the calls, units and call_events collections
type MongoStore struct {
	Calls        databases.CallDatabase
	Units        databases.UnitDatabase
	Events       databases.EventDatabase
	Client       databases.ClientHelper
	Transactions bool
}

// NewMongoStore builds a store on db. transactions should be false only for a
// standalone mongod, which cannot run multi-document transactions.
func NewMongoStore(db databases.DatabaseHelper, transactions bool) *MongoStore {
	s := &MongoStore{
		Calls:        databases.NewCallDatabase(db),
		Units:        databases.NewUnitDatabase(db),
		Events:       databases.NewEventDatabase(db),
		Transactions: transactions,
	}
	if transactions {
		s.Client = db.Client()
	}
	return s
}

// callPipeline joins units and events onto the matched calls, newest first.
// Units reference calls by hex id, so the join key is the stringified _id.
func callPipeline(match bson.M) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "call.createdAt", Value: -1}}}},
		{{Key: "$addFields", Value: bson.M{"callKey": bson.M{"$toString": "$_id"}}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         databases.UnitCollection,
			"localField":   "callKey",
			"foreignField": "unit.currentCall",
			"as":           "assignedUnits",
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         databases.EventCollection,
			"localField":   "callKey",
			"foreignField": "callId",
			"as":           "events",
		}}},
		{{Key: "$project", Value: bson.M{"callKey": 0}}},
	}
}

func normalize(call *models.Call) {
	if call.AssignedUnits == nil {
		call.AssignedUnits = []models.Unit{}
	}
	if call.Events == nil {
		call.Events = []models.Event{}
	}
	sort.SliceStable(call.Events, func(i, j int) bool {
		return call.Events[i].CreatedAt.Before(call.Events[j].CreatedAt)
	})
}

// ListCalls returns every call, newest first
func (s *MongoStore) ListCalls(ctx context.Context) ([]models.Call, error) {
	calls, err := s.Calls.Aggregate(ctx, callPipeline(bson.M{}))
	if err != nil {
		return nil, err
	}
	if calls == nil {
		calls = []models.Call{}
	}
	for i := range calls {
		normalize(&calls[i])
	}
	return calls, nil
}

// FindCall returns the call with its units and events
func (s *MongoStore) FindCall(ctx context.Context, id string) (*models.Call, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCallNotFound, err)
	}
	calls, err := s.Calls.Aggregate(ctx, callPipeline(bson.M{"_id": oid}))
	if err != nil {
		return nil, err
	}
	if len(calls) == 0 {
		return nil, ErrCallNotFound
	}
	call := calls[0]
	normalize(&call)
	return &call, nil
}

// CallExists reports whether a call with id exists
func (s *MongoStore) CallExists(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	count, err := s.Calls.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// InsertCall stores a new call and returns its id
func (s *MongoStore) InsertCall(ctx context.Context, details models.CallDetails) (string, error) {
	oid := primitive.NewObjectID()
	newCall := bson.M{
		"_id":  oid,
		"call": details,
		"__v":  0,
	}
	if _, err := s.Calls.InsertOne(ctx, newCall); err != nil {
		return "", err
	}
	return oid.Hex(), nil
}

// UpdateCall writes the scalar call fields
func (s *MongoStore) UpdateCall(ctx context.Context, id string, update CallUpdate, at time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCallNotFound, err)
	}
	res, err := s.Calls.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{
			"call.location":    update.Location,
			"call.description": update.Description,
			"call.name":        update.Name,
			"call.updatedBy":   update.UpdatedBy,
			"call.updatedAt":   at,
		},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrCallNotFound
	}
	return nil
}

// ClearAssignments unassigns every unit currently on callID
func (s *MongoStore) ClearAssignments(ctx context.Context, callID string) (int64, error) {
	res, err := s.Units.UpdateMany(ctx,
		bson.M{"unit.currentCall": callID},
		bson.M{"$set": bson.M{"unit.currentCall": nil}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// AssignUnit points unitID at callID
func (s *MongoStore) AssignUnit(ctx context.Context, unitID, callID string) error {
	oid, err := primitive.ObjectIDFromHex(unitID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnitNotFound, err)
	}
	res, err := s.Units.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"unit.currentCall": callID}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUnitNotFound
	}
	return nil
}

// AssignedCallIDs lists the distinct calls units currently point at
func (s *MongoStore) AssignedCallIDs(ctx context.Context) ([]string, error) {
	values, err := s.Units.Distinct(ctx, "unit.currentCall", bson.M{"unit.currentCall": bson.M{"$ne": nil}})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// InsertEvent appends an event
func (s *MongoStore) InsertEvent(ctx context.Context, event models.Event) (*models.Event, error) {
	oid := primitive.NewObjectID()
	doc := bson.M{
		"_id":         oid,
		"callId":      event.CallID,
		"description": event.Description,
		"createdAt":   event.CreatedAt,
	}
	if _, err := s.Events.InsertOne(ctx, doc); err != nil {
		return nil, err
	}
	event.ID = oid.Hex()
	return &event, nil
}

// Transactional reports whether WithTransaction runs in a mongo transaction
func (s *MongoStore) Transactional() bool {
	return s.Transactions && s.Client != nil
}

// WithTransaction runs fn inside a session transaction. The driver retries
// fn on transient errors such as write conflicts with a concurrent
// reassignment of the same call.
func (s *MongoStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.Transactional() {
		return fn(ctx)
	}

	session, err := s.Client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
