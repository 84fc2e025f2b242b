package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/police-dispatch-api/databases/mocks"
	"github.com/linesmerrill/police-dispatch-api/dispatch"
	"github.com/linesmerrill/police-dispatch-api/models"
)

const validID = "608cafe595eb9dc05379b7f4"

type mongoFixture struct {
	db     *mocks.DatabaseHelper
	client *mocks.ClientHelper
	calls  *mocks.CollectionHelper
	units  *mocks.CollectionHelper
	events *mocks.CollectionHelper
}

func newMongoFixture() *mongoFixture {
	f := &mongoFixture{
		db:     &mocks.DatabaseHelper{},
		client: &mocks.ClientHelper{},
		calls:  &mocks.CollectionHelper{},
		units:  &mocks.CollectionHelper{},
		events: &mocks.CollectionHelper{},
	}
	f.db.On("Collection", "calls").Return(f.calls)
	f.db.On("Collection", "units").Return(f.units)
	f.db.On("Collection", "call_events").Return(f.events)
	f.db.On("Client").Return(f.client)
	return f
}

func TestMongoStore_FindCallInvalidID(t *testing.T) {
	f := newMongoFixture()
	store := dispatch.NewMongoStore(f.db, false)

	_, err := store.FindCall(context.Background(), "1234")

	assert.ErrorIs(t, err, dispatch.ErrCallNotFound)
	f.calls.AssertNotCalled(t, "Aggregate", mock.Anything, mock.Anything)
}

func TestMongoStore_FindCallMissing(t *testing.T) {
	f := newMongoFixture()
	cursor := &mocks.CursorHelper{}
	cursor.On("Decode", mock.Anything).Return(nil)
	f.calls.On("Aggregate", mock.Anything, mock.Anything).Return(cursor, nil)

	_, err := dispatch.NewMongoStore(f.db, false).FindCall(context.Background(), validID)

	assert.ErrorIs(t, err, dispatch.ErrCallNotFound)
}

func TestMongoStore_FindCallJoinsAndSortsEvents(t *testing.T) {
	f := newMongoFixture()
	cursor := &mocks.CursorHelper{}
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cursor.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*[]models.Call)
		*arg = []models.Call{{
			ID: validID,
			Events: []models.Event{
				{ID: "e2", CreatedAt: t0.Add(time.Minute)},
				{ID: "e1", CreatedAt: t0},
			},
		}}
	})

	var pipeline mongo.Pipeline
	f.calls.On("Aggregate", mock.Anything, mock.Anything).Return(cursor, nil).Run(func(args mock.Arguments) {
		pipeline = args.Get(1).(mongo.Pipeline)
	})

	call, err := dispatch.NewMongoStore(f.db, false).FindCall(context.Background(), validID)
	require.NoError(t, err)

	assert.Equal(t, "e1", call.Events[0].ID)
	assert.Equal(t, "e2", call.Events[1].ID)
	assert.NotNil(t, call.AssignedUnits)

	require.Len(t, pipeline, 6)
	assert.Equal(t, "$match", pipeline[0][0].Key)
	lookup := pipeline[3][0].Value.(bson.M)
	assert.Equal(t, "units", lookup["from"])
	assert.Equal(t, "unit.currentCall", lookup["foreignField"])
	assert.Equal(t, "assignedUnits", lookup["as"])
	lookup = pipeline[4][0].Value.(bson.M)
	assert.Equal(t, "call_events", lookup["from"])
}

func TestMongoStore_ListCallsError(t *testing.T) {
	f := newMongoFixture()
	f.calls.On("Aggregate", mock.Anything, mock.Anything).Return(nil, errors.New("mocked-error"))

	_, err := dispatch.NewMongoStore(f.db, false).ListCalls(context.Background())

	assert.EqualError(t, err, "mocked-error")
}

func TestMongoStore_ListCallsEmpty(t *testing.T) {
	f := newMongoFixture()
	cursor := &mocks.CursorHelper{}
	cursor.On("Decode", mock.Anything).Return(nil)
	f.calls.On("Aggregate", mock.Anything, mock.Anything).Return(cursor, nil)

	calls, err := dispatch.NewMongoStore(f.db, false).ListCalls(context.Background())

	assert.NoError(t, err)
	assert.NotNil(t, calls)
	assert.Empty(t, calls)
}

func TestMongoStore_CallExists(t *testing.T) {
	f := newMongoFixture()
	f.calls.On("CountDocuments", mock.Anything, mock.Anything).Return(int64(1), nil)
	store := dispatch.NewMongoStore(f.db, false)

	ok, err := store.CallExists(context.Background(), validID)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CallExists(context.Background(), "not-hex")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestMongoStore_UpdateCallNotMatched(t *testing.T) {
	f := newMongoFixture()
	f.calls.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).Return(&mongo.UpdateResult{MatchedCount: 0}, nil)

	err := dispatch.NewMongoStore(f.db, false).UpdateCall(context.Background(), validID, dispatch.CallUpdate{}, time.Now())

	assert.ErrorIs(t, err, dispatch.ErrCallNotFound)
}

func TestMongoStore_ClearAssignments(t *testing.T) {
	f := newMongoFixture()
	f.units.On("UpdateMany", mock.Anything,
		bson.M{"unit.currentCall": validID},
		bson.M{"$set": bson.M{"unit.currentCall": nil}},
	).Return(&mongo.UpdateResult{MatchedCount: 2, ModifiedCount: 2}, nil)

	n, err := dispatch.NewMongoStore(f.db, false).ClearAssignments(context.Background(), validID)

	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMongoStore_AssignUnit(t *testing.T) {
	f := newMongoFixture()
	f.units.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).Return(&mongo.UpdateResult{MatchedCount: 0}, nil).Once()
	f.units.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil).Once()
	store := dispatch.NewMongoStore(f.db, false)

	err := store.AssignUnit(context.Background(), validID, "call-1")
	assert.ErrorIs(t, err, dispatch.ErrUnitNotFound)

	err = store.AssignUnit(context.Background(), validID, "call-1")
	assert.NoError(t, err)

	err = store.AssignUnit(context.Background(), "bogus", "call-1")
	assert.ErrorIs(t, err, dispatch.ErrUnitNotFound)
}

func TestMongoStore_AssignedCallIDs(t *testing.T) {
	f := newMongoFixture()
	f.units.On("Distinct", mock.Anything, "unit.currentCall", mock.Anything).
		Return([]interface{}{"c1", nil, "", "c2"}, nil)

	ids, err := dispatch.NewMongoStore(f.db, false).AssignedCallIDs(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids)
}

func TestMongoStore_InsertEvent(t *testing.T) {
	f := newMongoFixture()
	insertResult := &mocks.InsertOneResultHelper{}
	f.events.On("InsertOne", mock.Anything, mock.Anything).Return(insertResult, nil)

	event, err := dispatch.NewMongoStore(f.db, false).InsertEvent(context.Background(), models.Event{
		CallID: validID, Description: "on scene",
	})

	require.NoError(t, err)
	assert.Len(t, event.ID, 24)
	assert.Equal(t, "on scene", event.Description)
}

func TestMongoStore_Transactional(t *testing.T) {
	f := newMongoFixture()

	assert.False(t, dispatch.NewMongoStore(f.db, false).Transactional())
	assert.True(t, dispatch.NewMongoStore(f.db, true).Transactional())
}

func TestMongoStore_WithTransactionSessionError(t *testing.T) {
	f := newMongoFixture()
	f.client.On("StartSession").Return(nil, errors.New("mocked-error"))
	called := false

	err := dispatch.NewMongoStore(f.db, true).WithTransaction(context.Background(), func(context.Context) error {
		called = true
		return nil
	})

	assert.EqualError(t, err, "failed to start session: mocked-error")
	assert.False(t, called)
}

// fakeSession runs the transaction callback once and records the outcome
type fakeSession struct {
	mongo.Session
	committed bool
	aborted   bool
	ended     bool
}

func (s *fakeSession) WithTransaction(ctx context.Context, fn func(mongo.SessionContext) (interface{}, error),
	_ ...*options.TransactionOptions) (interface{}, error) {
	res, err := fn(mongo.NewSessionContext(ctx, s))
	if err != nil {
		s.aborted = true
		return nil, err
	}
	s.committed = true
	return res, nil
}

func (s *fakeSession) EndSession(context.Context) {
	s.ended = true
}

func TestMongoStore_WithTransactionAbortsOnError(t *testing.T) {
	f := newMongoFixture()
	sess := &fakeSession{}
	f.client.On("StartSession").Return(sess, nil)
	fnErr := fmt.Errorf("failed to clear units: %w", dispatch.ErrCallNotFound)
	var inSession mongo.Session

	err := dispatch.NewMongoStore(f.db, true).WithTransaction(context.Background(), func(ctx context.Context) error {
		inSession = mongo.SessionFromContext(ctx)
		return fnErr
	})

	assert.ErrorIs(t, err, dispatch.ErrCallNotFound)
	assert.Same(t, sess, inSession)
	assert.True(t, sess.aborted)
	assert.False(t, sess.committed)
	assert.True(t, sess.ended)
}

func TestMongoStore_WithTransactionCommits(t *testing.T) {
	f := newMongoFixture()
	sess := &fakeSession{}
	f.client.On("StartSession").Return(sess, nil)
	called := false

	err := dispatch.NewMongoStore(f.db, true).WithTransaction(context.Background(), func(context.Context) error {
		called = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
	assert.True(t, sess.committed)
	assert.False(t, sess.aborted)
	assert.True(t, sess.ended)
}

func TestMongoStore_WithoutTransactionsRunsInline(t *testing.T) {
	f := newMongoFixture()
	called := false

	err := dispatch.NewMongoStore(f.db, false).WithTransaction(context.Background(), func(context.Context) error {
		called = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
	f.client.AssertNotCalled(t, "StartSession")
}
