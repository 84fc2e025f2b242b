package databases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/police-dispatch-api/databases"
	"github.com/linesmerrill/police-dispatch-api/databases/mocks"
)

func TestSchedulerLock_Acquired(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&mongo.UpdateResult{UpsertedCount: 1}, nil)
	dbHelper.On("Collection", "scheduler_locks").Return(collectionHelper)

	ok, err := databases.NewSchedulerLockDatabase(dbHelper).TryAcquireLock(context.Background(), "sweep", "web.1", time.Minute)

	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestSchedulerLock_HeldElsewhere(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key error"}}}
	collectionHelper.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, dup)
	dbHelper.On("Collection", "scheduler_locks").Return(collectionHelper)

	ok, err := databases.NewSchedulerLockDatabase(dbHelper).TryAcquireLock(context.Background(), "sweep", "web.2", time.Minute)

	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestSchedulerLock_Error(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("mocked-error"))
	dbHelper.On("Collection", "scheduler_locks").Return(collectionHelper)

	ok, err := databases.NewSchedulerLockDatabase(dbHelper).TryAcquireLock(context.Background(), "sweep", "web.2", time.Minute)

	assert.EqualError(t, err, "mocked-error")
	assert.False(t, ok)
}
