package databases

// go generate: mockery --name UnitDatabase

import (
	"context"

	"github.com/linesmerrill/police-dispatch-api/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UnitCollection is the mongo collection holding units
const UnitCollection = "units"

// UnitDatabase contains the methods to use with the unit database
type UnitDatabase interface {
	FindOne(context.Context, interface{}, ...*options.FindOneOptions) (*models.Unit, error)
	Find(context.Context, interface{}, ...*options.FindOptions) ([]models.Unit, error)
	InsertOne(context.Context, interface{}, ...*options.InsertOneOptions) (InsertOneResultHelper, error)
	UpdateOne(context.Context, interface{}, interface{}, ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	UpdateMany(context.Context, interface{}, interface{}, ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(context.Context, interface{}, ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	Distinct(context.Context, string, interface{}, ...*options.DistinctOptions) ([]interface{}, error)
}

type unitDatabase struct {
	db DatabaseHelper
}

// NewUnitDatabase initializes a new instance of unit database with the provided db connection
func NewUnitDatabase(db DatabaseHelper) UnitDatabase {
	return &unitDatabase{
		db: db,
	}
}

func (u *unitDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Unit, error) {
	unit := &models.Unit{}
	err := u.db.Collection(UnitCollection).FindOne(ctx, filter, opts...).Decode(&unit)
	if err != nil {
		return nil, err
	}
	return unit, nil
}

func (u *unitDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Unit, error) {
	var units []models.Unit
	cr, err := u.db.Collection(UnitCollection).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	err = cr.Decode(&units)
	if err != nil {
		return nil, err
	}
	return units, nil
}

func (u *unitDatabase) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (InsertOneResultHelper, error) {
	return u.db.Collection(UnitCollection).InsertOne(ctx, document, opts...)
}

func (u *unitDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return u.db.Collection(UnitCollection).UpdateOne(ctx, filter, update, opts...)
}

func (u *unitDatabase) UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return u.db.Collection(UnitCollection).UpdateMany(ctx, filter, update, opts...)
}

func (u *unitDatabase) DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	return u.db.Collection(UnitCollection).DeleteOne(ctx, filter, opts...)
}

func (u *unitDatabase) Distinct(ctx context.Context, fieldName string, filter interface{}, opts ...*options.DistinctOptions) ([]interface{}, error) {
	return u.db.Collection(UnitCollection).Distinct(ctx, fieldName, filter, opts...)
}
