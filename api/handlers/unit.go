package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/police-dispatch-api/api"
	"github.com/linesmerrill/police-dispatch-api/databases"
	"github.com/linesmerrill/police-dispatch-api/dispatch"
	"github.com/linesmerrill/police-dispatch-api/models"
	"github.com/linesmerrill/police-dispatch-api/validation"
)

// Unit exported for testing purposes
type Unit struct {
	DB        databases.UnitDatabase
	Validator *validation.Validator
}

func unitObjectID(r *http.Request) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["unit_id"])
	if err != nil {
		return id, fmt.Errorf("%w: %v", dispatch.ErrUnitNotFound, err)
	}
	return id, nil
}

func unitLookupError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return dispatch.ErrUnitNotFound
	}
	return err
}

// UnitsHandler returns a page of units, optionally filtered by department
func (u Unit) UnitsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	filter := bson.M{}
	if department := r.URL.Query().Get("department"); department != "" {
		filter["unit.department"] = department
	}

	opts := databases.PaginatedFindOptions(limit, page).SetSort(bson.D{{Key: "unit.name", Value: 1}})
	units, err := u.DB.Find(r.Context(), filter, opts)
	if err != nil {
		writeError("failed to get units", w, r, err)
		return
	}
	// the frontend expects an array even when there are no units
	if len(units) == 0 {
		units = []models.Unit{}
	}
	writeJSON(w, http.StatusOK, units)
}

// UnitByIDHandler returns a unit by ID
func (u Unit) UnitByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := unitObjectID(r)
	if err != nil {
		writeError("failed to get objectID from Hex", w, r, err)
		return
	}

	unit, err := u.DB.FindOne(r.Context(), bson.M{"_id": id})
	if err != nil {
		writeError("failed to get unit by ID", w, r, unitLookupError(err))
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

// CreateUnitHandler adds a unit that is not assigned to any call
func (u Unit) CreateUnitHandler(w http.ResponseWriter, r *http.Request) {
	var req models.UnitRequest
	if err := decodeBody(u.Validator, r, validation.Unit, &req); err != nil {
		writeError("failed to validate unit", w, r, err)
		return
	}

	now := time.Now().UTC()
	id := primitive.NewObjectID()
	details := models.UnitDetails{
		Name:        req.Name,
		Callsign:    req.Callsign,
		BadgeNumber: req.BadgeNumber,
		Department:  req.Department,
		Division:    req.Division,
		Rank:        req.Rank,
		CitizenID:   req.CitizenID,
		UserID:      api.UserID(r),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := u.DB.InsertOne(r.Context(), bson.M{"_id": id, "unit": details, "__v": 0}); err != nil {
		writeError("failed to insert unit", w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.Unit{ID: id.Hex(), Details: details})
}

// UpdateUnitHandler rewrites a unit's display attributes. Assignment is
// only changed through call updates so currentCall is left alone.
func (u Unit) UpdateUnitHandler(w http.ResponseWriter, r *http.Request) {
	id, err := unitObjectID(r)
	if err != nil {
		writeError("failed to get objectID from Hex", w, r, err)
		return
	}

	var req models.UnitRequest
	if err := decodeBody(u.Validator, r, validation.Unit, &req); err != nil {
		writeError("failed to validate unit", w, r, err)
		return
	}

	res, err := u.DB.UpdateOne(r.Context(), bson.M{"_id": id}, bson.M{"$set": bson.M{
		"unit.name":        req.Name,
		"unit.callsign":    req.Callsign,
		"unit.badgeNumber": req.BadgeNumber,
		"unit.department":  req.Department,
		"unit.division":    req.Division,
		"unit.rank":        req.Rank,
		"unit.citizenId":   req.CitizenID,
		"unit.updatedAt":   time.Now().UTC(),
	}})
	if err != nil {
		writeError("failed to update unit", w, r, err)
		return
	}
	if res.MatchedCount == 0 {
		writeError("failed to update unit", w, r, dispatch.ErrUnitNotFound)
		return
	}

	unit, err := u.DB.FindOne(r.Context(), bson.M{"_id": id})
	if err != nil {
		writeError("failed to get unit by ID", w, r, unitLookupError(err))
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

// DeleteUnitHandler removes a unit. A deleted unit drops out of any call it
// was assigned to since assignment lives on the unit.
func (u Unit) DeleteUnitHandler(w http.ResponseWriter, r *http.Request) {
	id, err := unitObjectID(r)
	if err != nil {
		writeError("failed to get objectID from Hex", w, r, err)
		return
	}

	res, err := u.DB.DeleteOne(r.Context(), bson.M{"_id": id})
	if err != nil {
		writeError("failed to delete unit", w, r, err)
		return
	}
	if res.DeletedCount == 0 {
		writeError("failed to delete unit", w, r, dispatch.ErrUnitNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
