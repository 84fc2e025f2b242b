package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/linesmerrill/police-dispatch-api/api"
	"github.com/linesmerrill/police-dispatch-api/config"
	"github.com/linesmerrill/police-dispatch-api/dispatch"
	"github.com/linesmerrill/police-dispatch-api/logging"
	"github.com/linesmerrill/police-dispatch-api/models"
	"github.com/linesmerrill/police-dispatch-api/validation"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// CallCoordinator is the dispatch behaviour the call routes need
type CallCoordinator interface {
	ListCalls(ctx context.Context) ([]models.Call, error)
	FindCall(ctx context.Context, id string) (*models.Call, error)
	CreateCall(ctx context.Context, req models.CallRequest, creatorID string) (*models.Call, error)
	ReassignUnits(ctx context.Context, callID string, update dispatch.CallUpdate, unitIDs []string) (*models.Call, error)
	EndCall(ctx context.Context, callID, description string) (*models.Event, error)
	ConfirmCall(ctx context.Context, callID string) (bool, error)
}

// Call exported for testing purposes
type Call struct {
	Coordinator CallCoordinator
	Validator   *validation.Validator
}

// CallsHandler returns all 911 calls, newest first, with their units and events
func (c Call) CallsHandler(w http.ResponseWriter, r *http.Request) {
	calls, err := c.Coordinator.ListCalls(r.Context())
	if err != nil {
		writeError("failed to get calls", w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

// CallByIDHandler returns a 911 call by ID
func (c Call) CallByIDHandler(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["call_id"]

	call, err := c.Coordinator.FindCall(r.Context(), callID)
	if err != nil {
		writeError("failed to get call by ID", w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// CreateCallHandler creates a 911 call owned by the caller
func (c Call) CreateCallHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CallRequest
	if err := c.decode(r, validation.Call, &req); err != nil {
		writeError("failed to validate call", w, r, err)
		return
	}

	call, err := c.Coordinator.CreateCall(r.Context(), req, api.UserID(r))
	if err != nil {
		writeError("failed to create call", w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

// UpdateCallHandler writes the call fields and makes assignedUnits the
// exact set of units on the call
func (c Call) UpdateCallHandler(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["call_id"]

	var req models.CallRequest
	if err := c.decode(r, validation.Call, &req); err != nil {
		writeError("failed to validate call", w, r, err)
		return
	}

	call, err := c.Coordinator.ReassignUnits(r.Context(), callID, dispatch.CallUpdate{
		Location:    req.Location,
		Description: req.Description,
		Name:        req.Name,
		UpdatedBy:   api.UserID(r),
	}, req.AssignedUnits)
	if err != nil {
		writeError("failed to update call", w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// EndCallHandler records the closing event on a call. The call is kept.
func (c Call) EndCallHandler(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["call_id"]

	var req models.EndCallRequest
	if err := c.decode(r, validation.EndCall, &req); err != nil {
		writeError("failed to validate end call", w, r, err)
		return
	}

	event, err := c.Coordinator.EndCall(r.Context(), callID, req.Description)
	if err != nil {
		writeError("failed to end call", w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// ConfirmCallHandler answers true when the call exists
func (c Call) ConfirmCallHandler(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["call_id"]

	ok, err := c.Coordinator.ConfirmCall(r.Context(), callID)
	if err != nil {
		writeError("failed to find call", w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

func (c Call) decode(r *http.Request, schema string, dst interface{}) error {
	return decodeBody(c.Validator, r, schema, dst)
}

func decodeBody(v *validation.Validator, r *http.Request, schema string, dst interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return &validation.Error{Schema: schema, Reason: err.Error()}
	}
	return v.Decode(schema, body, dst)
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case validation.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrUnitUpdateFailed):
		// an unknown unit inside a reassignment is not a missing resource
		return http.StatusInternalServerError
	case errors.Is(err, dispatch.ErrCallNotFound), errors.Is(err, dispatch.ErrUnitNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(message string, w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	w.Header().Set("Content-Type", "application/json")
	if status < http.StatusInternalServerError {
		logging.FromContext(r.Context()).Infow(message, "status", status, "error", err)
		w.WriteHeader(status)
		b, _ := json.Marshal(map[string]string{"response": message + ", " + err.Error()})
		w.Write(b)
		return
	}
	config.ErrorStatus(message, status, w, err)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
