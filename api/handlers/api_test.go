package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shaj13/go-guardian/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/police-dispatch-api/api"
	"github.com/linesmerrill/police-dispatch-api/config"
	"github.com/linesmerrill/police-dispatch-api/databases/mocks"
	"github.com/linesmerrill/police-dispatch-api/dispatch"
	"github.com/linesmerrill/police-dispatch-api/dispatch/dispatchtest"
	"github.com/linesmerrill/police-dispatch-api/models"
	"github.com/linesmerrill/police-dispatch-api/realtime"
	"github.com/linesmerrill/police-dispatch-api/validation"
)

type testApp struct {
	App
	store  *dispatchtest.Store
	users  *mocks.UserDatabase
	events *realtime.Hub
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ta := &testApp{
		store:  dispatchtest.NewStore(true),
		users:  &mocks.UserDatabase{},
		events: realtime.NewHub(),
	}
	ta.Config = config.Config{RequestTimeout: 5 * time.Second, TokenTTL: time.Hour}
	ta.Metrics = api.NewMetricsCollector(100, time.Hour)
	ta.Guard = api.NewGuard(ctx, ta.users, "test-secret", time.Hour)
	ta.Validator = validation.MustNew()
	ta.Hub = ta.events
	ta.Coordinator = dispatch.NewCoordinator(ta.store, ta.events)
	ta.Router = ta.New()
	return ta
}

func (ta *testApp) token(t *testing.T, roles ...string) string {
	t.Helper()
	token, _, err := ta.Guard.IssueToken(auth.NewDefaultUser("officer@example.com", "user-1", roles, nil), time.Now())
	require.NoError(t, err)
	return token
}

func (ta *testApp) executeRequest(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ta.Router.ServeHTTP(rr, req)
	return rr
}

func checkResponseCode(t *testing.T, expected, actual int) {
	if expected != actual {
		t.Errorf("Expected response code %d. Got %d\n", expected, actual)
	}
}

func TestUnknownRoute(t *testing.T) {
	a := newTestApp(t)
	req, _ := http.NewRequest("GET", "/asdf", nil)
	response := a.executeRequest(req)

	checkResponseCode(t, http.StatusNotFound, response.Code)
}

func TestHealthCheckRoute(t *testing.T) {
	a := newTestApp(t)
	req, _ := http.NewRequest("GET", "/health", nil)
	response := a.executeRequest(req)

	checkResponseCode(t, http.StatusOK, response.Code)
	if !strings.Contains(response.Body.String(), "alive") {
		t.Errorf("Expected 'alive' in the reponse. Got '%s'", response.Body.String())
	}
}

func TestApp_CallsUnauthorized(t *testing.T) {
	a := newTestApp(t)
	req, _ := http.NewRequest("GET", "/api/v1/911-calls", nil)
	response := a.executeRequest(req)

	checkResponseCode(t, http.StatusUnauthorized, response.Code)
	var m models.ErrorResponse
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &m))
	assert.False(t, m.Success)
	assert.Equal(t, "unauthorized", m.Code)
}

func TestApp_CallsInvalidToken(t *testing.T) {
	a := newTestApp(t)
	req, _ := http.NewRequest("GET", "/api/v1/911-calls", nil)
	req.Header.Add("Authorization", "Bearer asdfasdf")
	response := a.executeRequest(req)

	checkResponseCode(t, http.StatusUnauthorized, response.Code)
}

func TestApp_CallsWithoutDispatchRole(t *testing.T) {
	a := newTestApp(t)
	token := a.token(t, "civilian")

	req, _ := http.NewRequest("GET", "/api/v1/911-calls", nil)
	req.Header.Add("Authorization", "Bearer "+token)
	response := a.executeRequest(req)
	checkResponseCode(t, http.StatusOK, response.Code)

	callID := a.store.AddCall(models.CallDetails{Name: "Robbery", Location: "Fleeca"})
	req, _ = http.NewRequest("PUT", "/api/v1/911-calls/"+callID,
		strings.NewReader(`{"location":"Fleeca","name":"Robbery","assignedUnits":[]}`))
	req.Header.Add("Authorization", "Bearer "+token)
	response = a.executeRequest(req)

	checkResponseCode(t, http.StatusForbidden, response.Code)
	assert.Contains(t, response.Body.String(), "dispatch role required")
}

func TestApp_ReassignThroughRouter(t *testing.T) {
	a := newTestApp(t)
	token := a.token(t, models.RoleDispatch)
	callID := a.store.AddCall(models.CallDetails{Name: "Robbery", Location: "Fleeca"})
	o1 := a.store.AddUnit(models.UnitDetails{Name: "O1"})
	o2 := a.store.AddUnit(models.UnitDetails{Name: "O2"})
	o3 := a.store.AddUnit(models.UnitDetails{Name: "O3"})

	put := func(units ...string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(models.CallRequest{Location: "Fleeca", Name: "Robbery", AssignedUnits: units})
		req, _ := http.NewRequest("PUT", "/api/v1/911-calls/"+callID, strings.NewReader(string(body)))
		req.Header.Add("Authorization", "Bearer "+token)
		return a.executeRequest(req)
	}

	checkResponseCode(t, http.StatusOK, put(o1, o2).Code)
	response := put(o3)

	checkResponseCode(t, http.StatusOK, response.Code)
	var call models.Call
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &call))
	require.Len(t, call.AssignedUnits, 1)
	assert.Equal(t, o3, call.AssignedUnits[0].ID)
	assert.Equal(t, "", a.store.CurrentCall(o1))
	assert.Equal(t, "", a.store.CurrentCall(o2))
	assert.Equal(t, callID, a.store.CurrentCall(o3))
}

func TestApp_EventRoutes(t *testing.T) {
	a := newTestApp(t)
	token := a.token(t, models.RoleDispatch)
	callID := a.store.AddCall(models.CallDetails{Name: "Robbery", Location: "Fleeca"})

	req, _ := http.NewRequest("POST", "/api/v1/911-calls/events/"+callID, nil)
	req.Header.Add("Authorization", "Bearer "+token)
	response := a.executeRequest(req)
	checkResponseCode(t, http.StatusOK, response.Code)
	assert.Equal(t, "true", response.Body.String())

	req, _ = http.NewRequest("DELETE", "/api/v1/911-calls/"+callID, strings.NewReader(`{"description":"Code 4"}`))
	req.Header.Add("Authorization", "Bearer "+token)
	response = a.executeRequest(req)
	checkResponseCode(t, http.StatusOK, response.Code)
	assert.Len(t, a.store.Events(), 1)

	req, _ = http.NewRequest("POST", "/api/v1/911-calls/events/608cafe595eb9dc05379b7f4", nil)
	req.Header.Add("Authorization", "Bearer "+token)
	response = a.executeRequest(req)
	checkResponseCode(t, http.StatusNotFound, response.Code)
}

func TestApp_TokenLifecycle(t *testing.T) {
	a := newTestApp(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	a.users.On("FindOne", mock.Anything, mock.Anything).Return(&models.User{
		ID: "user-1",
		Details: models.UserDetails{
			Email:    "dispatcher@example.com",
			Password: string(hash),
			Roles:    []string{models.RoleDispatch},
		},
	}, nil)

	req, _ := http.NewRequest("POST", "/api/v1/auth/token", nil)
	req.SetBasicAuth("dispatcher@example.com", "hunter22")
	response := a.executeRequest(req)
	checkResponseCode(t, http.StatusOK, response.Code)

	var issued struct {
		Token string   `json:"token"`
		ID    string   `json:"_id"`
		Roles []string `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &issued))
	assert.Equal(t, "user-1", issued.ID)
	assert.Equal(t, []string{models.RoleDispatch}, issued.Roles)

	req, _ = http.NewRequest("GET", "/api/v1/metrics/summary", nil)
	req.Header.Add("Authorization", "Bearer "+issued.Token)
	checkResponseCode(t, http.StatusOK, a.executeRequest(req).Code)

	req, _ = http.NewRequest("DELETE", "/api/v1/auth/logout", nil)
	req.Header.Add("Authorization", "Bearer "+issued.Token)
	checkResponseCode(t, http.StatusOK, a.executeRequest(req).Code)

	req, _ = http.NewRequest("GET", "/api/v1/911-calls", nil)
	req.Header.Add("Authorization", "Bearer "+issued.Token)
	checkResponseCode(t, http.StatusUnauthorized, a.executeRequest(req).Code)
}

func TestApp_TokenWrongPassword(t *testing.T) {
	a := newTestApp(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	a.users.On("FindOne", mock.Anything, mock.Anything).Return(&models.User{
		ID:      "user-1",
		Details: models.UserDetails{Email: "dispatcher@example.com", Password: string(hash)},
	}, nil)

	req, _ := http.NewRequest("POST", "/api/v1/auth/token", nil)
	req.SetBasicAuth("dispatcher@example.com", "wrong")
	response := a.executeRequest(req)

	checkResponseCode(t, http.StatusUnauthorized, response.Code)
}

func TestApp_SocketIORequiresAuth(t *testing.T) {
	a := newTestApp(t)
	a.SocketIO = realtime.NewSocketIO()
	t.Cleanup(func() { a.SocketIO.Close() })
	a.Router = a.New()

	for _, target := range []string{
		"/socket.io/?EIO=3&transport=polling",
		"/socket.io/?EIO=3&transport=polling&access_token=asdfasdf",
	} {
		req, _ := http.NewRequest("GET", target, nil)
		response := a.executeRequest(req)

		checkResponseCode(t, http.StatusUnauthorized, response.Code)
		assert.NotContains(t, response.Body.String(), "sid")
	}
}

func TestApp_DispatchWebsocketRequiresAuth(t *testing.T) {
	a := newTestApp(t)
	req, _ := http.NewRequest("GET", "/api/v1/ws/dispatch", nil)
	response := a.executeRequest(req)

	checkResponseCode(t, http.StatusUnauthorized, response.Code)
	assert.Equal(t, 0, a.events.Len())
}

func TestApp_UnitRoutesRequireDispatch(t *testing.T) {
	a := newTestApp(t)
	token := a.token(t)

	req, _ := http.NewRequest("POST", "/api/v1/leo", strings.NewReader(`{"name":"Adam-12","department":"LSPD","division":"Patrol"}`))
	req.Header.Add("Authorization", "Bearer "+token)
	response := a.executeRequest(req)

	checkResponseCode(t, http.StatusForbidden, response.Code)
}
