package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/linesmerrill/police-dispatch-api/api"
	"github.com/linesmerrill/police-dispatch-api/api/scheduler"
	"github.com/linesmerrill/police-dispatch-api/config"
	"github.com/linesmerrill/police-dispatch-api/databases"
	"github.com/linesmerrill/police-dispatch-api/dispatch"
	"github.com/linesmerrill/police-dispatch-api/models"
	"github.com/linesmerrill/police-dispatch-api/realtime"
	"github.com/linesmerrill/police-dispatch-api/validation"
)

const shutdownTimeout = 10 * time.Second

// App stores the router, db connection and the dispatch components, so they
// can be reused
type App struct {
	Router *mux.Router
	Config config.Config

	Guard       *api.Guard
	Metrics     *api.MetricsCollector
	Coordinator *dispatch.Coordinator
	Validator   *validation.Validator
	SocketIO    *realtime.SocketIO
	Hub         *realtime.Hub
	Relay       *realtime.RedisRelay
	Scheduler   *scheduler.Scheduler

	client   databases.ClientHelper
	dbHelper databases.DatabaseHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	r := mux.NewRouter()
	r.Use(a.Metrics.Middleware)

	// healthchex
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	call := Call{Coordinator: a.Coordinator, Validator: a.Validator}
	unit := Unit{DB: databases.NewUnitDatabase(a.dbHelper), Validator: a.Validator}
	metrics := MetricsHandler{Metrics: a.Metrics}

	authed := a.Guard.Middleware
	dispatchOnly := func(h http.HandlerFunc) http.Handler {
		return a.Guard.Middleware(a.Guard.DispatchMiddleware(h))
	}

	if a.SocketIO != nil {
		// browsers pass the bearer token as access_token on every poll
		r.Handle("/socket.io/", authed(a.SocketIO.Server()))
	}
	if a.Hub != nil {
		// the hub connection outlives any request timeout, so it hangs off
		// the root router
		r.Handle("/api/v1/ws/dispatch", authed(a.Hub)).Methods("GET")
	}

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(api.TimeoutMiddleware(a.Config.RequestTimeout))

	apiCreate.Handle("/auth/token", authed(http.HandlerFunc(a.Guard.CreateToken))).Methods("POST")
	apiCreate.Handle("/auth/logout", authed(http.HandlerFunc(a.Guard.RevokeToken))).Methods("DELETE")

	apiCreate.Handle("/911-calls", authed(http.HandlerFunc(call.CallsHandler))).Methods("GET")
	apiCreate.Handle("/911-calls", authed(http.HandlerFunc(call.CreateCallHandler))).Methods("POST")
	apiCreate.Handle("/911-calls/events/{call_id}", dispatchOnly(call.ConfirmCallHandler)).Methods("POST")
	apiCreate.Handle("/911-calls/{call_id}", authed(http.HandlerFunc(call.CallByIDHandler))).Methods("GET")
	apiCreate.Handle("/911-calls/{call_id}", dispatchOnly(call.UpdateCallHandler)).Methods("PUT")
	apiCreate.Handle("/911-calls/{call_id}", dispatchOnly(call.EndCallHandler)).Methods("DELETE")

	apiCreate.Handle("/leo", authed(http.HandlerFunc(unit.UnitsHandler))).Methods("GET")
	apiCreate.Handle("/leo", dispatchOnly(unit.CreateUnitHandler)).Methods("POST")
	apiCreate.Handle("/leo/{unit_id}", authed(http.HandlerFunc(unit.UnitByIDHandler))).Methods("GET")
	apiCreate.Handle("/leo/{unit_id}", dispatchOnly(unit.UpdateUnitHandler)).Methods("PUT")
	apiCreate.Handle("/leo/{unit_id}", dispatchOnly(unit.DeleteUnitHandler)).Methods("DELETE")

	apiCreate.Handle("/metrics/summary", dispatchOnly(metrics.SummaryHandler)).Methods("GET")
	apiCreate.Handle("/metrics/routes", dispatchOnly(metrics.RoutesHandler)).Methods("GET")

	return r
}

// Initialize is invoked by the serve command to connect with the database
// and build the dispatch components and router
func (a *App) Initialize(ctx context.Context) error {
	if a.Config.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().Errorw("failed to create new client", "error", err)
		return err
	}
	if err := client.Connect(); err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().Errorw("failed to connect to database", "error", err)
		return err
	}
	a.client = client
	a.dbHelper = databases.NewDatabase(&a.Config, client)
	zap.S().Info("police-dispatch-api has connected to the database")

	databases.SetQueryObserver(api.RecordDBQueryFromContext)

	a.Validator, err = validation.New()
	if err != nil {
		return err
	}
	a.Metrics = api.NewMetricsCollector(10000, time.Hour)
	a.Guard = api.NewGuard(ctx, databases.NewUserDatabase(a.dbHelper), a.Config.JWTSecret, a.Config.TokenTTL)

	a.SocketIO = realtime.NewSocketIO()
	a.Hub = realtime.NewHub()
	local := realtime.Fanout{a.SocketIO, a.Hub}

	store := dispatch.NewMongoStore(a.dbHelper, a.Config.Transactions)
	// the coordinator is wired after the scheduler so the relay can reuse
	// the scheduler's instance id as its origin
	a.Scheduler = scheduler.NewScheduler(a.Config.SweepSchedule, nil, databases.NewSchedulerLockDatabase(a.dbHelper))

	var emitter realtime.Emitter = local
	if a.Config.RedisURL != "" {
		a.Relay, err = realtime.NewRedisRelay(a.Config.RedisURL, a.Scheduler.InstanceID(), local)
		if err != nil {
			return err
		}
		emitter = a.Relay
	}

	a.Coordinator = dispatch.NewCoordinator(store, emitter)
	a.Scheduler.Sweeper = a.Coordinator
	if !a.Config.Transactions {
		zap.S().Warn("DB_TRANSACTIONS is off, call reassignment is not atomic")
	}

	a.Router = a.New()
	return nil
}

// Run serves HTTP and the realtime transports until ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.Config.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := a.Scheduler.Start(); err != nil {
		return err
	}
	defer a.Scheduler.Stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Metrics.Run(ctx)
		return nil
	})
	g.Go(func() error {
		if err := a.SocketIO.Serve(); err != nil {
			zap.S().Errorw("socket.io server error", "error", err)
		}
		return nil
	})
	if a.Relay != nil {
		g.Go(func() error {
			// a lost relay only costs cross instance notifications
			if err := a.Relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zap.S().Errorw("dispatch relay stopped", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		zap.S().Infow("police-dispatch-api is up and running",
			"port", a.Config.Port,
			"url", a.Config.BaseURL,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if cerr := a.SocketIO.Close(); cerr != nil {
			zap.S().Warnw("failed to close socket.io server", "error", cerr)
		}
		if a.Relay != nil {
			a.Relay.Close()
		}
		if derr := a.client.Disconnect(shutdownCtx); derr != nil {
			zap.S().Warnw("failed to disconnect from database", "error", derr)
		}
		return err
	})

	return g.Wait()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
