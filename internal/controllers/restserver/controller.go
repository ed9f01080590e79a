// Package restserver serves the calibration, session and extraction API over HTTP.
package restserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/fragsize/internal/database"
	"github.com/chrissnell/fragsize/internal/ladder"
	"github.com/chrissnell/fragsize/internal/log"
	"github.com/chrissnell/fragsize/internal/session"
	"github.com/chrissnell/fragsize/pkg/config"
	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Deps are the optional collaborators of the controller
type Deps struct {
	// Ladders defaults to the built-in table merged with the configured ladders
	Ladders *ladder.Table
	// Store persists sessions; nil keeps them in memory only
	Store *session.Store
	// Archive stores extraction runs; nil disables archiving
	Archive *database.Client
}

// Controller represents the REST server controller
type Controller struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	cfg      *config.ConfigData
	Server   http.Server
	ladders  *ladder.Table
	sessions *Registry
	archive  *database.Client
	logger   *zap.SugaredLogger
	handlers *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, cfg *config.ConfigData, deps Deps, logger *zap.SugaredLogger) (*Controller, error) {
	if logger == nil {
		logger = log.GetSugaredLogger()
	}

	ctrl := &Controller{
		ctx:      ctx,
		wg:       wg,
		cfg:      cfg,
		ladders:  deps.Ladders,
		sessions: NewRegistry(deps.Store, logger),
		archive:  deps.Archive,
		logger:   logger,
	}

	if ctrl.ladders == nil {
		overrides := make([]ladder.Ladder, 0, len(cfg.Ladders))
		for _, l := range cfg.Ladders {
			overrides = append(overrides, ladder.Ladder{Name: l.Name, Sizes: l.Sizes})
		}
		table, err := ladder.New(overrides)
		if err != nil {
			return nil, fmt.Errorf("error loading ladders: %w", err)
		}
		ctrl.ladders = table
	}

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", cfg.Server.ListenAddr, cfg.Server.Port)
	ctrl.Server.Handler = ctrl.Handler()
	ctrl.Server.ErrorLog = zap.NewStdLog(logger.Desugar())
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// Handler returns the API handler with its middleware
func (c *Controller) Handler() http.Handler {
	router := c.setupRouter()

	recovery := ghandlers.RecoveryHandler(
		ghandlers.RecoveryLogger(zap.NewStdLog(c.logger.Desugar())),
	)
	cors := ghandlers.CORS(
		ghandlers.AllowedOrigins([]string{"*"}),
		ghandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		ghandlers.AllowedHeaders([]string{"Content-Type", "Accept"}),
	)
	return cors(recovery(router))
}

// Serve serves the API on l until the controller's context is cancelled
func (c *Controller) Serve(l net.Listener) error {
	c.wg.Add(1)
	defer c.wg.Done()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("Shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	c.logger.Infof("REST server listening on %s", l.Addr())
	if err := c.Server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("REST server error: %w", err)
	}
	return nil
}

// Sessions returns the session registry
func (c *Controller) Sessions() *Registry {
	return c.sessions
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Stateless operations
	api.HandleFunc("/ladders", c.handlers.GetLadders).Methods("GET")
	api.HandleFunc("/detect", c.handlers.Detect).Methods("POST")
	api.HandleFunc("/match", c.handlers.Match).Methods("POST")
	api.HandleFunc("/calibrate", c.handlers.Calibrate).Methods("POST")
	api.HandleFunc("/formula", c.handlers.EvaluateFormula).Methods("POST")
	api.HandleFunc("/extract", c.handlers.Extract).Methods("POST")

	// Sessions
	api.HandleFunc("/sessions", c.handlers.ListSessions).Methods("GET")
	api.HandleFunc("/sessions", c.handlers.CreateSession).Methods("POST")
	api.HandleFunc("/sessions/stored", c.handlers.ListStoredSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", c.handlers.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", c.handlers.DeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/state", c.handlers.GetState).Methods("GET")
	api.HandleFunc("/sessions/{id}/redetect", c.handlers.Redetect).Methods("POST")
	api.HandleFunc("/sessions/{id}/template", c.handlers.GetTemplate).Methods("GET")
	api.HandleFunc("/sessions/{id}/template", c.handlers.PutTemplate).Methods("PUT")
	api.HandleFunc("/sessions/{id}/template", c.handlers.DeleteTemplate).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/export", c.handlers.Export).Methods("GET")
	api.HandleFunc("/sessions/{id}/samples/{sample}/series/{channel}", c.handlers.GetSeries).Methods("GET")
	api.HandleFunc("/sessions/{id}/samples/{sample}/{action:begin|assign|unassign|clear|commit|skip}", c.handlers.SampleAction).Methods("POST")

	// Archive
	api.HandleFunc("/runs", c.handlers.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", c.handlers.GetRun).Methods("GET")

	return router
}
