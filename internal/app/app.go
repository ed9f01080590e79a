package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chrissnell/fragsize/internal/controllers/grpc"
	"github.com/chrissnell/fragsize/internal/controllers/restserver"
	"github.com/chrissnell/fragsize/internal/database"
	"github.com/chrissnell/fragsize/internal/session"
	"github.com/chrissnell/fragsize/pkg/config"
	"github.com/soheilhy/cmux"
	"go.uber.org/zap"
)

// App represents the fragsize server
type App struct {
	cfg    *config.ConfigData
	logger *zap.SugaredLogger
}

// New creates a new application instance
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Run serves the REST API and the gRPC service on one listener and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := session.OpenStore(a.cfg.Storage.SessionDB, a.logger)
	if err != nil {
		return fmt.Errorf("error opening session store: %w", err)
	}
	defer store.Close()

	var archive *database.Client
	if a.cfg.Storage.Archive != nil && a.cfg.Storage.Archive.ConnectionString != "" {
		archive = database.NewClient(a.cfg.Storage.Archive.ConnectionString, a.logger)
		if err := archive.Connect(); err != nil {
			return fmt.Errorf("error connecting to run archive: %w", err)
		}
		defer archive.Close()
	}

	rest, err := restserver.NewController(ctx, &wg, a.cfg, restserver.Deps{Store: store, Archive: archive}, a.logger)
	if err != nil {
		return err
	}
	rpc := grpc.NewController(ctx, &wg, a.cfg, a.logger)

	l, err := a.listen()
	if err != nil {
		return err
	}

	m := cmux.New(l)
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldPrefixSendSettings("content-type", "application/grpc"))
	httpL := m.Match(cmux.Any())

	errs := make(chan error, 3)
	go func() { errs <- rpc.Serve(grpcL) }()
	go func() { errs <- rest.Serve(httpL) }()
	go func() {
		if err := m.Serve(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs <- fmt.Errorf("listener error: %w", err)
		}
	}()

	a.logger.Infof("fragsize listening on %s", l.Addr())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	var runErr error
	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	case runErr = <-errs:
		if runErr != nil {
			a.logger.Errorf("server failed: %v", runErr)
		}
	}

	cancel()
	m.Close()

	a.logger.Info("waiting for servers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return runErr
}

func (a *App) listen() (net.Listener, error) {
	addr := fmt.Sprintf("%v:%v", a.cfg.Server.ListenAddr, a.cfg.Server.Port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("error listening on %s: %w", addr, err)
	}

	if a.cfg.Server.Cert == "" {
		return l, nil
	}

	cert, err := tls.LoadX509KeyPair(a.cfg.Server.Cert, a.cfg.Server.Key)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("error loading TLS key pair: %w", err)
	}
	return tls.NewListener(l, &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2", "http/1.1"},
	}), nil
}
