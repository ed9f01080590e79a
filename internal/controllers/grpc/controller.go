// Package grpc serves calibration, template matching and peak extraction over gRPC.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/chrissnell/fragsize/internal/calibration"
	"github.com/chrissnell/fragsize/internal/extract"
	"github.com/chrissnell/fragsize/internal/grpcutil"
	"github.com/chrissnell/fragsize/internal/log"
	"github.com/chrissnell/fragsize/internal/trace"
	"github.com/chrissnell/fragsize/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// Controller represents the gRPC controller
type Controller struct {
	ctx    context.Context
	wg     *sync.WaitGroup
	cfg    *config.ConfigData
	Server *grpc.Server
	health *health.Server
	logger *zap.SugaredLogger
}

// NewController creates a new gRPC controller instance. TLS is terminated by the listener the
// controller is served on.
func NewController(ctx context.Context, wg *sync.WaitGroup, cfg *config.ConfigData, logger *zap.SugaredLogger) *Controller {
	if logger == nil {
		logger = log.GetSugaredLogger()
	}

	ctrl := &Controller{
		ctx:    ctx,
		wg:     wg,
		cfg:    cfg,
		health: health.NewServer(),
		logger: logger,
	}

	ctrl.Server = grpc.NewServer(grpc.ChainUnaryInterceptor(ctrl.logRequests))
	RegisterCalibrationServer(ctrl.Server, ctrl)
	healthpb.RegisterHealthServer(ctrl.Server, ctrl.health)
	reflection.Register(ctrl.Server)

	ctrl.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return ctrl
}

// Serve serves gRPC on l until the controller's context is cancelled
func (c *Controller) Serve(l net.Listener) error {
	c.wg.Add(1)
	defer c.wg.Done()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("Stopping gRPC controller...")
		c.health.Shutdown()
		c.Server.GracefulStop()
	}()

	c.logger.Infof("gRPC controller listening on %s", l.Addr())
	if err := c.Server.Serve(l); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC controller serve error: %w", err)
	}
	return nil
}

func (c *Controller) logRequests(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		c.logger.Debugw("grpc request failed", "method", info.FullMethod, "code", status.Code(err).String(), "error", err)
	} else {
		c.logger.Debugw("grpc request", "method", info.FullMethod)
	}
	return resp, err
}

// Calibrate fits a calibration through the request's points
func (c *Controller) Calibrate(ctx context.Context, req *CalibrateRequest) (*CalibrateResponse, error) {
	cal, err := calibration.BuildPoints(req.Points)
	if err != nil {
		return nil, grpcutil.Status(err)
	}

	resp := &CalibrateResponse{Kind: cal.Kind, Points: cal.Points}
	for _, scan := range req.Scans {
		resp.Sizes = append(resp.Sizes, cal.Size(scan))
	}
	return resp, nil
}

// Match applies a template to detected marker peaks
func (c *Controller) Match(ctx context.Context, req *MatchRequest) (*MatchResponse, error) {
	tolerance := req.Tolerance
	if tolerance < 0 {
		return nil, status.Errorf(codes.InvalidArgument, "tolerance %g is negative", tolerance)
	}
	if tolerance == 0 {
		tolerance = c.cfg.Detection.TemplateTolerance
	}

	a, report := calibration.MatchWithReport(req.Template, req.Detected, tolerance)
	return &MatchResponse{Assignment: a.Points(), Report: report}, nil
}

// Extract sizes the peaks of the request's traces with the given calibrations. A sample whose
// points do not form a calibration is reported in Skipped with the fit error.
func (c *Controller) Extract(ctx context.Context, req *ExtractRequest) (*ExtractResponse, error) {
	provider := trace.NewMemoryProvider()
	names := make([]string, 0, len(req.Traces))
	for sample := range req.Traces {
		names = append(names, sample)
	}
	sort.Strings(names)
	for _, sample := range names {
		for channel, data := range req.Traces[sample] {
			provider.Add(sample, channel, data)
		}
	}

	cals := make(extract.Calibrations, len(req.Calibrations))
	failed := make(map[string]error)
	for sample, pts := range req.Calibrations {
		if pts == nil {
			cals[sample] = nil
			continue
		}
		cal, err := calibration.BuildPoints(pts)
		if err != nil {
			c.logger.Debugf("skipping %s: %v", sample, err)
			cals[sample] = nil
			failed[sample] = fmt.Errorf("failed to calibrate %s: %w", sample, err)
			continue
		}
		cals[sample] = cal
	}

	r := extract.Request{Samples: req.Samples, Channels: req.Channels, MinHeight: c.cfg.Extraction.MinHeight}
	if len(r.Samples) == 0 {
		r.Samples = names
	}
	if len(r.Channels) == 0 {
		r.Channels = c.cfg.SampleChannels
	}
	if len(r.Channels) == 0 {
		r.Channels = trace.SelectSamples(trace.AllChannels(provider))
	}
	if req.MinHeight != nil {
		r.MinHeight = *req.MinHeight
	}

	e := extract.New(provider, cals, c.logger).WithConfig(c.cfg.Extraction)
	e.BaselineChunks = c.cfg.Detection.BaselineChunks
	res, err := e.Extract(ctx, r)
	if err != nil {
		return nil, grpcutil.Status(err)
	}
	return &ExtractResponse{Records: res.Records, Skipped: calibrationSkips(res.Skipped, failed)}, nil
}

// calibrationSkips swaps the no-calibration skip of each sample in failed for its fit error
func calibrationSkips(skipped []extract.Skip, failed map[string]error) []extract.Skip {
	for i, s := range skipped {
		if err, ok := failed[s.Sample]; ok && s.Channel == "" && errors.Is(s.Reason, extract.ErrNoCalibration) {
			skipped[i] = extract.Skip{Sample: s.Sample, Reason: err, Message: err.Error()}
		}
	}
	return skipped
}
