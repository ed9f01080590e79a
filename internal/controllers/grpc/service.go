package grpc

import (
	"context"

	"github.com/chrissnell/fragsize/internal/calibration"
	"github.com/chrissnell/fragsize/internal/extract"
	"github.com/chrissnell/fragsize/internal/grpcutil"
	"google.golang.org/grpc"
)

// ServiceName is the full gRPC service name
const ServiceName = "fragsize.v1.Calibration"

// CalibrateRequest asks for a calibration through Points, evaluated at Scans
type CalibrateRequest struct {
	Points []calibration.Point `json:"points"`
	Scans  []float64           `json:"scans,omitempty"`
}

type CalibrateResponse struct {
	Kind   calibration.Kind    `json:"kind"`
	Points []calibration.Point `json:"points"`
	Sizes  []float64           `json:"sizes,omitempty"`
}

// MatchRequest applies Template to Detected marker peaks; a zero Tolerance uses the configured one
type MatchRequest struct {
	Template  calibration.Template `json:"template"`
	Detected  []int                `json:"detected"`
	Tolerance float64              `json:"tolerance,omitempty"`
}

type MatchResponse struct {
	Assignment []calibration.Point     `json:"assignment"`
	Report     calibration.MatchReport `json:"report"`
}

// ExtractRequest carries the traces and per-sample calibration points to extract from. Samples
// defaults to every sample in Traces, sorted; Channels to the configured sample channels.
type ExtractRequest struct {
	Traces       map[string]map[string][]float64 `json:"traces"`
	Calibrations map[string][]calibration.Point  `json:"calibrations"`
	Samples      []string                        `json:"samples,omitempty"`
	Channels     []string                        `json:"channels,omitempty"`
	MinHeight    *float64                        `json:"min_height,omitempty"`
}

type ExtractResponse struct {
	Records []extract.Record `json:"records"`
	Skipped []extract.Skip   `json:"skipped"`
}

// CalibrationServer is the server API of the calibration service
type CalibrationServer interface {
	Calibrate(context.Context, *CalibrateRequest) (*CalibrateResponse, error)
	Match(context.Context, *MatchRequest) (*MatchResponse, error)
	Extract(context.Context, *ExtractRequest) (*ExtractResponse, error)
}

// ServiceDesc describes the calibration service for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CalibrationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Calibrate", Handler: calibrateHandler},
		{MethodName: "Match", Handler: matchHandler},
		{MethodName: "Extract", Handler: extractHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterCalibrationServer registers srv with s
func RegisterCalibrationServer(s grpc.ServiceRegistrar, srv CalibrationServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func calibrateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CalibrateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalibrationServer).Calibrate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Calibrate"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(CalibrationServer).Calibrate(ctx, req.(*CalibrateRequest))
	})
}

func matchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(MatchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalibrationServer).Match(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Match"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(CalibrationServer).Match(ctx, req.(*MatchRequest))
	})
}

func extractHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ExtractRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CalibrationServer).Extract(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Extract"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(CalibrationServer).Extract(ctx, req.(*ExtractRequest))
	})
}

// Client calls the calibration service with the JSON codec
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpcutil.CallOption()}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *Client) Calibrate(ctx context.Context, in *CalibrateRequest, opts ...grpc.CallOption) (*CalibrateResponse, error) {
	out := new(CalibrateResponse)
	if err := c.invoke(ctx, "Calibrate", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Match(ctx context.Context, in *MatchRequest, opts ...grpc.CallOption) (*MatchResponse, error) {
	out := new(MatchResponse)
	if err := c.invoke(ctx, "Match", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Extract(ctx context.Context, in *ExtractRequest, opts ...grpc.CallOption) (*ExtractResponse, error) {
	out := new(ExtractResponse)
	if err := c.invoke(ctx, "Extract", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
