package grpc

import (
	"context"
	"math"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/chrissnell/fragsize/internal/calibration"
	"github.com/chrissnell/fragsize/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func gaussians(n int, centers []int, height float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		for _, c := range centers {
			d := float64(i - c)
			out[i] += height * math.Exp(-d*d/(2*4*4))
		}
	}
	return out
}

func startServer(t *testing.T) *grpc.ClientConn {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	ctrl := NewController(ctx, &wg, config.Defaults(), zap.NewNop().Sugar())

	l := bufconn.Listen(1 << 20)
	go ctrl.Serve(l)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return l.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		cancel()
		wg.Wait()
	})
	return conn
}

func TestCalibrate(t *testing.T) {
	client := NewClient(startServer(t))

	resp, err := client.Calibrate(context.Background(), &CalibrateRequest{
		Points: []calibration.Point{{Scan: 300, SizeBP: 150}, {Scan: 100, SizeBP: 50}, {Scan: 200, SizeBP: 100}},
		Scans:  []float64{250},
	})
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if resp.Kind != calibration.Quadratic || resp.Points[0].Scan != 100 || math.Abs(resp.Sizes[0]-125) > 1e-6 {
		t.Errorf("unexpected response %+v", resp)
	}

	_, err = client.Calibrate(context.Background(), &CalibrateRequest{
		Points: []calibration.Point{{Scan: 200, SizeBP: 50}, {Scan: 100, SizeBP: 100}},
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestMatch(t *testing.T) {
	client := NewClient(startServer(t))

	resp, err := client.Match(context.Background(), &MatchRequest{
		Template: calibration.Template{50: 100, 100: 200, 150: 300},
		Detected: []int{102, 198, 305, 500},
	})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if resp.Report.Matched != 3 || resp.Report.Template != 3 || len(resp.Assignment) != 3 {
		t.Errorf("unexpected response %+v", resp)
	}

	_, err = client.Match(context.Background(), &MatchRequest{Tolerance: -1})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestExtract(t *testing.T) {
	negative := -1.0
	client := NewClient(startServer(t))

	resp, err := client.Extract(context.Background(), &ExtractRequest{
		Traces: map[string]map[string][]float64{
			"s1": {"DATA9": gaussians(1000, []int{300, 600}, 500)},
			"s2": {"DATA9": gaussians(1000, []int{200}, 500)},
		},
		Calibrations: map[string][]calibration.Point{
			"s1": {{Scan: 0, SizeBP: 0}, {Scan: 1000, SizeBP: 100}},
			"s2": nil,
		},
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(resp.Records) != 2 || math.Abs(resp.Records[0].SizeBP-30) > 0.5 || math.Abs(resp.Records[1].SizeBP-60) > 0.5 {
		t.Errorf("unexpected records %+v", resp.Records)
	}
	if len(resp.Skipped) != 1 || resp.Skipped[0].Sample != "s2" {
		t.Errorf("unexpected skips %+v", resp.Skipped)
	}

	_, err = client.Extract(context.Background(), &ExtractRequest{
		Traces:       map[string]map[string][]float64{"s1": {"DATA9": gaussians(1000, []int{300}, 500)}},
		Calibrations: map[string][]calibration.Point{"s1": {{Scan: 0, SizeBP: 0}, {Scan: 1000, SizeBP: 100}}},
		MinHeight:    &negative,
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestExtractBadCalibration(t *testing.T) {
	client := NewClient(startServer(t))

	resp, err := client.Extract(context.Background(), &ExtractRequest{
		Traces: map[string]map[string][]float64{
			"bad":  {"DATA9": gaussians(1000, []int{400}, 500)},
			"good": {"DATA9": gaussians(1000, []int{300, 600}, 500)},
		},
		Calibrations: map[string][]calibration.Point{
			"bad":  {{Scan: 100, SizeBP: 50}},
			"good": {{Scan: 0, SizeBP: 0}, {Scan: 1000, SizeBP: 100}},
		},
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(resp.Records) != 2 {
		t.Fatalf("expected the records of good, got %+v", resp.Records)
	}
	for _, r := range resp.Records {
		if r.Sample != "good" {
			t.Errorf("unexpected record %+v", r)
		}
	}
	if len(resp.Skipped) != 1 || resp.Skipped[0].Sample != "bad" || !strings.Contains(resp.Skipped[0].Message, "at least 2 points") {
		t.Errorf("unexpected skips %+v", resp.Skipped)
	}
}

func TestHealth(t *testing.T) {
	resp, err := healthpb.NewHealthClient(startServer(t)).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("unexpected status %s", resp.Status)
	}
}
