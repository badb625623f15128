package services

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"onnoon-care/eye-monitor/internal/fatigue"
	"onnoon-care/eye-monitor/internal/landmarks"
)

const maxMessageSize = 50 * 1024 * 1024

// LandmarkClient calls the face-mesh landmark service over gRPC.
type LandmarkClient struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	url     string
	timeout time.Duration
}

// NewLandmarkClient connects to the landmark service at url. Extra dial
// options are appended to the defaults.
func NewLandmarkClient(url string, extra ...grpc.DialOption) (*LandmarkClient, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageSize),
			grpc.MaxCallSendMsgSize(maxMessageSize),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	opts = append(opts, extra...)

	conn, err := grpc.Dial(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not connect to landmark service at %s: %w", url, err)
	}

	return &LandmarkClient{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		url:     url,
		timeout: 5 * time.Second,
	}, nil
}

// URL returns the service address.
func (c *LandmarkClient) URL() string {
	return c.url
}

// Detect sends one JPEG frame and returns its normalized landmarks.
// A nil slice with a nil error means no face was found.
func (c *LandmarkClient) Detect(ctx context.Context, jpeg []byte) ([]fatigue.Point, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, faceMeshDetectMethod, wrapperspb.Bytes(jpeg), resp); err != nil {
		return nil, fmt.Errorf("could not detect landmarks: %w", err)
	}
	return ParseLandmarks(resp)
}

// HealthCheck reports whether the service answers the standard health check.
func (c *LandmarkClient) HealthCheck() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{})
	return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

// Close closes the connection.
func (c *LandmarkClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// ParseLandmarks decodes {landmarks: [x0, y0, x1, y1, ...]}. A missing or
// empty list means no face.
func ParseLandmarks(resp *structpb.Struct) ([]fatigue.Point, error) {
	values := resp.GetFields()["landmarks"].GetListValue().GetValues()
	if len(values) == 0 {
		return nil, nil
	}

	coords := make([]float64, len(values))
	for i, v := range values {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("landmark coordinate %d is not a number", i)
		}
		coords[i] = n.NumberValue
	}
	return landmarks.FromFlat(coords)
}
