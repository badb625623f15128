package services

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"onnoon-care/eye-monitor/internal/fatigue"
)

type fakeFaceMesh struct {
	points []fatigue.Point
	err    error
	frames [][]byte
}

func (f *fakeFaceMesh) Detect(_ context.Context, frame *wrapperspb.BytesValue) (*structpb.Struct, error) {
	f.frames = append(f.frames, frame.GetValue())
	if f.err != nil {
		return nil, f.err
	}
	return LandmarksResponse(f.points)
}

func startFaceMesh(t *testing.T, fake *fakeFaceMesh) (*LandmarkClient, *health.Server) {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterFaceMeshServer(srv, fake)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	client, err := NewLandmarkClient("bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, hs
}

func TestLandmarkClient_Detect(t *testing.T) {
	fake := &fakeFaceMesh{points: []fatigue.Point{{X: 0.25, Y: 0.5}, {X: 0.75, Y: 0.125}}}
	client, _ := startFaceMesh(t, fake)

	points, err := client.Detect(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, fake.points, points)
	require.Len(t, fake.frames, 1)
	assert.Equal(t, []byte("jpeg-bytes"), fake.frames[0])
	assert.Equal(t, "bufnet", client.URL())
}

func TestLandmarkClient_NoFace(t *testing.T) {
	client, _ := startFaceMesh(t, &fakeFaceMesh{})

	points, err := client.Detect(context.Background(), []byte("frame"))
	require.NoError(t, err)
	assert.Nil(t, points)
}

func TestLandmarkClient_ServerError(t *testing.T) {
	client, _ := startFaceMesh(t, &fakeFaceMesh{err: status.Error(codes.Internal, "model crashed")})

	_, err := client.Detect(context.Background(), []byte("frame"))
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(errors.Unwrap(err)))
}

func TestLandmarkClient_HealthCheck(t *testing.T) {
	client, hs := startFaceMesh(t, &fakeFaceMesh{})
	assert.True(t, client.HealthCheck())

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	assert.False(t, client.HealthCheck())
}

func TestParseLandmarks(t *testing.T) {
	resp, err := structpb.NewStruct(map[string]interface{}{
		"landmarks": []interface{}{0.1, "x"},
	})
	require.NoError(t, err)
	_, err = ParseLandmarks(resp)
	assert.Error(t, err)

	resp, err = structpb.NewStruct(map[string]interface{}{
		"landmarks": []interface{}{0.1, 0.2, 0.3},
	})
	require.NoError(t, err)
	_, err = ParseLandmarks(resp)
	assert.Error(t, err, "odd coordinate count")

	points, err := ParseLandmarks(&structpb.Struct{})
	require.NoError(t, err)
	assert.Nil(t, points)
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	var rec fatigue.Recorder = m
	rec.FrameProcessed(true)
	rec.FrameProcessed(false)
	rec.Blink()
	rec.DegenerateEye()
	rec.WindowClosed()
	rec.Delivery(nil)
	rec.Delivery(errors.New("boom"))
	m.RecordLatency(30 * time.Millisecond)
	m.IncrementRecordsStored()
	m.IncrementWebSocketConnections()
	m.IncrementWebSocketConnections()
	m.DecrementWebSocketConnections()

	assert.Equal(t, int64(2), m.GetTotalFrames())
	assert.Equal(t, int64(1), m.GetFacelessFrames())
	assert.Equal(t, int64(1), m.GetTotalBlinks())
	assert.Equal(t, int64(1), m.GetWindowsClosed())
	ok, failed := m.GetDeliveries()
	assert.Equal(t, int64(1), ok)
	assert.Equal(t, int64(1), failed)
	assert.Equal(t, 15.0, m.GetAvgLatency())
	assert.Equal(t, int64(1), m.GetWebSocketConnections())

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap["records_stored"])
	assert.Equal(t, int64(1), snap["degenerate_eyes"])
}

func TestGetMetrics_Singleton(t *testing.T) {
	assert.Same(t, GetMetrics(), GetMetrics())
}
