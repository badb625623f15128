package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"onnoon-care/eye-monitor/internal/database"
	"onnoon-care/eye-monitor/internal/fatigue"
	"onnoon-care/eye-monitor/internal/models"
	"onnoon-care/eye-monitor/internal/services"
)

type memStore struct {
	mu      sync.Mutex
	users   []models.User
	records []models.FatigueRecord
	pingErr error
}

func (s *memStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return database.ErrDuplicate
		}
	}
	u.ID = int64(len(s.users) + 1)
	u.CreatedAt = time.Now()
	s.users = append(s.users, *u)
	return nil
}

func (s *memStore) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, database.ErrNotFound
}

func (s *memStore) GetUserByID(_ context.Context, id int64) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, database.ErrNotFound
}

func (s *memStore) InsertRecord(_ context.Context, rec *models.FatigueRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = int64(len(s.records) + 1)
	rec.CreatedAt = time.Now()
	s.records = append(s.records, *rec)
	return nil
}

func (s *memStore) LatestRecord(ctx context.Context, userID int64) (models.FatigueRecord, error) {
	records, _ := s.ListRecords(ctx, userID)
	if len(records) == 0 {
		return models.FatigueRecord{}, database.ErrNotFound
	}
	return records[0], nil
}

func (s *memStore) GetRecord(_ context.Context, userID, id int64) (models.FatigueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID == id && rec.UserID == userID {
			return rec, nil
		}
	}
	return models.FatigueRecord{}, database.ErrNotFound
}

func (s *memStore) ListRecords(_ context.Context, userID int64) ([]models.FatigueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FatigueRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].UserID == userID {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

func (s *memStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *memStore) setPingErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

type testServer struct {
	*httptest.Server
	store   *memStore
	clock   *clock.Mock
	metrics *services.Metrics
	hub     *Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	mock := clock.NewMock()
	mock.Set(time.Now())

	store := &memStore{}
	metrics := services.NewMetrics()
	hub := NewHub(metrics, logger)
	h := New(store, NewTokenIssuer("test-secret", 30*time.Minute, mock), hub, metrics, logger, "*")

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
	})
	return &testServer{Server: srv, store: store, clock: mock, metrics: metrics, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// registerAndLogin creates a user and returns its token.
func (s *testServer) registerAndLogin(t *testing.T, name string) string {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		Email: name + "@example.com", Username: name, Password: "Password123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{
		Email: name + "@example.com", Password: "Password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tok models.TokenResponse
	decode(t, resp, &tok)
	require.Equal(t, "bearer", tok.TokenType)
	require.NotEmpty(t, tok.AccessToken)
	return tok.AccessToken
}

func sampleRecord(minute int, bpm int, dwell float64) fatigue.Record {
	return fatigue.Evaluate(bpm, []float64{dwell}, time.Date(2026, 3, 2, 9, minute, 0, 0, time.Local))
}

func TestRegister(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		Email: "alice@example.com", Username: "alice", Password: "Password123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var user map[string]interface{}
	decode(t, resp, &user)
	assert.Equal(t, "alice@example.com", user["email"])
	assert.NotContains(t, user, "PasswordHash")
	assert.NotContains(t, user, "password_hash")

	resp = s.do(t, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		Email: "alice@example.com", Username: "alice2", Password: "Password123",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	for name, req := range map[string]models.RegisterRequest{
		"bad email":      {Email: "nope", Username: "bob", Password: "Password123"},
		"short password": {Email: "bob@example.com", Username: "bob", Password: "abc1"},
		"no digit":       {Email: "bob@example.com", Username: "bob", Password: "Passwordxyz"},
		"bad username":   {Email: "bob@example.com", Username: "b!", Password: "Password123"},
		"missing":        {Email: "bob@example.com"},
	} {
		resp := s.do(t, http.MethodPost, "/api/auth/register", "", req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
	}
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	token := s.registerAndLogin(t, "carol")

	resp := s.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "carol@example.com", Password: "Wrong12345"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "nobody@example.com", Password: "Password123"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me models.User
	decode(t, resp, &me)
	assert.Equal(t, "carol", me.Username)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	token := s.registerAndLogin(t, "dave")

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/users/me", "", nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/users/me", "garbage", nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/eye-fatigue", "", sampleRecord(0, 15, 10)).StatusCode)

	s.clock.Add(31 * time.Minute)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/users/me", token, nil).StatusCode, "token expired")
}

func TestRecords(t *testing.T) {
	s := newTestServer(t)
	token := s.registerAndLogin(t, "erin")
	other := s.registerAndLogin(t, "frank")

	resp := s.do(t, http.MethodGet, "/api/eye-fatigue/result", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/eye-fatigue/history", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var empty []models.FatigueRecord
	decode(t, resp, &empty)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	resp = s.do(t, http.MethodPost, "/api/eye-fatigue", token, sampleRecord(1, 30, 10))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var first models.FatigueRecord
	decode(t, resp, &first)
	assert.Equal(t, fatigue.StatusGood, first.Status)
	assert.Equal(t, 30, first.BPM)

	resp = s.do(t, http.MethodPost, "/api/eye-fatigue", token, sampleRecord(2, 3, 70))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int64(2), s.metrics.GetRecordsStored())

	resp = s.do(t, http.MethodGet, "/api/eye-fatigue/result", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result models.FatigueResult
	decode(t, resp, &result)
	assert.Equal(t, 6.0, result.FatigueScore)
	assert.Equal(t, "Very bad", result.FatigueGrade)
	assert.Equal(t, "BAD", result.Status)

	resp = s.do(t, http.MethodGet, "/api/eye-fatigue/history", token, nil)
	var history []models.FatigueRecord
	decode(t, resp, &history)
	require.Len(t, history, 2)
	assert.Equal(t, 3, history[0].BPM, "newest first")

	resp = s.do(t, http.MethodGet, "/api/eye-fatigue/1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/eye-fatigue/1", other, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/eye-fatigue/abc", token, nil).StatusCode)

	resp = s.do(t, http.MethodGet, "/api/eye-fatigue/summary", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum models.Summary
	decode(t, resp, &sum)
	assert.Equal(t, 2, sum.Count)
	assert.Equal(t, 16.5, sum.MeanBPM)
	assert.Equal(t, 1, sum.StatusCounts[fatigue.StatusGood])
	assert.Equal(t, 1, sum.StatusCounts[fatigue.StatusBad])
}

func TestCreateRecord_Invalid(t *testing.T) {
	s := newTestServer(t)
	token := s.registerAndLogin(t, "gina")

	resp := s.do(t, http.MethodPost, "/api/eye-fatigue", token, map[string]interface{}{
		"timestamp": "2026-03-02 09:00:00", "bpm": 10, "max_stable_gaze_time": 5, "health_score": 140, "status": "GOOD",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/eye-fatigue", token, map[string]interface{}{
		"timestamp": "yesterday", "bpm": 10,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, s.store.records)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health models.HealthStatus
	decode(t, resp, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.Database)

	s.store.setPingErr(errors.New("connection refused"))
	resp = s.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var metrics map[string]interface{}
	decode(t, resp, &metrics)
	assert.Contains(t, metrics, "records_stored")
	assert.Contains(t, metrics, "timestamp")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodOptions, "/api/eye-fatigue", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestWebSocket_PushesOwnRecords(t *testing.T) {
	s := newTestServer(t)
	token := s.registerAndLogin(t, "hana")
	other := s.registerAndLogin(t, "ivan")

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token="
	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"bad", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+token, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg models.WebSocketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "WELCOME", msg.Type)
	assert.Eventually(t, func() bool { return s.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/eye-fatigue", other, sampleRecord(1, 20, 5)).StatusCode)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/eye-fatigue", token, sampleRecord(2, 12, 30)).StatusCode)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "FATIGUE_RECORD", msg.Type)
	data := msg.Data.(map[string]interface{})
	assert.Equal(t, 12.0, data["bpm"], "only the owner's record is pushed")

	require.NoError(t, conn.WriteJSON(models.WebSocketMessage{Type: "PING"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "PONG", msg.Type)
}

func TestHub_WelcomeQueuedBeforeRegistration(t *testing.T) {
	hub := NewHub(nil, nil)
	c := newWSClient(nil, 7, "1.0")
	hub.add(c)
	assert.Equal(t, 1, hub.SendToUser(7, models.WebSocketMessage{Type: "FATIGUE_RECORD"}))
	hub.remove(c)

	msg, ok := <-c.send
	require.True(t, ok)
	assert.Equal(t, "WELCOME", msg.Type)
	msg, ok = <-c.send
	require.True(t, ok)
	assert.Equal(t, "FATIGUE_RECORD", msg.Type)
	_, ok = <-c.send
	assert.False(t, ok, "send is closed once the hub drops the client")
	assert.Zero(t, hub.Count())
}

func TestSummarize(t *testing.T) {
	empty := Summarize(nil)
	assert.Equal(t, 0, empty.Count)
	assert.Nil(t, empty.FirstRecordedAt)

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	records := []models.FatigueRecord{
		{RecordedAt: at.Add(2 * time.Minute), BPM: 10, HealthScore: 80, MaxStableGaze: 4, Status: fatigue.StatusGood},
		{RecordedAt: at, BPM: 20, HealthScore: 60, MaxStableGaze: 9.5, Status: fatigue.StatusCaution},
	}
	sum := Summarize(records)
	assert.Equal(t, 2, sum.Count)
	assert.Equal(t, 70.0, sum.MeanHealthScore)
	assert.InDelta(t, 14.142, sum.StdDevHealth, 1e-3)
	assert.Equal(t, 15.0, sum.MeanBPM)
	assert.Equal(t, 9.5, sum.MaxStableGaze)
	assert.True(t, at.Equal(*sum.FirstRecordedAt))
	assert.True(t, at.Add(2*time.Minute).Equal(*sum.LatestRecordedAt))

	single := Summarize(records[:1])
	assert.Equal(t, 0.0, single.StdDevHealth)
}

type flakyPinger struct {
	mu  sync.Mutex
	err error
}

func (p *flakyPinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func TestHealthReporter(t *testing.T) {
	db := &flakyPinger{}
	r := NewHealthReporter(db, time.Second, clock.NewMock(), zaptest.NewLogger(t).Sugar())

	assert.True(t, r.Check(context.Background()))
	resp, err := r.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: StoreServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	db.mu.Lock()
	db.err = errors.New("down")
	db.mu.Unlock()
	assert.False(t, r.Check(context.Background()))
	resp, err = r.Server().Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestTokenIssuer(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Now())
	issuer := NewTokenIssuer("secret", time.Minute, mock)

	token, err := issuer.Issue(42)
	require.NoError(t, err)
	id, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = NewTokenIssuer("other", time.Minute, mock).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	mock.Add(time.Minute)
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
