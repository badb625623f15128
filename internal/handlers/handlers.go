package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"onnoon-care/eye-monitor/internal/database"
	"onnoon-care/eye-monitor/internal/fatigue"
	"onnoon-care/eye-monitor/internal/models"
	"onnoon-care/eye-monitor/internal/services"
)

const requestTimeout = 5 * time.Second

// Store is the persistence the handlers need.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	InsertRecord(ctx context.Context, rec *models.FatigueRecord) error
	LatestRecord(ctx context.Context, userID int64) (models.FatigueRecord, error)
	GetRecord(ctx context.Context, userID, id int64) (models.FatigueRecord, error)
	ListRecords(ctx context.Context, userID int64) ([]models.FatigueRecord, error)
	Ping(ctx context.Context) error
}

// Handler serves the result store REST API.
type Handler struct {
	store       Store
	tokens      *TokenIssuer
	hub         *Hub
	metrics     *services.Metrics
	logger      *zap.SugaredLogger
	corsOrigins string
	version     string
}

func New(store Store, tokens *TokenIssuer, hub *Hub, metrics *services.Metrics, logger *zap.SugaredLogger, corsOrigins string) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if metrics == nil {
		metrics = services.NewMetrics()
	}
	return &Handler{
		store:       store,
		tokens:      tokens,
		hub:         hub,
		metrics:     metrics,
		logger:      logger,
		corsOrigins: corsOrigins,
		version:     "1.0",
	}
}

// Routes returns the API mux wrapped in CORS handling.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("GET /api/users/me", h.requireAuth(h.GetCurrentUser))

	mux.HandleFunc("POST /api/eye-fatigue", h.requireAuth(h.CreateRecord))
	mux.HandleFunc("GET /api/eye-fatigue/result", h.requireAuth(h.GetLatestResult))
	mux.HandleFunc("GET /api/eye-fatigue/history", h.requireAuth(h.GetHistory))
	mux.HandleFunc("GET /api/eye-fatigue/summary", h.requireAuth(h.GetSummary))
	mux.HandleFunc("GET /api/eye-fatigue/{id}", h.requireAuth(h.GetRecord))

	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /api/metrics", h.Metrics)
	if h.hub != nil {
		mux.HandleFunc("GET /ws", h.ServeWebSocket)
	}

	return h.enableCORS(mux)
}

func (h *Handler) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", h.corsOrigins)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, models.ErrorResponse{
		Error:     msg,
		Timestamp: time.Now().Unix(),
		Code:      code,
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "bad_request")
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	if req.Email == "" || req.Password == "" || req.Username == "" {
		writeError(w, http.StatusBadRequest, "All fields are required", "missing_fields")
		return
	}
	if !validateEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email format", "invalid_email")
		return
	}
	if !validatePassword(req.Password) {
		writeError(w, http.StatusBadRequest, "Password must be 8-72 characters with at least one letter and one number", "invalid_password")
		return
	}
	if !validateUsername(req.Username) {
		writeError(w, http.StatusBadRequest, "Username must be 3-30 characters, alphanumeric and underscore only", "invalid_username")
		return
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		h.logger.Errorf("Password hashing error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "internal")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	user := models.User{Email: req.Email, Username: req.Username, PasswordHash: passwordHash}
	if err := h.store.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			h.logger.Warnf("Registration for existing user: %s", req.Email)
			writeError(w, http.StatusConflict, "Email or username already registered", "duplicate_user")
			return
		}
		h.logger.Errorf("Registration failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "internal")
		return
	}

	h.logger.Infof("User registered: %s", req.Email)
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "bad_request")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required", "missing_fields")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	user, err := h.store.GetUserByEmail(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "Incorrect email or password", "invalid_credentials")
		return
	} else if err != nil {
		h.logger.Errorf("Login error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "internal")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "Incorrect email or password", "invalid_credentials")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.logger.Errorf("Token signing failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "internal")
		return
	}

	h.logger.Infof("User logged in: %s", user.Email)
	writeJSON(w, http.StatusOK, models.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(h.tokens.TTL().Seconds()),
		User:        user,
	})
}

func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	user, err := h.store.GetUserByID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "Could not validate credentials", "unknown_user")
		return
	} else if err != nil {
		h.logger.Errorf("Get user error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "internal")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// CreateRecord stores one monitor record for the caller and pushes it to
// the caller's live clients.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var rec fatigue.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid record: "+err.Error(), "bad_request")
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if err := rec.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "invalid_record")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	stored := models.NewFatigueRecord(userID, rec)
	if err := h.store.InsertRecord(ctx, &stored); err != nil {
		h.logger.Errorf("Failed to save record for user %d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to save record", "internal")
		return
	}
	h.metrics.IncrementRecordsStored()

	if h.hub != nil {
		h.hub.SendToUser(userID, models.WebSocketMessage{
			Type:      "FATIGUE_RECORD",
			Data:      stored,
			Timestamp: time.Now().Unix(),
		})
	}

	h.logger.Infof("Record saved: user=%d score=%.1f status=%s", userID, stored.HealthScore, stored.Status)
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) GetLatestResult(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rec, err := h.store.LatestRecord(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No diagnosis record found", "not_found")
		return
	} else if err != nil {
		h.logger.Errorf("Latest record error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "internal")
		return
	}
	writeJSON(w, http.StatusOK, models.NewFatigueResult(rec))
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	records, err := h.store.ListRecords(ctx, userID)
	if err != nil {
		h.logger.Errorf("History error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "internal")
		return
	}
	if records == nil {
		records = []models.FatigueRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	records, err := h.store.ListRecords(ctx, userID)
	if err != nil {
		h.logger.Errorf("Summary error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "internal")
		return
	}
	writeJSON(w, http.StatusOK, Summarize(records))
}

// Summarize aggregates records in any order.
func Summarize(records []models.FatigueRecord) models.Summary {
	sum := models.Summary{
		Count:        len(records),
		StatusCounts: map[fatigue.Status]int{},
	}
	if len(records) == 0 {
		return sum
	}

	health := make([]float64, len(records))
	bpm := make([]float64, len(records))
	gaze := make([]float64, len(records))
	first, latest := records[0].RecordedAt, records[0].RecordedAt
	for i, rec := range records {
		health[i] = rec.HealthScore
		bpm[i] = float64(rec.BPM)
		gaze[i] = rec.MaxStableGaze
		sum.StatusCounts[rec.Status]++
		if rec.RecordedAt.Before(first) {
			first = rec.RecordedAt
		}
		if rec.RecordedAt.After(latest) {
			latest = rec.RecordedAt
		}
	}

	sum.MeanHealthScore, sum.StdDevHealth = stat.MeanStdDev(health, nil)
	if len(records) == 1 {
		sum.StdDevHealth = 0
	}
	sum.MeanBPM = stat.Mean(bpm, nil)
	sum.MaxStableGaze = floats.Max(gaze)
	sum.FirstRecordedAt = &first
	sum.LatestRecordedAt = &latest
	return sum
}

func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Record not found", "not_found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rec, err := h.store.GetRecord(ctx, userID, id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Record not found or not accessible", "not_found")
		return
	} else if err != nil {
		h.logger.Errorf("Get record error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "internal")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbOK := h.store.Ping(ctx) == nil
	status := models.HealthStatus{
		Status:    "healthy",
		Backend:   "running",
		Database:  dbOK,
		UptimeSec: int64(h.metrics.Uptime().Seconds()),
		Version:   h.version,
	}
	if h.hub != nil {
		status.ActiveClients = h.hub.Count()
	}

	code := http.StatusOK
	if !dbOK {
		status.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	snapshot := h.metrics.Snapshot()
	snapshot["timestamp"] = time.Now().Format(time.RFC3339)
	writeJSON(w, http.StatusOK, snapshot)
}
