package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"onnoon-care/eye-monitor/internal/fatigue"
	"onnoon-care/eye-monitor/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

const uniqueViolation = "23505"

// Store is the Postgres backed user and record store.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// Open connects to Postgres and applies pending migrations.
func Open(ctx context.Context, dsn string, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not reach database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Postgres database initialized")
	return &Store{db: db, logger: logger}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("could not apply migrations: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
		s.logger.Info("DB closed")
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreateUser inserts u and fills its ID and CreatedAt. A taken email or
// username returns ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (email, username, password_hash) VALUES ($1, $2, $3) RETURNING id, created_at`,
		u.Email, u.Username, u.PasswordHash,
	).Scan(&u.ID, &u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.getUser(ctx, `SELECT id, email, username, password_hash, created_at FROM users WHERE email = $1`, email)
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	return s.getUser(ctx, `SELECT id, email, username, password_hash, created_at FROM users WHERE id = $1`, id)
}

func (s *Store) getUser(ctx context.Context, query string, arg interface{}) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

const recordColumns = `id, user_id, recorded_at, bpm, max_stable_gaze_time, health_score, status, created_at`

// InsertRecord stores rec and fills its ID and CreatedAt.
func (s *Store) InsertRecord(ctx context.Context, rec *models.FatigueRecord) error {
	return s.db.QueryRowContext(ctx,
		`INSERT INTO eye_fatigue_records (user_id, recorded_at, bpm, max_stable_gaze_time, health_score, status)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		rec.UserID, rec.RecordedAt, rec.BPM, rec.MaxStableGaze, rec.HealthScore, string(rec.Status),
	).Scan(&rec.ID, &rec.CreatedAt)
}

// LatestRecord returns the newest record of a user.
func (s *Store) LatestRecord(ctx context.Context, userID int64) (models.FatigueRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM eye_fatigue_records WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		userID)
	return scanRecord(row)
}

// GetRecord returns one record owned by userID.
func (s *Store) GetRecord(ctx context.Context, userID, id int64) (models.FatigueRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM eye_fatigue_records WHERE id = $1 AND user_id = $2`,
		id, userID)
	return scanRecord(row)
}

// ListRecords returns a user's records, newest first.
func (s *Store) ListRecords(ctx context.Context, userID int64) ([]models.FatigueRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM eye_fatigue_records WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.FatigueRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (models.FatigueRecord, error) {
	var rec models.FatigueRecord
	var status string
	err := row.Scan(&rec.ID, &rec.UserID, &rec.RecordedAt, &rec.BPM, &rec.MaxStableGaze, &rec.HealthScore, &status, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FatigueRecord{}, ErrNotFound
	}
	if err != nil {
		return models.FatigueRecord{}, err
	}
	rec.Status = fatigue.Status(status)
	return rec, nil
}
