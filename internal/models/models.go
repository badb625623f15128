package models

import (
	"time"

	"onnoon-care/eye-monitor/internal/fatigue"
)

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// FatigueRecord is one analysis window stored for a user.
type FatigueRecord struct {
	ID            int64          `json:"id"`
	UserID        int64          `json:"user_id"`
	RecordedAt    time.Time      `json:"recorded_at"`
	BPM           int            `json:"bpm"`
	MaxStableGaze float64        `json:"max_stable_gaze_time"`
	HealthScore   float64        `json:"health_score"`
	Status        fatigue.Status `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NewFatigueRecord copies the monitor output for userID.
func NewFatigueRecord(userID int64, rec fatigue.Record) FatigueRecord {
	return FatigueRecord{
		UserID:        userID,
		RecordedAt:    rec.Timestamp,
		BPM:           rec.BlinkCount,
		MaxStableGaze: rec.MaxStableGaze,
		HealthScore:   rec.HealthScore,
		Status:        rec.Status,
	}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	User        User   `json:"user"`
}
