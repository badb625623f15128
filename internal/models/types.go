package models

import (
	"time"

	"onnoon-care/eye-monitor/internal/fatigue"
)

// FatigueResult is the latest diagnosis of a user.
type FatigueResult struct {
	UserID       int64     `json:"user_id"`
	FatigueScore float64   `json:"fatigue_score"`
	FatigueGrade string    `json:"fatigue_grade"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewFatigueResult builds the result view of a stored record.
func NewFatigueResult(rec FatigueRecord) FatigueResult {
	return FatigueResult{
		UserID:       rec.UserID,
		FatigueScore: rec.HealthScore,
		FatigueGrade: rec.Status.Label(),
		Status:       string(rec.Status),
		CreatedAt:    rec.CreatedAt,
	}
}

// Summary aggregates a user's history.
type Summary struct {
	Count            int                    `json:"count"`
	MeanHealthScore  float64                `json:"mean_health_score"`
	StdDevHealth     float64                `json:"stddev_health_score"`
	MeanBPM          float64                `json:"mean_bpm"`
	MaxStableGaze    float64                `json:"max_stable_gaze_time"`
	StatusCounts     map[fatigue.Status]int `json:"status_counts"`
	FirstRecordedAt  *time.Time             `json:"first_recorded_at,omitempty"`
	LatestRecordedAt *time.Time             `json:"latest_recorded_at,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
	Code      string `json:"code,omitempty"`
}

type HealthStatus struct {
	Status        string `json:"status"`
	Backend       string `json:"backend"`
	Database      bool   `json:"database"`
	ActiveClients int    `json:"active_clients"`
	UptimeSec     int64  `json:"uptime_sec"`
	Version       string `json:"version,omitempty"`
}

// WebSocketMessage is pushed to a user's live clients.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}
