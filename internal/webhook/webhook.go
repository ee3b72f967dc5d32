package webhook

import (
	"context"
	"time"
)

//go:generate mockgen -package=mocks -destination=mocks/mock_sender.go github.com/foxseedlab/eventsync/internal/webhook Sender

type ParticipantSummary struct {
	UserID          string `json:"user_id"`
	DisplayName     string `json:"display_name"`
	Joins           int    `json:"joins"`
	PresenceSeconds int64  `json:"presence_seconds"`
}

type SessionSummaryPayload struct {
	SessionID       string               `json:"session_id"`
	SessionName     string               `json:"session_name"`
	ChannelID       string               `json:"channel_id"`
	ChannelName     string               `json:"channel_name"`
	StartedAt       time.Time            `json:"started_at"`
	EndedAt         time.Time            `json:"ended_at"`
	DurationSeconds int64                `json:"duration_seconds"`
	UserCount       int                  `json:"user_count"`
	Participants    []ParticipantSummary `json:"participants"`
}

type Sender interface {
	SendSessionSummary(ctx context.Context, payload SessionSummaryPayload) error
}
