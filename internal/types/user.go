package types

import (
	"time"

	"github.com/google/uuid"
)

// UserProfile carries display data and the daily prompt counter.
type UserProfile struct {
	UserID           uuid.UUID `json:"user_id"`
	DisplayName      *string   `json:"display_name,omitempty"`
	AvatarURL        *string   `json:"avatar_url,omitempty"`
	DailyPromptCount int       `json:"daily_prompt_count"`
	LastResetAt      time.Time `json:"last_reset_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// EventLog is an append-only audit row.
type EventLog struct {
	UserID    uuid.UUID      `json:"user_id"`
	EventType string         `json:"event_type"`
	Metadata  map[string]any `json:"metadata"`
}

const (
	EventGeneration         = "generation"
	EventSubscriptionCreate = "subscription_create"
	EventSubscriptionManage = "subscription_manage"
	EventSettingsUpdate     = "settings_update"
	EventHistoryCleared     = "history_cleared"
)
