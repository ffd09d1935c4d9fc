package types

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AIModel is the completion model a user prefers.
type AIModel string

const (
	AIModelDefault AIModel = "default"
	AIModelFlash   AIModel = "gemini-2.0-flash"
	AIModelPro     AIModel = "gemini-1.5-pro"
)

// Scan implements the sql.Scanner interface for AIModel.
func (m *AIModel) Scan(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		bytesVal, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("failed to scan AIModel: expected string or []byte, got %T", value)
		}
		strVal = string(bytesVal)
	}
	switch AIModel(strVal) {
	case AIModelDefault, AIModelFlash, AIModelPro:
		*m = AIModel(strVal)
		return nil
	default:
		return fmt.Errorf("unknown AIModel value: %s", strVal)
	}
}

// Value implements the driver.Valuer interface for AIModel.
func (m AIModel) Value() (driver.Value, error) {
	switch m {
	case AIModelDefault, AIModelFlash, AIModelPro:
		return string(m), nil
	default:
		return nil, fmt.Errorf("invalid AIModel value: %s", m)
	}
}

// UserSettings mirrors the user_settings table. The custom API key is kept
// sealed and never leaves the service; HasCustomAPIKey tells the UI it exists.
type UserSettings struct {
	UserID             uuid.UUID `json:"user_id"`
	AIModel            AIModel   `json:"ai_model"`
	DefaultTone        Tone      `json:"default_tone"`
	DefaultPlatform    Platform  `json:"default_platform"`
	CustomAPIKeySealed []byte    `json:"-"`
	HasCustomAPIKey    bool      `json:"has_custom_api_key"`
	EmailNotifications bool      `json:"email_notifications"`
	AutoSaveComments   bool      `json:"auto_save_comments"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultUserSettings is what a user gets before the first save.
func DefaultUserSettings(userID uuid.UUID) *UserSettings {
	return &UserSettings{
		UserID:             userID,
		AIModel:            AIModelDefault,
		DefaultTone:        ToneFriendly,
		DefaultPlatform:    PlatformTwitter,
		EmailNotifications: true,
		AutoSaveComments:   true,
	}
}

// UpdateUserSettingsParams defines the fields allowed for updating user settings.
// Pointers are used to allow partial updates. An empty CustomAPIKey clears it.
type UpdateUserSettingsParams struct {
	AIModel            *AIModel  `json:"ai_model,omitempty"`
	DefaultTone        *Tone     `json:"default_tone,omitempty"`
	DefaultPlatform    *Platform `json:"default_platform,omitempty"`
	CustomAPIKey       *string   `json:"custom_api_key,omitempty" validate:"omitempty,max=256"`
	EmailNotifications *bool     `json:"email_notifications,omitempty"`
	AutoSaveComments   *bool     `json:"auto_save_comments,omitempty"`
	DisplayName        *string   `json:"display_name,omitempty" validate:"omitempty,max=100"`
	AvatarURL          *string   `json:"avatar_url,omitempty" validate:"omitempty,url,max=2048"`
}

// Valid reports whether m is a known model.
func (m AIModel) Valid() bool {
	switch m {
	case AIModelDefault, AIModelFlash, AIModelPro:
		return true
	}
	return false
}

// SettingsView is what the settings endpoints return.
type SettingsView struct {
	Settings *UserSettings `json:"settings"`
	Profile  *UserProfile  `json:"profile"`
}
