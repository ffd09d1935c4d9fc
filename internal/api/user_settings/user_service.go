package userSettings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	eventLog "github.com/FACorreiaa/go-comment-suggestions/internal/api/event_log"
	userProfiles "github.com/FACorreiaa/go-comment-suggestions/internal/api/user_profiles"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

var _ SettingsService = (*SettingsServiceImpl)(nil)

// GenerationPreferences is the part of the settings the generator needs.
type GenerationPreferences struct {
	Model    string
	APIKey   string
	AutoSave bool
}

type SettingsService interface {
	// GetSettings returns stored settings, or defaults for a user that never saved.
	GetSettings(ctx context.Context, userID uuid.UUID) (*types.SettingsView, error)
	// UpdateSettings applies a partial update, creating profile and settings
	// rows on first save.
	UpdateSettings(ctx context.Context, userID uuid.UUID, params types.UpdateUserSettingsParams) (*types.SettingsView, error)
	GenerationPreferences(ctx context.Context, userID uuid.UUID) (GenerationPreferences, error)
}

type SettingsServiceImpl struct {
	logger   *slog.Logger
	repo     SettingsRepository
	profiles userProfiles.UserProfilesService
	events   eventLog.Recorder
	sealer   *Sealer
	validate *validator.Validate
}

func NewUserSettingsService(
	repo SettingsRepository,
	profiles userProfiles.UserProfilesService,
	events eventLog.Recorder,
	sealer *Sealer,
	logger *slog.Logger,
) *SettingsServiceImpl {
	return &SettingsServiceImpl{
		logger:   logger,
		repo:     repo,
		profiles: profiles,
		events:   events,
		sealer:   sealer,
		validate: api.NewValidator(),
	}
}

func (s *SettingsServiceImpl) GetSettings(ctx context.Context, userID uuid.UUID) (*types.SettingsView, error) {
	ctx, span := otel.Tracer("UserSettingsService").Start(ctx, "GetSettings", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	settings, err := s.repo.GetSettings(ctx, userID)
	if errors.Is(err, api.ErrNotFound) {
		settings = types.DefaultUserSettings(userID)
	} else if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get settings failed")
		return nil, fmt.Errorf("error fetching user settings: %w", err)
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get profile failed")
		return nil, fmt.Errorf("error fetching user profile: %w", err)
	}

	span.SetStatus(codes.Ok, "settings fetched")
	return &types.SettingsView{Settings: settings, Profile: profile}, nil
}

func (s *SettingsServiceImpl) validateUpdate(params types.UpdateUserSettingsParams) error {
	if err := api.ValidateStruct(s.validate, params); err != nil {
		return err
	}
	if params.AIModel != nil && !params.AIModel.Valid() {
		return api.NewValidationError("ai_model", "unsupported model")
	}
	if params.DefaultTone != nil && !params.DefaultTone.Valid() {
		return api.NewValidationError("default_tone", "unsupported tone")
	}
	if params.DefaultPlatform != nil && !params.DefaultPlatform.Valid() {
		return api.NewValidationError("default_platform", "unsupported platform")
	}
	if params.CustomAPIKey != nil && strings.TrimSpace(*params.CustomAPIKey) != "" && !s.sealer.Enabled() {
		return api.NewValidationError("custom_api_key", "custom API keys are not enabled on this server")
	}
	return nil
}

func (s *SettingsServiceImpl) UpdateSettings(ctx context.Context, userID uuid.UUID, params types.UpdateUserSettingsParams) (*types.SettingsView, error) {
	ctx, span := otel.Tracer("UserSettingsService").Start(ctx, "UpdateSettings", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "UpdateSettings"), slog.String("userID", userID.String()))

	if err := s.validateUpdate(params); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	var key KeyUpdate
	if params.CustomAPIKey != nil {
		key.Touch = true
		if plain := strings.TrimSpace(*params.CustomAPIKey); plain != "" {
			sealed, err := s.sealer.Seal([]byte(plain), userID[:])
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "seal failed")
				return nil, fmt.Errorf("seal custom api key: %w", err)
			}
			key.Sealed = sealed
		}
	}

	// Profile first so the settings save never leaves a user without one.
	if err := s.profiles.UpdateProfile(ctx, userID, params.DisplayName, params.AvatarURL); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile upsert failed")
		return nil, err
	}

	settings, err := s.repo.UpsertSettings(ctx, userID, params, key)
	if err != nil {
		l.ErrorContext(ctx, "Failed to update settings", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "settings upsert failed")
		return nil, fmt.Errorf("error updating user settings: %w", err)
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error fetching user profile: %w", err)
	}

	if err := s.events.Record(ctx, types.EventLog{
		UserID:    userID,
		EventType: types.EventSettingsUpdate,
		Metadata:  map[string]any{"custom_api_key_changed": key.Touch},
	}); err != nil {
		l.WarnContext(ctx, "Audit event not recorded", slog.Any("error", err))
	}

	l.InfoContext(ctx, "User settings updated")
	span.SetStatus(codes.Ok, "settings updated")
	return &types.SettingsView{Settings: settings, Profile: profile}, nil
}

// GenerationPreferences resolves the model and key for a generation call. A
// key that can no longer be opened is ignored so generation falls back to the
// service key.
func (s *SettingsServiceImpl) GenerationPreferences(ctx context.Context, userID uuid.UUID) (GenerationPreferences, error) {
	settings, err := s.repo.GetSettings(ctx, userID)
	if errors.Is(err, api.ErrNotFound) {
		settings = types.DefaultUserSettings(userID)
	} else if err != nil {
		return GenerationPreferences{}, fmt.Errorf("generation preferences: %w", err)
	}

	prefs := GenerationPreferences{
		Model:    string(settings.AIModel),
		AutoSave: settings.AutoSaveComments,
	}
	if settings.HasCustomAPIKey {
		plain, err := s.sealer.Open(settings.CustomAPIKeySealed, userID[:])
		if err != nil {
			s.logger.WarnContext(ctx, "Stored custom API key could not be opened",
				slog.String("userID", userID.String()), slog.Any("error", err))
		} else {
			prefs.APIKey = string(plain)
		}
	}
	return prefs, nil
}
