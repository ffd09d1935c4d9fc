package userSettings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	database "github.com/FACorreiaa/go-comment-suggestions/app/db"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

var _ SettingsRepository = (*PostgresUserSettingsRepo)(nil)

// KeyUpdate says what to do with the stored custom API key.
type KeyUpdate struct {
	Touch  bool
	Sealed []byte // nil with Touch clears the key
}

type SettingsRepository interface {
	// GetSettings returns api.ErrNotFound when the user never saved settings.
	GetSettings(ctx context.Context, userID uuid.UUID) (*types.UserSettings, error)
	// UpsertSettings creates or partially updates the row; nil fields are kept.
	UpsertSettings(ctx context.Context, userID uuid.UUID, params types.UpdateUserSettingsParams, key KeyUpdate) (*types.UserSettings, error)
}

type PostgresUserSettingsRepo struct {
	logger *slog.Logger
	pgpool database.Pool
}

func NewPostgresUserSettingsRepo(pgpool database.Pool, logger *slog.Logger) *PostgresUserSettingsRepo {
	return &PostgresUserSettingsRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

const settingsColumns = `user_id, ai_model, default_tone, default_platform, custom_api_key_enc,
		email_notifications, auto_save_comments, created_at, updated_at`

func scanSettings(row pgx.Row) (*types.UserSettings, error) {
	var s types.UserSettings
	if err := row.Scan(
		&s.UserID, &s.AIModel, &s.DefaultTone, &s.DefaultPlatform, &s.CustomAPIKeySealed,
		&s.EmailNotifications, &s.AutoSaveComments, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.HasCustomAPIKey = len(s.CustomAPIKeySealed) > 0
	return &s, nil
}

func (r *PostgresUserSettingsRepo) GetSettings(ctx context.Context, userID uuid.UUID) (*types.UserSettings, error) {
	ctx, span := otel.Tracer("UserSettingsRepo").Start(ctx, "GetSettings", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "user_settings"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	query := `SELECT ` + settingsColumns + ` FROM user_settings WHERE user_id = $1`

	settings, err := scanSettings(r.pgpool.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetStatus(codes.Ok, "Settings not found")
		return nil, api.ErrNotFound
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to fetch settings", slog.String("userID", userID.String()), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("%w: get settings: %w", api.ErrPersistence, err)
	}
	span.SetStatus(codes.Ok, "Settings fetched")
	return settings, nil
}

func (r *PostgresUserSettingsRepo) UpsertSettings(ctx context.Context, userID uuid.UUID, params types.UpdateUserSettingsParams, key KeyUpdate) (*types.UserSettings, error) {
	ctx, span := otel.Tracer("UserSettingsRepo").Start(ctx, "UpsertSettings", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "user_settings"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	query := `
		INSERT INTO user_settings (user_id, ai_model, default_tone, default_platform, custom_api_key_enc,
			email_notifications, auto_save_comments)
		VALUES ($1, COALESCE($2, 'default'), COALESCE($3, 'friendly'), COALESCE($4, 'twitter'), $5,
			COALESCE($6, TRUE), COALESCE($7, TRUE))
		ON CONFLICT (user_id) DO UPDATE SET
			ai_model = COALESCE($2, user_settings.ai_model),
			default_tone = COALESCE($3, user_settings.default_tone),
			default_platform = COALESCE($4, user_settings.default_platform),
			custom_api_key_enc = CASE WHEN $8 THEN EXCLUDED.custom_api_key_enc ELSE user_settings.custom_api_key_enc END,
			email_notifications = COALESCE($6, user_settings.email_notifications),
			auto_save_comments = COALESCE($7, user_settings.auto_save_comments),
			updated_at = NOW()
		RETURNING ` + settingsColumns

	row := r.pgpool.QueryRow(ctx, query,
		userID,
		stringPtr(params.AIModel),
		stringPtr(params.DefaultTone),
		stringPtr(params.DefaultPlatform),
		key.Sealed,
		params.EmailNotifications,
		params.AutoSaveComments,
		key.Touch,
	)
	settings, err := scanSettings(row)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to upsert settings", slog.String("userID", userID.String()), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("%w: upsert settings: %w", api.ErrPersistence, err)
	}
	span.SetStatus(codes.Ok, "Settings upserted")
	return settings, nil
}

func stringPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
