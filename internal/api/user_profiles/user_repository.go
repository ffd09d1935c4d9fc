package userProfiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

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

var _ UserProfilesRepo = (*PostgresUserProfilesRepo)(nil)

// UserProfilesRepo persists profiles and the daily prompt counter.
type UserProfilesRepo interface {
	// ConsumeDailyPrompt atomically resets the counter if the rolling day has
	// passed and increments it if it is below limit. ok is false when the
	// quota is exhausted; nothing is written in that case.
	ConsumeDailyPrompt(ctx context.Context, userID uuid.UUID, limit int) (count int, lastResetAt time.Time, ok bool, err error)
	// RefundDailyPrompt gives back one prompt, never going below zero.
	RefundDailyPrompt(ctx context.Context, userID uuid.UUID) error
	// GetProfile returns api.ErrNotFound when the profile was never created.
	GetProfile(ctx context.Context, userID uuid.UUID) (*types.UserProfile, error)
	// UpsertProfile creates the profile lazily; nil fields keep their value.
	UpsertProfile(ctx context.Context, userID uuid.UUID, displayName, avatarURL *string) error
}

type PostgresUserProfilesRepo struct {
	logger *slog.Logger
	pgpool database.Pool
}

func NewPostgresUserProfilesRepo(pgpool database.Pool, logger *slog.Logger) *PostgresUserProfilesRepo {
	return &PostgresUserProfilesRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresUserProfilesRepo) ConsumeDailyPrompt(ctx context.Context, userID uuid.UUID, limit int) (int, time.Time, bool, error) {
	ctx, span := otel.Tracer("UserProfilesRepo").Start(ctx, "ConsumeDailyPrompt", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "user_profiles"),
		attribute.String("db.user.id", userID.String()),
		attribute.Int("quota.limit", limit),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "ConsumeDailyPrompt"), slog.String("userID", userID.String()))

	// The conflict branch runs under the row lock, so concurrent requests for
	// the same user see each other's increments.
	query := `
		INSERT INTO user_profiles (user_id, daily_prompt_count, last_reset_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			daily_prompt_count = CASE
				WHEN user_profiles.last_reset_at <= NOW() - INTERVAL '24 hours' THEN 1
				ELSE user_profiles.daily_prompt_count + 1
			END,
			last_reset_at = CASE
				WHEN user_profiles.last_reset_at <= NOW() - INTERVAL '24 hours' THEN NOW()
				ELSE user_profiles.last_reset_at
			END,
			updated_at = NOW()
		WHERE user_profiles.last_reset_at <= NOW() - INTERVAL '24 hours'
		   OR user_profiles.daily_prompt_count < $2
		RETURNING daily_prompt_count, last_reset_at`

	var count int
	var resetAt time.Time
	err := r.pgpool.QueryRow(ctx, query, userID, limit).Scan(&count, &resetAt)
	if errors.Is(err, pgx.ErrNoRows) {
		l.InfoContext(ctx, "Daily quota exhausted")
		span.SetStatus(codes.Ok, "Quota exhausted")
		return 0, time.Time{}, false, nil
	}
	if err != nil {
		l.ErrorContext(ctx, "Failed to consume daily prompt", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return 0, time.Time{}, false, fmt.Errorf("%w: consume daily prompt: %w", api.ErrPersistence, err)
	}

	span.SetStatus(codes.Ok, "Prompt consumed")
	return count, resetAt, true, nil
}

func (r *PostgresUserProfilesRepo) RefundDailyPrompt(ctx context.Context, userID uuid.UUID) error {
	ctx, span := otel.Tracer("UserProfilesRepo").Start(ctx, "RefundDailyPrompt", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "user_profiles"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	query := `
		UPDATE user_profiles
		SET daily_prompt_count = GREATEST(daily_prompt_count - 1, 0), updated_at = NOW()
		WHERE user_id = $1`

	if _, err := r.pgpool.Exec(ctx, query, userID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB exec failed")
		return fmt.Errorf("%w: refund daily prompt: %w", api.ErrPersistence, err)
	}
	span.SetStatus(codes.Ok, "Prompt refunded")
	return nil
}

func (r *PostgresUserProfilesRepo) GetProfile(ctx context.Context, userID uuid.UUID) (*types.UserProfile, error) {
	ctx, span := otel.Tracer("UserProfilesRepo").Start(ctx, "GetProfile", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "user_profiles"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	query := `
		SELECT user_id, display_name, avatar_url, daily_prompt_count, last_reset_at, created_at, updated_at
		FROM user_profiles
		WHERE user_id = $1`

	var p types.UserProfile
	err := r.pgpool.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.DisplayName, &p.AvatarURL, &p.DailyPromptCount, &p.LastResetAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetStatus(codes.Ok, "Profile not found")
		return nil, api.ErrNotFound
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to fetch profile", slog.String("userID", userID.String()), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("%w: get profile: %w", api.ErrPersistence, err)
	}
	span.SetStatus(codes.Ok, "Profile fetched")
	return &p, nil
}

func (r *PostgresUserProfilesRepo) UpsertProfile(ctx context.Context, userID uuid.UUID, displayName, avatarURL *string) error {
	ctx, span := otel.Tracer("UserProfilesRepo").Start(ctx, "UpsertProfile", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "user_profiles"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	query := `
		INSERT INTO user_profiles (user_id, display_name, avatar_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = COALESCE(EXCLUDED.display_name, user_profiles.display_name),
			avatar_url = COALESCE(EXCLUDED.avatar_url, user_profiles.avatar_url),
			updated_at = NOW()`

	if _, err := r.pgpool.Exec(ctx, query, userID, displayName, avatarURL); err != nil {
		r.logger.ErrorContext(ctx, "Failed to upsert profile", slog.String("userID", userID.String()), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB exec failed")
		return fmt.Errorf("%w: upsert profile: %w", api.ErrPersistence, err)
	}
	span.SetStatus(codes.Ok, "Profile upserted")
	return nil
}
