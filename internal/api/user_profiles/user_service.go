package userProfiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

const quotaWindow = 24 * time.Hour

var _ UserProfilesService = (*UserProfilesServiceImpl)(nil)

// UserProfilesService owns the daily generation quota.
type UserProfilesService interface {
	// ConsumeDailyPrompt spends one prompt or fails with api.ErrRateLimitExceeded.
	ConsumeDailyPrompt(ctx context.Context, userID uuid.UUID) (*types.Usage, error)
	RefundDailyPrompt(ctx context.Context, userID uuid.UUID) error
	GetUsage(ctx context.Context, userID uuid.UUID) (*types.Usage, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*types.UserProfile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, displayName, avatarURL *string) error
}

type UserProfilesServiceImpl struct {
	logger     *slog.Logger
	repo       UserProfilesRepo
	dailyLimit int
	now        func() time.Time
}

func NewUserProfilesService(repo UserProfilesRepo, dailyLimit int, logger *slog.Logger) *UserProfilesServiceImpl {
	return &UserProfilesServiceImpl{
		logger:     logger,
		repo:       repo,
		dailyLimit: dailyLimit,
		now:        time.Now,
	}
}

func (s *UserProfilesServiceImpl) ConsumeDailyPrompt(ctx context.Context, userID uuid.UUID) (*types.Usage, error) {
	ctx, span := otel.Tracer("UserProfilesService").Start(ctx, "ConsumeDailyPrompt", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	count, resetAt, ok, err := s.repo.ConsumeDailyPrompt(ctx, userID, s.dailyLimit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "consume failed")
		return nil, fmt.Errorf("consume daily prompt: %w", err)
	}
	if !ok {
		span.SetStatus(codes.Error, "quota exhausted")
		return nil, fmt.Errorf("user %s: %w", userID, api.ErrRateLimitExceeded)
	}

	span.SetStatus(codes.Ok, "consumed")
	return s.usage(count, resetAt), nil
}

func (s *UserProfilesServiceImpl) RefundDailyPrompt(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.RefundDailyPrompt(ctx, userID); err != nil {
		return fmt.Errorf("refund daily prompt: %w", err)
	}
	return nil
}

func (s *UserProfilesServiceImpl) GetUsage(ctx context.Context, userID uuid.UUID) (*types.Usage, error) {
	ctx, span := otel.Tracer("UserProfilesService").Start(ctx, "GetUsage", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	profile, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, api.ErrNotFound) {
		return s.usage(0, time.Time{}), nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get profile failed")
		return nil, fmt.Errorf("get usage: %w", err)
	}
	return s.usage(profile.DailyPromptCount, profile.LastResetAt), nil
}

// usage projects the stored counter onto the rolling window. A counter whose
// window has passed reads as zero even though the row is only reset on the
// next consume.
func (s *UserProfilesServiceImpl) usage(count int, lastResetAt time.Time) *types.Usage {
	now := s.now()
	if lastResetAt.IsZero() || !now.Before(lastResetAt.Add(quotaWindow)) {
		count = 0
		lastResetAt = now
	}
	remaining := s.dailyLimit - count
	if remaining < 0 {
		remaining = 0
	}
	return &types.Usage{
		Used:      count,
		Limit:     s.dailyLimit,
		Remaining: remaining,
		ResetsAt:  lastResetAt.Add(quotaWindow).UTC(),
	}
}

func (s *UserProfilesServiceImpl) GetProfile(ctx context.Context, userID uuid.UUID) (*types.UserProfile, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, api.ErrNotFound) {
		return &types.UserProfile{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

func (s *UserProfilesServiceImpl) UpdateProfile(ctx context.Context, userID uuid.UUID, displayName, avatarURL *string) error {
	l := s.logger.With(slog.String("method", "UpdateProfile"), slog.String("userID", userID.String()))
	if err := s.repo.UpsertProfile(ctx, userID, displayName, avatarURL); err != nil {
		l.ErrorContext(ctx, "Failed to update profile", slog.Any("error", err))
		return fmt.Errorf("update profile: %w", err)
	}
	l.InfoContext(ctx, "Profile updated")
	return nil
}
