package comments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-comment-suggestions/app/observability/metrics"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	eventLog "github.com/FACorreiaa/go-comment-suggestions/internal/api/event_log"
	generativeAI "github.com/FACorreiaa/go-comment-suggestions/internal/api/generative_ai"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api/sanitize"
	userSettings "github.com/FACorreiaa/go-comment-suggestions/internal/api/user_settings"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

var _ CommentsService = (*CommentsServiceImpl)(nil)

type CommentsService interface {
	Generate(ctx context.Context, userID uuid.UUID, req types.GenerateRequest) (*types.GenerateResponse, error)
	ListComments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]types.GeneratedComment, error)
	ClearComments(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Quota is the daily prompt allowance.
type Quota interface {
	ConsumeDailyPrompt(ctx context.Context, userID uuid.UUID) (*types.Usage, error)
	RefundDailyPrompt(ctx context.Context, userID uuid.UUID) error
}

// PreferencesSource supplies per-user model and key overrides.
type PreferencesSource interface {
	GenerationPreferences(ctx context.Context, userID uuid.UUID) (userSettings.GenerationPreferences, error)
}

type CommentsServiceImpl struct {
	logger    *slog.Logger
	repo      CommentsRepository
	quota     Quota
	prefs     PreferencesSource
	completer generativeAI.Completer
	events    eventLog.Recorder
	cooldown  Cooldown
	metrics   *metrics.AppMetrics
	validate  *validator.Validate

	cooldownTTL time.Duration
}

func NewCommentsService(
	repo CommentsRepository,
	quota Quota,
	prefs PreferencesSource,
	completer generativeAI.Completer,
	events eventLog.Recorder,
	cooldown Cooldown,
	cooldownTTL time.Duration,
	logger *slog.Logger,
) *CommentsServiceImpl {
	return &CommentsServiceImpl{
		logger:      logger,
		repo:        repo,
		quota:       quota,
		prefs:       prefs,
		completer:   completer,
		events:      events,
		cooldown:    cooldown,
		metrics:     metrics.Get(),
		validate:    api.NewValidator(),
		cooldownTTL: cooldownTTL,
	}
}

// validateRequest rejects bad input before anything external is touched and
// returns the sanitized post and the effective max length.
func (s *CommentsServiceImpl) validateRequest(req types.GenerateRequest) (string, int, error) {
	if strings.TrimSpace(req.OriginalPost) == "" {
		return "", 0, api.NewValidationError("originalPost", "must not be empty")
	}
	if err := api.ValidateStruct(s.validate, req); err != nil {
		return "", 0, err
	}
	if !req.Platform.Valid() {
		return "", 0, api.NewValidationError("platform", "unsupported platform")
	}
	if !req.Tone.Valid() {
		return "", 0, api.NewValidationError("tone", "unsupported tone")
	}

	maxLength := req.Platform.DefaultMaxLength()
	if req.MaxLength != nil {
		maxLength = *req.MaxLength
	}

	post := sanitize.Text(req.OriginalPost)
	if post == "" {
		return "", 0, api.NewValidationError("originalPost", "has no text content")
	}
	return post, maxLength, nil
}

func (s *CommentsServiceImpl) Generate(ctx context.Context, userID uuid.UUID, req types.GenerateRequest) (*types.GenerateResponse, error) {
	ctx, span := otel.Tracer("CommentsService").Start(ctx, "Generate", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("comments.platform", string(req.Platform)),
		attribute.String("comments.tone", string(req.Tone)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Generate"), slog.String("userID", userID.String()))

	post, maxLength, err := s.validateRequest(req)
	if err != nil {
		s.countOutcome(ctx, "invalid")
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	if s.cooldown != nil && s.cooldownTTL > 0 {
		ok, err := s.cooldown.Acquire(ctx, cooldownKey(userID, post, req.Platform, req.Tone, maxLength), s.cooldownTTL)
		if err != nil {
			l.WarnContext(ctx, "Cooldown store unavailable, continuing", slog.Any("error", err))
		} else if !ok {
			s.countOutcome(ctx, "cooldown")
			span.SetStatus(codes.Error, "cooldown")
			return nil, &api.RateLimitError{Message: "Please wait a few seconds before regenerating the same comment."}
		}
	}

	if _, err := s.quota.ConsumeDailyPrompt(ctx, userID); err != nil {
		s.metrics.QuotaRejectionsTotal.Add(ctx, 1)
		s.countOutcome(ctx, "quota")
		span.RecordError(err)
		span.SetStatus(codes.Error, "quota")
		return nil, err
	}

	prefs, err := s.prefs.GenerationPreferences(ctx, userID)
	if err != nil {
		l.WarnContext(ctx, "Falling back to default generation preferences", slog.Any("error", err))
		prefs = userSettings.GenerationPreferences{AutoSave: true}
	}

	start := time.Now()
	raw, err := s.completer.Complete(ctx, generativeAI.CompletionRequest{
		Prompt: BuildPrompt(post, req.Platform, req.Tone, maxLength),
		Model:  prefs.Model,
		APIKey: prefs.APIKey,
	})
	s.metrics.GenerationDurationSeconds.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		l.ErrorContext(ctx, "Completion failed", slog.Any("error", err))
		return nil, s.generationFailed(ctx, span, userID, err)
	}

	texts := ParseSuggestions(raw, maxLength)
	if len(texts) == 0 {
		l.ErrorContext(ctx, "Completion had no usable suggestions", slog.Int("raw_length", len(raw)))
		return nil, s.generationFailed(ctx, span, userID, generativeAI.ErrEmptyCompletion)
	}

	rows := make([]types.GeneratedComment, len(texts))
	for i, text := range texts {
		rows[i] = types.GeneratedComment{
			UserID:         userID,
			OriginalPost:   post,
			Platform:       req.Platform,
			Tone:           req.Tone,
			CommentText:    text,
			CharacterCount: utf8.RuneCountInString(text),
		}
	}

	if prefs.AutoSave {
		if err := s.repo.SaveComments(ctx, rows); err != nil {
			// Archival is best effort; the caller still gets the suggestions.
			l.WarnContext(ctx, "Generated comments not archived",
				slog.String("failure_kind", "archival"),
				slog.Int("count", len(rows)),
				slog.Any("error", err))
			s.metrics.ArchivalFailuresTotal.Add(ctx, int64(len(rows)))
			for i := range rows {
				rows[i].ID = 0
			}
		}
	}

	if err := s.events.Record(ctx, types.EventLog{
		UserID:    userID,
		EventType: types.EventGeneration,
		Metadata: map[string]any{
			"platform": string(req.Platform),
			"tone":     string(req.Tone),
			"count":    len(rows),
		},
	}); err != nil {
		l.WarnContext(ctx, "Audit event not recorded", slog.Any("error", err))
	}

	resp := &types.GenerateResponse{Comments: make([]types.CommentSuggestion, len(rows))}
	for i, row := range rows {
		resp.Comments[i] = types.CommentSuggestion{
			ID:       row.ID,
			Text:     row.CommentText,
			Platform: row.Platform,
			Length:   row.CharacterCount,
		}
	}

	s.countOutcome(ctx, "success")
	l.InfoContext(ctx, "Comments generated", slog.Int("count", len(resp.Comments)))
	span.SetStatus(codes.Ok, "generated")
	return resp, nil
}

// generationFailed hands the prompt back and hides the upstream error.
func (s *CommentsServiceImpl) generationFailed(ctx context.Context, span trace.Span, userID uuid.UUID, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "generation unavailable")
	s.countOutcome(ctx, "unavailable")
	if err := s.quota.RefundDailyPrompt(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "Quota refund failed", slog.String("userID", userID.String()), slog.Any("error", err))
	}
	return fmt.Errorf("%w: %w", api.ErrGenerationUnavailable, cause)
}

func (s *CommentsServiceImpl) countOutcome(ctx context.Context, outcome string) {
	s.metrics.GenerationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (s *CommentsServiceImpl) ListComments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]types.GeneratedComment, error) {
	comments, err := s.repo.ListComments(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

func (s *CommentsServiceImpl) ClearComments(ctx context.Context, userID uuid.UUID) (int64, error) {
	l := s.logger.With(slog.String("method", "ClearComments"), slog.String("userID", userID.String()))

	n, err := s.repo.DeleteComments(ctx, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to clear history", slog.Any("error", err))
		return 0, fmt.Errorf("clear comments: %w", err)
	}
	if err := s.events.Record(ctx, types.EventLog{
		UserID:    userID,
		EventType: types.EventHistoryCleared,
		Metadata:  map[string]any{"deleted": n},
	}); err != nil {
		l.WarnContext(ctx, "Audit event not recorded", slog.Any("error", err))
	}
	l.InfoContext(ctx, "History cleared", slog.Int64("deleted", n))
	return n, nil
}
