package comments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	database "github.com/FACorreiaa/go-comment-suggestions/app/db"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

var _ CommentsRepository = (*PostgresCommentsRepo)(nil)

type CommentsRepository interface {
	// SaveComments inserts all rows in one transaction and fills in ID and
	// CreatedAt.
	SaveComments(ctx context.Context, comments []types.GeneratedComment) error
	ListComments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]types.GeneratedComment, error)
	DeleteComments(ctx context.Context, userID uuid.UUID) (int64, error)
}

type PostgresCommentsRepo struct {
	logger *slog.Logger
	pgpool database.Pool
}

func NewPostgresCommentsRepo(pgpool database.Pool, logger *slog.Logger) *PostgresCommentsRepo {
	return &PostgresCommentsRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresCommentsRepo) SaveComments(ctx context.Context, comments []types.GeneratedComment) error {
	ctx, span := otel.Tracer("CommentsRepo").Start(ctx, "SaveComments", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "generated_comments"),
		attribute.Int("comments.count", len(comments)),
	))
	defer span.End()

	if len(comments) == 0 {
		return nil
	}

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin failed")
		return fmt.Errorf("%w: begin: %w", api.ErrPersistence, err)
	}

	query := `
		INSERT INTO generated_comments (user_id, original_post, platform, tone, comment_text, character_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	for i := range comments {
		c := &comments[i]
		if err := tx.QueryRow(ctx, query,
			c.UserID, c.OriginalPost, string(c.Platform), string(c.Tone), c.CommentText, c.CharacterCount,
		).Scan(&c.ID, &c.CreatedAt); err != nil {
			_ = tx.Rollback(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, "insert failed")
			return fmt.Errorf("%w: insert comment: %w", api.ErrPersistence, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return fmt.Errorf("%w: commit: %w", api.ErrPersistence, err)
	}
	span.SetStatus(codes.Ok, "Comments saved")
	return nil
}

func (r *PostgresCommentsRepo) ListComments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]types.GeneratedComment, error) {
	ctx, span := otel.Tracer("CommentsRepo").Start(ctx, "ListComments", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "generated_comments"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "ListComments"), slog.String("userID", userID.String()))

	query := `
		SELECT id, user_id, original_post, platform, tone, comment_text, character_count, created_at
		FROM generated_comments
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pgpool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		l.ErrorContext(ctx, "Failed to query comments", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("%w: list comments: %w", api.ErrPersistence, err)
	}
	defer rows.Close()

	out := make([]types.GeneratedComment, 0, limit)
	for rows.Next() {
		var c types.GeneratedComment
		var platform, tone string
		if err := rows.Scan(&c.ID, &c.UserID, &c.OriginalPost, &platform, &tone, &c.CommentText, &c.CharacterCount, &c.CreatedAt); err != nil {
			l.ErrorContext(ctx, "Failed to scan comment row", slog.Any("error", err))
			span.RecordError(err)
			return nil, fmt.Errorf("%w: scan comment: %w", api.ErrPersistence, err)
		}
		c.Platform = types.Platform(platform)
		c.Tone = types.Tone(tone)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: read comments: %w", api.ErrPersistence, err)
	}

	span.SetStatus(codes.Ok, "Comments listed")
	return out, nil
}

func (r *PostgresCommentsRepo) DeleteComments(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx, span := otel.Tracer("CommentsRepo").Start(ctx, "DeleteComments", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "generated_comments"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	tag, err := r.pgpool.Exec(ctx, `DELETE FROM generated_comments WHERE user_id = $1`, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to delete comments", slog.String("userID", userID.String()), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB exec failed")
		return 0, fmt.Errorf("%w: delete comments: %w", api.ErrPersistence, err)
	}
	span.SetStatus(codes.Ok, "Comments deleted")
	return tag.RowsAffected(), nil
}
