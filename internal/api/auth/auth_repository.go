package auth

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
)

var _ UserRepository = (*PostgresUserRepo)(nil)

type UserRepository interface {
	UpsertUser(ctx context.Context, userID uuid.UUID, email string) error
}

type PostgresUserRepo struct {
	logger *slog.Logger
	pgpool database.Pool
}

func NewPostgresUserRepo(pgpool database.Pool, logger *slog.Logger) *PostgresUserRepo {
	return &PostgresUserRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

// UpsertUser creates the users mirror row, refreshing the email if it changed.
func (r *PostgresUserRepo) UpsertUser(ctx context.Context, userID uuid.UUID, email string) error {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "UpsertUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	query := `
		INSERT INTO users (id, email)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email
		WHERE users.email IS DISTINCT FROM EXCLUDED.email`

	if _, err := r.pgpool.Exec(ctx, query, userID, email); err != nil {
		r.logger.ErrorContext(ctx, "Failed to upsert user", slog.String("userID", userID.String()), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB exec failed")
		return fmt.Errorf("%w: upsert user: %w", api.ErrPersistence, err)
	}
	span.SetStatus(codes.Ok, "User upserted")
	return nil
}
