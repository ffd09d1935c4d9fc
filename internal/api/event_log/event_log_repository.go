package eventLog

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	database "github.com/FACorreiaa/go-comment-suggestions/app/db"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

var _ Recorder = (*PostgresEventLogRepo)(nil)

// Recorder appends audit rows. Rows are never read back by the service.
type Recorder interface {
	Record(ctx context.Context, event types.EventLog) error
}

type PostgresEventLogRepo struct {
	logger *slog.Logger
	pgpool database.Pool
}

func NewPostgresEventLogRepo(pgpool database.Pool, logger *slog.Logger) *PostgresEventLogRepo {
	return &PostgresEventLogRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresEventLogRepo) Record(ctx context.Context, event types.EventLog) error {
	ctx, span := otel.Tracer("EventLogRepo").Start(ctx, "Record", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "event_logs"),
		attribute.String("event.type", event.EventType),
	))
	defer span.End()

	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	query := `INSERT INTO event_logs (user_id, event_type, metadata) VALUES ($1, $2, $3)`
	if _, err := r.pgpool.Exec(ctx, query, event.UserID, event.EventType, metadata); err != nil {
		r.logger.WarnContext(ctx, "Failed to record event",
			slog.String("event_type", event.EventType),
			slog.String("userID", event.UserID.String()),
			slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB exec failed")
		return fmt.Errorf("%w: record event: %w", api.ErrPersistence, err)
	}
	span.SetStatus(codes.Ok, "Event recorded")
	return nil
}
