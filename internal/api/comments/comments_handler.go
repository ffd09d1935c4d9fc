package comments

import (
	"log/slog"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api/auth"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type CommentsHandler struct {
	service CommentsService
	logger  *slog.Logger
}

func NewCommentsHandler(service CommentsService, logger *slog.Logger) *CommentsHandler {
	return &CommentsHandler{
		service: service,
		logger:  logger,
	}
}

// GenerateComments godoc
// @Summary      Generate comment suggestions
// @Description  Consumes one prompt from the daily quota and returns up to three suggestions.
// @Tags         comments
// @Accept       json
// @Produce      json
// @Param        body body types.GenerateRequest true "Post and generation options"
// @Success      200 {object} types.GenerateResponse
// @Failure      400 {object} api.ErrorBody
// @Failure      401 {object} api.ErrorBody
// @Failure      429 {object} api.ErrorBody
// @Failure      503 {object} api.ErrorBody
// @Router       /comments/generate [post]
func (h *CommentsHandler) GenerateComments(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("CommentsHandler").Start(r.Context(), "GenerateComments", trace.WithAttributes(
		attribute.String("http.method", r.Method),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "GenerateComments"))

	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		span.SetStatus(codes.Error, "unauthenticated")
		api.WriteError(w, r, l, api.ErrUnauthorized)
		return
	}

	var req types.GenerateRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		span.SetStatus(codes.Error, "bad body")
		api.WriteError(w, r, l, err)
		return
	}

	resp, err := h.service.Generate(ctx, session.UserID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		api.WriteError(w, r, l, err)
		return
	}

	span.SetStatus(codes.Ok, "comments generated")
	api.WriteJSONResponse(w, r, http.StatusOK, resp)
}

// ListComments godoc
// @Summary      List generated comments
// @Tags         comments
// @Produce      json
// @Param        limit  query int false "Page size (max 100)"
// @Param        offset query int false "Offset"
// @Success      200 {array} types.GeneratedComment
// @Failure      401 {object} api.ErrorBody
// @Router       /comments [get]
func (h *CommentsHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("CommentsHandler").Start(r.Context(), "ListComments", trace.WithAttributes(
		attribute.String("http.method", r.Method),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "ListComments"))

	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		span.SetStatus(codes.Error, "unauthenticated")
		api.WriteError(w, r, l, api.ErrUnauthorized)
		return
	}

	limit, offset, err := pagination(r)
	if err != nil {
		api.WriteError(w, r, l, err)
		return
	}

	comments, err := h.service.ListComments(ctx, session.UserID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		api.WriteError(w, r, l, err)
		return
	}

	span.SetStatus(codes.Ok, "comments listed")
	api.WriteJSONResponse(w, r, http.StatusOK, comments)
}

// ClearComments godoc
// @Summary      Delete all generated comments of the caller
// @Tags         comments
// @Produce      json
// @Success      200 {object} map[string]int64
// @Failure      401 {object} api.ErrorBody
// @Router       /comments [delete]
func (h *CommentsHandler) ClearComments(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("CommentsHandler").Start(r.Context(), "ClearComments", trace.WithAttributes(
		attribute.String("http.method", r.Method),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "ClearComments"))

	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		span.SetStatus(codes.Error, "unauthenticated")
		api.WriteError(w, r, l, api.ErrUnauthorized)
		return
	}

	n, err := h.service.ClearComments(ctx, session.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "clear failed")
		api.WriteError(w, r, l, err)
		return
	}

	span.SetStatus(codes.Ok, "comments cleared")
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]int64{"deleted": n})
}

func pagination(r *http.Request) (int, int, error) {
	limit, offset := defaultPageSize, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, api.NewValidationError("limit", "must be a positive integer")
		}
		limit = min(n, maxPageSize)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, api.NewValidationError("offset", "must be a non-negative integer")
		}
		offset = n
	}
	return limit, offset, nil
}
