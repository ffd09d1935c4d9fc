package userProfiles

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api/auth"
)

type UserProfilesHandler struct {
	service UserProfilesService
	logger  *slog.Logger
}

func NewUserProfilesHandler(service UserProfilesService, logger *slog.Logger) *UserProfilesHandler {
	return &UserProfilesHandler{
		service: service,
		logger:  logger,
	}
}

// GetUsage godoc
// @Summary      Daily generation usage
// @Tags         usage
// @Produce      json
// @Success      200 {object} types.Usage
// @Failure      401 {object} api.ErrorBody
// @Router       /usage [get]
func (h *UserProfilesHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("UserProfilesHandler").Start(r.Context(), "GetUsage", trace.WithAttributes(
		attribute.String("http.method", r.Method),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "GetUsage"))

	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		span.SetStatus(codes.Error, "unauthenticated")
		api.WriteError(w, r, l, api.ErrUnauthorized)
		return
	}

	usage, err := h.service.GetUsage(ctx, session.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get usage failed")
		api.WriteError(w, r, l, err)
		return
	}

	span.SetStatus(codes.Ok, "usage returned")
	api.WriteJSONResponse(w, r, http.StatusOK, usage)
}
