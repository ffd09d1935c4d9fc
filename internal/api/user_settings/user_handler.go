package userSettings

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api/auth"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

type SettingsHandler struct {
	service SettingsService
	logger  *slog.Logger
}

func NewSettingsHandler(service SettingsService, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		service: service,
		logger:  logger,
	}
}

// GetUserSettings godoc
// @Summary      Get settings and profile
// @Tags         settings
// @Produce      json
// @Success      200 {object} types.SettingsView
// @Failure      401 {object} api.ErrorBody
// @Router       /settings [get]
func (h *SettingsHandler) GetUserSettings(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("SettingsHandler").Start(r.Context(), "GetUserSettings", trace.WithAttributes(
		attribute.String("http.method", r.Method),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "GetUserSettings"))

	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		api.WriteError(w, r, l, api.ErrUnauthorized)
		return
	}

	view, err := h.service.GetSettings(ctx, session.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get settings failed")
		api.WriteError(w, r, l, err)
		return
	}

	span.SetStatus(codes.Ok, "settings returned")
	api.WriteJSONResponse(w, r, http.StatusOK, view)
}

// UpdateUserSettings godoc
// @Summary      Update settings
// @Tags         settings
// @Accept       json
// @Produce      json
// @Param        body body types.UpdateUserSettingsParams true "Partial settings"
// @Success      200 {object} types.SettingsView
// @Failure      400 {object} api.ErrorBody
// @Router       /settings [put]
func (h *SettingsHandler) UpdateUserSettings(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("SettingsHandler").Start(r.Context(), "UpdateUserSettings", trace.WithAttributes(
		attribute.String("http.method", r.Method),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "UpdateUserSettings"))

	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		api.WriteError(w, r, l, api.ErrUnauthorized)
		return
	}

	var params types.UpdateUserSettingsParams
	if err := api.DecodeJSONBody(w, r, &params); err != nil {
		span.SetStatus(codes.Error, "bad body")
		api.WriteError(w, r, l, err)
		return
	}

	view, err := h.service.UpdateSettings(ctx, session.UserID, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update settings failed")
		api.WriteError(w, r, l, err)
		return
	}

	span.SetStatus(codes.Ok, "settings updated")
	api.WriteJSONResponse(w, r, http.StatusOK, view)
}
