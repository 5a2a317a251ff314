package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-gateway-go/internal/audit"
	apperrors "github.com/openclaw/session-gateway-go/internal/errors"
	"github.com/openclaw/session-gateway-go/internal/middleware"
	"github.com/openclaw/session-gateway-go/internal/service"
)

// GatewayHandler serves the session endpoints.
type GatewayHandler struct {
	gateway *service.GatewayService
	limiter *middleware.SendRateLimiter
}

func NewGatewayHandler(gateway *service.GatewayService, limiter *middleware.SendRateLimiter) *GatewayHandler {
	return &GatewayHandler{
		gateway: gateway,
		limiter: limiter,
	}
}

func (h *GatewayHandler) GetQR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res, err := h.gateway.GetQR(r.Context(), id)
	if err != nil {
		h.writeQRError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *GatewayHandler) GetFreshQR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	audit.LogFromRequest(r, audit.Event{Type: audit.EventFreshQR, SessionID: id})

	res, err := h.gateway.GetFreshQR(r.Context(), id)
	if err != nil {
		h.writeQRError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *GatewayHandler) Logout(w http.ResponseWriter, r *http.Request) {
	fields, err := formFields(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	id := fields["id"]

	if err := h.gateway.Logout(r.Context(), id); err != nil {
		log.Error().Err(err).Str("sessionId", id).Msg("logout failed")
		writeFailure(w, err, "Failed to logout")
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventLogout, SessionID: id})
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Logged out successfully"})
}

func (h *GatewayHandler) CleanExpired(w http.ResponseWriter, r *http.Request) {
	count, err := h.gateway.CleanExpired(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("clean expired failed")
		writeFailure(w, err, "Failed to clean expired sessions")
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventCleanExpired,
		Details: map[string]any{"count": count},
	})
	writeJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: fmt.Sprintf("Cleaned %d expired sessions", count),
		Count:   &count,
	})
}

func (h *GatewayHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	fields, err := formFields(r, "id", "number", "message")
	if err != nil {
		writeError(w, err)
		return
	}
	input := service.SendTextInput{
		ID:      fields["id"],
		Number:  fields["number"],
		Message: fields["message"],
	}

	if h.limiter != nil && input.ID != "" {
		res := h.limiter.Check(r.Context(), input.ID)
		middleware.SetRateLimitHeaders(w, res)
		if !res.Allowed {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventRateLimitExceed, SessionID: input.ID})
			writeError(w, apperrors.RateLimitExceeded())
			return
		}
	}

	if err := h.gateway.SendText(r.Context(), input); err != nil {
		if !apperrors.IsAppError(err) || apperrors.GetCode(err) == apperrors.ErrCodeExternal {
			log.Error().Err(err).Str("sessionId", input.ID).Msg("send message failed")
		}
		writeFailure(w, err, "Failed to send message")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Message sent successfully"})
}

// writeQRError keeps the QR body shape for server errors so polling clients
// can render one format.
func (h *GatewayHandler) writeQRError(w http.ResponseWriter, err error, id string) {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeMissingRequired:
		writeError(w, err)
		return
	}

	log.Error().Err(err).Str("sessionId", id).Msg("qr request failed")
	writeJSON(w, http.StatusInternalServerError, service.QRResult{
		QR: service.QRPayload{Message: "Internal server error"},
	})
}
