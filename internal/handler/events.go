package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/session-gateway-go/internal/errors"
	"github.com/openclaw/session-gateway-go/internal/session"
	"github.com/openclaw/session-gateway-go/internal/sse"
	"github.com/openclaw/session-gateway-go/internal/util"
)

type sessionStates interface {
	SessionState(id string) (session.State, bool)
}

type EventsHandler struct {
	broker *sse.Broker
	states sessionStates
}

func NewEventsHandler(broker *sse.Broker, states sessionStates) *EventsHandler {
	return &EventsHandler{
		broker: broker,
		states: states,
	}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if !util.IsValidSessionID(sessionID) {
		writeError(w, apperrors.InvalidInput("id", "invalid session id"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(sessionID)
	defer h.broker.Unsubscribe(client)

	log.Info().Str("sessionId", sessionID).Msg("sse connection established")

	state, tracked := h.states.SessionState(sessionID)
	initial := map[string]any{
		"sessionId":       sessionID,
		"tracked":         tracked,
		"phase":           state.Phase,
		"isConnected":     state.IsConnected,
		"isAuthenticated": state.IsAuthenticated,
	}
	if state.HasPairingCode() {
		initial["qr"] = state.QRImage
	}
	if err := h.sendEvent(w, flusher, "state", initial); err != nil {
		log.Debug().Err(err).Str("sessionId", sessionID).Msg("failed to send initial state")
		return
	}

	ctx := r.Context()
	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("sessionId", sessionID).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("sessionId", sessionID).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("sessionId", sessionID).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
