package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/coverplace/api/internal/platform/httpx"
	"github.com/coverplace/api/internal/services"
)

const maxPushBodySize = 1 * 1024 * 1024

// NotificationConsumer handles a notification delivered by the push
// subscription, typically by rendering and sending the recipient mails.
type NotificationConsumer interface {
	ConsumeNotification(ctx context.Context, message services.NotificationMessage) error
}

// NotificationConsumerFunc adapts a function to the NotificationConsumer interface.
type NotificationConsumerFunc func(ctx context.Context, message services.NotificationMessage) error

// ConsumeNotification invokes the wrapped function.
func (f NotificationConsumerFunc) ConsumeNotification(ctx context.Context, message services.NotificationMessage) error {
	return f(ctx, message)
}

// NotificationHandlers receives Pub/Sub push deliveries for the notification
// topic. The route is protected by an OIDC middleware at the router level; the
// shared token is a second factor for environments without OIDC push auth.
type NotificationHandlers struct {
	consumer  NotificationConsumer
	pushToken string
}

// NewNotificationHandlers constructs the push delivery handlers.
func NewNotificationHandlers(consumer NotificationConsumer, pushToken string) *NotificationHandlers {
	return &NotificationHandlers{
		consumer:  consumer,
		pushToken: strings.TrimSpace(pushToken),
	}
}

// Routes wires the push endpoint onto the provided router.
func (h *NotificationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/notifications/push", h.receivePush)
}

// pushEnvelope is the wrapper Pub/Sub wraps around pushed messages.
type pushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		MessageID  string            `json:"messageId"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func (h *NotificationHandlers) receivePush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.consumer == nil {
		httpx.WriteError(ctx, w, httpx.NewError("consumer_unavailable", "notification consumer unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.pushToken != "" {
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.pushToken)) != 1 {
			httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "invalid push token", http.StatusUnauthorized))
			return
		}
	}

	body, err := readLimitedBody(r, maxPushBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var envelope pushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Message.Data) == 0 {
		// Fall back to a raw message for local testing without the wrapper.
		envelope.Message.Data = body
	}

	var message services.NotificationMessage
	data := envelope.Message.Data
	if err := json.Unmarshal(data, &message); err != nil || message.Type == "" {
		// Malformed payloads are acked and dropped; retrying cannot fix them.
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "discarded"})
		return
	}

	if err := h.consumer.ConsumeNotification(ctx, message); err != nil {
		// Non-2xx nacks the delivery so Pub/Sub redelivers.
		httpx.WriteError(ctx, w, httpx.NewError("consume_failed", "notification could not be processed", http.StatusInternalServerError))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
