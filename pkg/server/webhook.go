package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/igorsilveira/clawnet/pkg/protocol"
	"github.com/igorsilveira/clawnet/pkg/telemetry"
)

const SignatureHeader = "X-Clawnet-Signature"

// Callback events a gateway may push back to the node.
const (
	CallbackMessageStatus    = "message.status"
	CallbackAgentActive      = "agent.active"
	CallbackAgentOffline     = "agent.offline"
	CallbackReputationUpdate = "reputation.update"
)

type WebhookPayload struct {
	Event   string          `json:"event"`
	Source  string          `json:"source"`
	Payload json.RawMessage `json:"payload"`
}

type WebhookFunc func(ctx context.Context, payload WebhookPayload) error

type WebhookHandler struct {
	secret   string
	handlers map[string]WebhookFunc
	mu       sync.RWMutex
}

// NewWebhookHandler verifies an HMAC-SHA256 hex signature of the body when
// secret is non-empty.
func NewWebhookHandler(secret string) *WebhookHandler {
	return &WebhookHandler{
		secret:   secret,
		handlers: make(map[string]WebhookFunc),
	}
}

func (wh *WebhookHandler) On(event string, fn WebhookFunc) {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	wh.handlers[event] = fn
}

type messageStatusCallback struct {
	MessageID string                 `json:"messageId"`
	Status    protocol.MessageStatus `json:"status"`
}

type agentCallback struct {
	AgentID string `json:"agentId"`
	Delta   int    `json:"delta"`
}

// GatewayCallbacks returns a handler that applies delivery receipts, presence
// and reputation changes reported by the gateway.
func GatewayCallbacks(coord *protocol.Coordinator, secret string) *WebhookHandler {
	wh := NewWebhookHandler(secret)

	wh.On(CallbackMessageStatus, func(ctx context.Context, p WebhookPayload) error {
		var cb messageStatusCallback
		if err := json.Unmarshal(p.Payload, &cb); err != nil {
			return fmt.Errorf("%w: %v", protocol.ErrInvalidArgument, err)
		}
		_, err := coord.UpdateMessageStatus(ctx, cb.MessageID, cb.Status)
		return err
	})
	wh.On(CallbackAgentActive, func(ctx context.Context, p WebhookPayload) error {
		cb, err := decodeAgentCallback(p)
		if err != nil {
			return err
		}
		return coord.TouchAgent(ctx, cb.AgentID)
	})
	wh.On(CallbackAgentOffline, func(ctx context.Context, p WebhookPayload) error {
		cb, err := decodeAgentCallback(p)
		if err != nil {
			return err
		}
		return coord.MarkOffline(ctx, cb.AgentID)
	})
	wh.On(CallbackReputationUpdate, func(ctx context.Context, p WebhookPayload) error {
		cb, err := decodeAgentCallback(p)
		if err != nil {
			return err
		}
		_, err = coord.UpdateReputation(ctx, cb.AgentID, cb.Delta)
		return err
	})
	return wh
}

func decodeAgentCallback(p WebhookPayload) (agentCallback, error) {
	var cb agentCallback
	if err := json.Unmarshal(p.Payload, &cb); err != nil {
		return cb, fmt.Errorf("%w: %v", protocol.ErrInvalidArgument, err)
	}
	return cb, nil
}

func (wh *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if wh.secret != "" {
		if !wh.verifySignature(body, r.Header.Get(SignatureHeader)) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	logger := telemetry.FromContext(r.Context())
	logger.Info("webhook received",
		slog.String("event", payload.Event),
		slog.String("source", payload.Source),
	)

	wh.mu.RLock()
	handler, ok := wh.handlers[payload.Event]
	wh.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "handled": false})
		return
	}

	if err := handler(r.Context(), payload); err != nil {
		kind := protocol.KindOf(err)
		logger.Error("webhook handler failed",
			slog.String("event", payload.Event),
			slog.String("err", err.Error()),
		)
		writeJSON(w, statusFor(kind), errorBody{Error: err.Error(), Kind: kind})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "handled": true})
}

func (wh *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(wh.secret, body)), []byte(signature))
}

// Sign returns the hex HMAC-SHA256 of body that callers put in
// SignatureHeader.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
