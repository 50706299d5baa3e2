package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/igorsilveira/clawnet/pkg/protocol"
)

var errBadParams = errors.New("invalid params")

type HandlerConfig struct {
	Gateway   protocol.Gateway
	Logger    *slog.Logger
	AuthToken string
}

// Handler serves a Gateway over JSON-RPC so a Simulator can stand in for a
// remote chain gateway. Gateway failures come back as ErrCodeRejected.
type Handler struct {
	router    chi.Router
	gateway   protocol.Gateway
	logger    *slog.Logger
	authToken string
}

type rpcMethod func(ctx context.Context, params json.RawMessage) (any, error)

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &Handler{
		gateway:   cfg.Gateway,
		logger:    cfg.Logger,
		authToken: cfg.AuthToken,
	}
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		if h.authToken != "" {
			r.Use(h.authMiddleware)
		}
		r.Post("/", h.handleJSONRPC)
	})
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header || token != h.authToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) methods() map[string]rpcMethod {
	return map[string]rpcMethod{
		MethodRegister: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p protocol.RegistrationRequest
			if err := decodeParams(raw, &p); err != nil {
				return nil, err
			}
			return h.gateway.Register(ctx, p)
		},
		MethodListAgents: func(ctx context.Context, _ json.RawMessage) (any, error) {
			agents, err := h.gateway.ListAgents(ctx)
			if agents == nil {
				agents = []protocol.Agent{}
			}
			return agents, err
		},
		MethodSendMessage: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p messageParams
			if err := decodeParams(raw, &p); err != nil {
				return nil, err
			}
			return h.gateway.SendMessage(ctx, p.RecipientID, p.Content, protocol.MessageType(p.Type))
		},
		MethodCreateChannel: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p channelParams
			if err := decodeParams(raw, &p); err != nil {
				return nil, err
			}
			return h.gateway.CreateChannel(ctx, p.Name, p.Description, p.Private)
		},
		MethodJoinChannel: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p joinParams
			if err := decodeParams(raw, &p); err != nil {
				return nil, err
			}
			joined, err := h.gateway.JoinChannel(ctx, p.ChannelID)
			return joinResult{Joined: joined}, err
		},
		MethodCreateEscrow: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p protocol.EscrowRequest
			if err := decodeParams(raw, &p); err != nil {
				return nil, err
			}
			return h.gateway.CreateEscrow(ctx, p)
		},
		MethodNetworkStats: func(ctx context.Context, _ json.RawMessage) (any, error) {
			return h.gateway.NetworkStats(ctx)
		},
		MethodBalance: func(ctx context.Context, _ json.RawMessage) (any, error) {
			balance, err := h.gateway.Balance(ctx)
			return balanceResult{Balance: balance}, err
		},
		MethodHealth: func(ctx context.Context, _ json.RawMessage) (any, error) {
			return healthResult{OK: h.gateway.HealthCheck(ctx)}, nil
		},
	}
}

func (h *Handler) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, newError(nil, ErrCodeParse, "parse error"))
		return
	}
	if req.JSONRPC != "2.0" {
		writeJSON(w, http.StatusOK, newError(req.ID, ErrCodeInvalidReq, "invalid jsonrpc version"))
		return
	}

	method, ok := h.methods()[req.Method]
	if !ok {
		writeJSON(w, http.StatusOK, newError(req.ID, ErrCodeNotFound, fmt.Sprintf("method %q not found", req.Method)))
		return
	}

	result, err := method(r.Context(), req.Params)
	switch {
	case errors.Is(err, errBadParams):
		writeJSON(w, http.StatusOK, newError(req.ID, ErrCodeParams, err.Error()))
	case err != nil:
		h.logger.Info("gateway rejected call",
			slog.String("method", req.Method),
			slog.String("err", err.Error()),
		)
		writeJSON(w, http.StatusOK, newError(req.ID, ErrCodeRejected, err.Error()))
	default:
		writeJSON(w, http.StatusOK, newResult(req.ID, result))
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing params", errBadParams)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", errBadParams, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
