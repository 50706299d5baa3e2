package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/igorsilveira/clawnet/pkg/protocol"
	"github.com/igorsilveira/clawnet/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultRateLimit = 10
	defaultBurst     = 5
)

type ClientConfig struct {
	Endpoint  string
	ProgramID string
	// WalletKey authenticates this agent to the gateway, which signs on its
	// behalf. It is sent as a bearer token and never used locally.
	WalletKey  string
	HTTPClient *http.Client
	Timeout    time.Duration
	RateLimit  float64
	Burst      int
	Logger     *slog.Logger
}

// RPCClient talks JSON-RPC 2.0 over HTTP to a chain gateway. Calls are rate
// limited client-side and each one is traced.
type RPCClient struct {
	endpoint   string
	programID  string
	walletKey  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	nextID     atomic.Int64
}

var _ protocol.Gateway = (*RPCClient)(nil)

func NewRPCClient(cfg ClientConfig) (*RPCClient, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("chain: invalid endpoint %q", cfg.Endpoint)
	}
	if u.Scheme == "ws" || u.Scheme == "wss" {
		u.Scheme = "http" + u.Scheme[2:]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &RPCClient{
		endpoint:   u.String(),
		programID:  cfg.ProgramID,
		walletKey:  cfg.WalletKey,
		httpClient: cfg.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		logger:     cfg.Logger.With(slog.String("component", "chain")),
	}, nil
}

func (c *RPCClient) call(ctx context.Context, method string, params, out any) (err error) {
	ctx, done := telemetry.ObserveCall(ctx, method, attribute.String("chain.program_id", c.programID))
	defer func() { done(err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("chain: %s: rate limiter: %w", method, err)
	}

	var rawParams json.RawMessage
	if params != nil {
		rawParams, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("chain: %s: encoding params: %w", method, err)
		}
	}
	body, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return fmt.Errorf("chain: %s: encoding request: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chain: %s: creating request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Program-Id", c.programID)
	if c.walletKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.walletKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("chain: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chain: %s: http %d: %s", method, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("chain: %s: decoding response: %w", method, err)
	}
	c.logger.Debug("rpc call",
		slog.String("method", method),
		slog.Duration("elapsed", time.Since(start)),
	)
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("chain: %s: decoding result: %w", method, err)
	}
	return nil
}

func (c *RPCClient) Register(ctx context.Context, req protocol.RegistrationRequest) (protocol.Registration, error) {
	var reg protocol.Registration
	err := c.call(ctx, MethodRegister, req, &reg)
	return reg, err
}

func (c *RPCClient) ListAgents(ctx context.Context) ([]protocol.Agent, error) {
	var agents []protocol.Agent
	err := c.call(ctx, MethodListAgents, nil, &agents)
	return agents, err
}

func (c *RPCClient) SendMessage(ctx context.Context, recipientID, content string, typ protocol.MessageType) (protocol.Receipt, error) {
	var r protocol.Receipt
	err := c.call(ctx, MethodSendMessage, messageParams{RecipientID: recipientID, Content: content, Type: string(typ)}, &r)
	return r, err
}

func (c *RPCClient) CreateChannel(ctx context.Context, name, description string, private bool) (protocol.Receipt, error) {
	var r protocol.Receipt
	err := c.call(ctx, MethodCreateChannel, channelParams{Name: name, Description: description, Private: private}, &r)
	return r, err
}

func (c *RPCClient) JoinChannel(ctx context.Context, channelID string) (bool, error) {
	var res joinResult
	err := c.call(ctx, MethodJoinChannel, joinParams{ChannelID: channelID}, &res)
	return res.Joined, err
}

func (c *RPCClient) CreateEscrow(ctx context.Context, req protocol.EscrowRequest) (protocol.Receipt, error) {
	var r protocol.Receipt
	err := c.call(ctx, MethodCreateEscrow, req, &r)
	return r, err
}

func (c *RPCClient) NetworkStats(ctx context.Context) (protocol.NetworkStats, error) {
	var ns protocol.NetworkStats
	err := c.call(ctx, MethodNetworkStats, nil, &ns)
	return ns, err
}

func (c *RPCClient) Balance(ctx context.Context) (int64, error) {
	var res balanceResult
	err := c.call(ctx, MethodBalance, nil, &res)
	return res.Balance, err
}

// HealthCheck reports false on any transport or RPC failure.
func (c *RPCClient) HealthCheck(ctx context.Context) bool {
	var res healthResult
	if err := c.call(ctx, MethodHealth, nil, &res); err != nil {
		c.logger.Warn("gateway health check failed", slog.String("err", err.Error()))
		return false
	}
	return res.OK
}
