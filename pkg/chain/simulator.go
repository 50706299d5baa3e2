package chain

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/igorsilveira/clawnet/pkg/protocol"
	"golang.org/x/crypto/sha3"
)

var (
	ErrChannelNotFound     = errors.New("chain: channel not found")
	ErrInsufficientBalance = errors.New("chain: insufficient balance")
)

const (
	defaultSupply  = 1_000_000_000
	defaultBalance = 10_000
)

// Simulator is an in-process ledger that satisfies protocol.Gateway for
// local development and tests. Every write mines one block and returns a
// Keccak-256 transaction hash.
type Simulator struct {
	mu       sync.Mutex
	agents   []protocol.Agent
	channels map[string]bool
	block    uint64
	supply   uint64
	balance  int64
	healthy  bool
	failures map[string]error
	now      func() time.Time
}

var _ protocol.Gateway = (*Simulator)(nil)

type SimOption func(*Simulator)

func WithAgents(agents ...protocol.Agent) SimOption {
	return func(s *Simulator) {
		s.agents = append(s.agents, agents...)
	}
}

func WithBalance(balance int64) SimOption {
	return func(s *Simulator) { s.balance = balance }
}

func WithClock(now func() time.Time) SimOption {
	return func(s *Simulator) { s.now = now }
}

func NewSimulator(opts ...SimOption) *Simulator {
	s := &Simulator{
		channels: make(map[string]bool),
		supply:   defaultSupply,
		balance:  defaultBalance,
		healthy:  true,
		failures: make(map[string]error),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DemoAgents is the listing `clawnet start --simulate` seeds.
func DemoAgents() []protocol.Agent {
	return []protocol.Agent{
		{ID: "agent-atlas", Name: "Atlas", Description: "Market data and price oracle", Capabilities: []string{"oracle", "analysis"}, Reputation: 92, Status: protocol.StatusOnline, Framework: "eliza"},
		{ID: "agent-quill", Name: "Quill", Description: "Technical writing and summaries", Capabilities: []string{"writing", "research"}, Reputation: 81, Status: protocol.StatusOnline, Framework: "langchain"},
		{ID: "agent-forge", Name: "Forge", Description: "Smart contract review", Capabilities: []string{"audit", "solidity", "rust"}, Reputation: 88, Status: protocol.StatusOffline, Framework: "eliza"},
		{ID: "agent-relay", Name: "Relay", Description: "Cross-network message routing", Capabilities: []string{"routing"}, Reputation: 64, Status: protocol.StatusOnline, Framework: "clawnet"},
	}
}

// Fail makes every later call to method return err. A nil err clears it.
// Method names are the Method* constants.
func (s *Simulator) Fail(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Simulator) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = healthy
}

// Seed adds or replaces listed agents.
func (s *Simulator) Seed(agents ...protocol.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range agents {
		s.upsert(a)
	}
}

func (s *Simulator) upsert(a protocol.Agent) {
	for i := range s.agents {
		if s.agents[i].ID == a.ID {
			s.agents[i] = a
			return
		}
	}
	s.agents = append(s.agents, a)
}

// mine must be called with mu held.
func (s *Simulator) mine(parts ...string) string {
	s.block++
	h := sha3.NewLegacyKeccak256()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.block)
	h.Write(buf[:])
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

func (s *Simulator) check(ctx context.Context, method string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.failures[method]; err != nil {
		return err
	}
	return nil
}

func (s *Simulator) Register(ctx context.Context, req protocol.RegistrationRequest) (protocol.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, MethodRegister); err != nil {
		return protocol.Registration{}, err
	}

	id := "agent-" + uuid.NewString()
	tx := s.mine(MethodRegister, id, req.Identity.Name)
	s.upsert(protocol.Agent{
		ID:            id,
		Name:          req.Identity.Name,
		Description:   req.Identity.Description,
		Capabilities:  append([]string(nil), req.Capabilities...),
		Reputation:    protocol.DefaultReputation,
		WalletAddress: walletFor(id),
		Status:        protocol.StatusOnline,
		Framework:     req.Identity.Framework,
		LastActive:    s.now(),
	})
	return protocol.Registration{AgentID: id, TxHash: tx, WalletAddress: walletFor(id)}, nil
}

func (s *Simulator) ListAgents(ctx context.Context) ([]protocol.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, MethodListAgents); err != nil {
		return nil, err
	}
	out := make([]protocol.Agent, len(s.agents))
	for i, a := range s.agents {
		a.Capabilities = append([]string(nil), a.Capabilities...)
		out[i] = a
	}
	return out, nil
}

func (s *Simulator) SendMessage(ctx context.Context, recipientID, content string, typ protocol.MessageType) (protocol.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, MethodSendMessage); err != nil {
		return protocol.Receipt{}, err
	}
	id := uuid.NewString()
	return protocol.Receipt{ID: id, TxHash: s.mine(MethodSendMessage, id, recipientID, string(typ), content)}, nil
}

func (s *Simulator) CreateChannel(ctx context.Context, name, description string, private bool) (protocol.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, MethodCreateChannel); err != nil {
		return protocol.Receipt{}, err
	}
	id := "channel-" + uuid.NewString()
	s.channels[id] = private
	return protocol.Receipt{ID: id, TxHash: s.mine(MethodCreateChannel, id, name)}, nil
}

func (s *Simulator) JoinChannel(ctx context.Context, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, MethodJoinChannel); err != nil {
		return false, err
	}
	if _, ok := s.channels[channelID]; !ok {
		return false, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	s.mine(MethodJoinChannel, channelID)
	return true, nil
}

// AddChannel makes a channel created elsewhere joinable.
func (s *Simulator) AddChannel(channelID string, private bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channelID] = private
}

func (s *Simulator) CreateEscrow(ctx context.Context, req protocol.EscrowRequest) (protocol.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, MethodCreateEscrow); err != nil {
		return protocol.Receipt{}, err
	}
	if req.Amount > s.balance {
		return protocol.Receipt{}, fmt.Errorf("%w: need %d, have %d", ErrInsufficientBalance, req.Amount, s.balance)
	}
	s.balance -= req.Amount
	id := uuid.NewString()
	return protocol.Receipt{ID: id, TxHash: s.mine(MethodCreateEscrow, id, req.CounterpartyID, fmt.Sprint(req.Amount))}, nil
}

func (s *Simulator) NetworkStats(ctx context.Context) (protocol.NetworkStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, MethodNetworkStats); err != nil {
		return protocol.NetworkStats{}, err
	}
	health := "ok"
	if !s.healthy {
		health = "degraded"
	}
	return protocol.NetworkStats{BlockHeight: s.block, TotalSupply: s.supply, Health: health}, nil
}

func (s *Simulator) Balance(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, MethodBalance); err != nil {
		return 0, err
	}
	return s.balance, nil
}

func (s *Simulator) HealthCheck(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check(ctx, MethodHealth) == nil && s.healthy
}

func walletFor(agentID string) string {
	sum := sha3.Sum256([]byte(agentID))
	return hex.EncodeToString(sum[:20])
}
