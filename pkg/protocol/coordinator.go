package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/igorsilveira/clawnet/pkg/events"
	"github.com/igorsilveira/clawnet/pkg/telemetry"
)

const (
	DefaultReputation      = 50
	DefaultMaxParticipants = 50
	DefaultEscrowWindow    = 24 * time.Hour
	DefaultFramework       = "clawnet"
)

// AuditSink records protocol events. *audit.Logger satisfies it.
type AuditSink interface {
	Log(ctx context.Context, eventType, subjectID, agentID, actor string, detail any) error
}

type Config struct {
	State    *State
	Gateway  Gateway
	Settings Settings
	Logger   *slog.Logger
	Audit    AuditSink
	Events   events.Publisher
	Now      func() time.Time

	// EscrowWindow is the offset from creation to an escrow's deadline.
	EscrowWindow time.Duration

	// AnchorEscrows sends CreateEscrow through the gateway before recording
	// it. Off by default: escrows are recorded locally only.
	AnchorEscrows bool
}

// Coordinator owns the protocol State and is the only component allowed to
// mutate it. Every mutating operation holds the write lock from validation
// until the store update, gateway round trip included.
type Coordinator struct {
	mu            sync.RWMutex
	state         *State
	gateway       Gateway
	settings      Settings
	logger        *slog.Logger
	audit         AuditSink
	events        events.Publisher
	now           func() time.Time
	escrowWindow  time.Duration
	anchorEscrows bool
}

func New(cfg Config) (*Coordinator, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("protocol: gateway is required")
	}
	if cfg.State == nil {
		cfg.State = NewState()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.EscrowWindow <= 0 {
		cfg.EscrowWindow = DefaultEscrowWindow
	}

	return &Coordinator{
		state:         cfg.State,
		gateway:       cfg.Gateway,
		settings:      cfg.Settings,
		logger:        cfg.Logger,
		audit:         cfg.Audit,
		events:        cfg.Events,
		now:           cfg.Now,
		escrowWindow:  cfg.EscrowWindow,
		anchorEscrows: cfg.AnchorEscrows,
	}, nil
}

func (c *Coordinator) Settings() Settings {
	if c == nil {
		return Settings{}
	}
	return c.settings
}

// Initialized reports whether the coordinator has a state to operate on.
func (c *Coordinator) Initialized() bool {
	return c != nil && c.state != nil
}

func (c *Coordinator) Registered() bool {
	if !c.Initialized() {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.registered
}

// Self returns a copy of the local agent.
func (c *Coordinator) Self() (Agent, bool) {
	if !c.Initialized() {
		return Agent{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state.self == nil {
		return Agent{}, false
	}
	return cloneAgent(*c.state.self), true
}

// Register anchors the local identity on chain. Calling it again after a
// successful registration returns the cached agent without a gateway call.
func (c *Coordinator) Register(ctx context.Context, id Identity, capabilities []string) (agent Agent, err error) {
	defer c.observe("register", time.Now(), &err)
	if !c.Initialized() {
		return Agent{}, ErrNotInitialized
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.registered && c.state.self != nil {
		return cloneAgent(*c.state.self), nil
	}

	if err := c.settings.Validate(); err != nil {
		return Agent{}, err
	}
	if id.Name == "" {
		id.Name = c.settings.AgentName
	}
	if id.Name == "" {
		return Agent{}, fmt.Errorf("%w: agent name is empty", ErrInvalidArgument)
	}
	if id.Framework == "" {
		id.Framework = DefaultFramework
	}
	if capabilities == nil {
		capabilities = c.settings.Capabilities
	}

	reg, err := c.gateway.Register(ctx, RegistrationRequest{
		Identity:     id,
		Capabilities: cloneStrings(capabilities),
	})
	if err != nil {
		return Agent{}, deliveryFailed("register", err)
	}
	if reg.AgentID == "" {
		return Agent{}, deliveryFailed("register", errors.New("gateway returned an empty agent id"))
	}

	reputation := DefaultReputation
	if reg.Reputation != nil {
		reputation = clampReputation(*reg.Reputation)
	}

	self := Agent{
		ID:            reg.AgentID,
		Name:          id.Name,
		Description:   id.Description,
		Capabilities:  cloneStrings(capabilities),
		Reputation:    reputation,
		WalletAddress: reg.WalletAddress,
		Status:        StatusOnline,
		Framework:     id.Framework,
		LastActive:    c.now(),
	}
	c.state.self = &self
	c.state.registered = true

	c.logger.Info("agent registered",
		slog.String("agent_id", self.ID),
		slog.String("tx_hash", reg.TxHash),
		slog.Int("reputation", reputation),
	)
	c.record(ctx, events.AgentRegistered, self.ID, map[string]string{"tx_hash": reg.TxHash})
	return cloneAgent(self), nil
}

// DiscoverAgents refreshes the directory from the on-chain listing and
// returns the agents matching f. Matches are upserted into the directory.
func (c *Coordinator) DiscoverAgents(ctx context.Context, f AgentFilter) (found []Agent, err error) {
	defer c.observe("discover_agents", time.Now(), &err)
	if !c.Initialized() {
		return nil, ErrNotInitialized
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireRegistered(); err != nil {
		return nil, err
	}

	listed, err := c.gateway.ListAgents(ctx)
	if err != nil {
		return nil, deliveryFailed("discover_agents", err)
	}

	known, err := c.directory(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(known))
	for i, a := range known {
		index[a.ID] = i
	}
	for _, a := range listed {
		if a.ID == "" || a.ID == c.state.self.ID {
			continue
		}
		if i, ok := index[a.ID]; ok {
			known[i] = cloneAgent(a)
			continue
		}
		index[a.ID] = len(known)
		known = append(known, cloneAgent(a))
	}

	found = FilterAgents(known, f)
	for _, a := range found {
		if err := c.state.agents.Put(ctx, a.ID, a); err != nil {
			return nil, fmt.Errorf("protocol: caching agent %s: %w", a.ID, err)
		}
	}
	c.refreshGauges(ctx)

	c.logger.Debug("agents discovered",
		slog.Int("listed", len(listed)),
		slog.Int("matched", len(found)),
	)
	c.publish(events.AgentsDiscovered, "", len(found))
	return cloneAgents(found), nil
}

// GetAgentReputation resolves an agent's reputation, falling back to
// DefaultReputation for unknown agents. An empty id means the caller.
func (c *Coordinator) GetAgentReputation(ctx context.Context, agentID string) int {
	if !c.Initialized() {
		return DefaultReputation
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	if self := c.state.self; self != nil && (agentID == "" || agentID == self.ID) {
		return self.Reputation
	}
	if agentID == "" {
		return DefaultReputation
	}
	a, ok, err := c.state.agents.Get(ctx, agentID)
	if err != nil || !ok {
		return DefaultReputation
	}
	return a.Reputation
}

// UpdateReputation applies delta to an agent's reputation, clamped to
// 0..100, and returns the new value.
func (c *Coordinator) UpdateReputation(ctx context.Context, agentID string, delta int) (rep int, err error) {
	defer c.observe("update_reputation", time.Now(), &err)
	return c.mutateAgent(ctx, agentID, func(a *Agent) {
		a.Reputation = clampReputation(a.Reputation + delta)
		rep = a.Reputation
	})
}

// TouchAgent records activity for an agent and marks it online.
func (c *Coordinator) TouchAgent(ctx context.Context, agentID string) (err error) {
	defer c.observe("touch_agent", time.Now(), &err)
	_, err = c.mutateAgent(ctx, agentID, func(a *Agent) {
		a.Status = StatusOnline
		a.LastActive = c.now()
	})
	return err
}

// MarkOffline flags an agent offline. Agents are never removed.
func (c *Coordinator) MarkOffline(ctx context.Context, agentID string) (err error) {
	defer c.observe("mark_offline", time.Now(), &err)
	_, err = c.mutateAgent(ctx, agentID, func(a *Agent) {
		a.Status = StatusOffline
	})
	return err
}

func (c *Coordinator) mutateAgent(ctx context.Context, agentID string, fn func(*Agent)) (int, error) {
	if !c.Initialized() {
		return 0, ErrNotInitialized
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if self := c.state.self; self != nil && (agentID == "" || agentID == self.ID) {
		fn(self)
		c.publish(events.AgentUpdated, self.ID, nil)
		return self.Reputation, nil
	}
	if agentID == "" {
		return 0, ErrNotRegistered
	}

	a, ok, err := c.state.agents.Get(ctx, agentID)
	if err != nil {
		return 0, fmt.Errorf("protocol: loading agent %s: %w", agentID, err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: agent %q", ErrNotFound, agentID)
	}
	fn(&a)
	if err := c.state.agents.Put(ctx, a.ID, a); err != nil {
		return 0, fmt.Errorf("protocol: saving agent %s: %w", agentID, err)
	}
	c.publish(events.AgentUpdated, a.ID, nil)
	return a.Reputation, nil
}

// GetProtocolStats is a pure read of the aggregate counts.
func (c *Coordinator) GetProtocolStats(ctx context.Context) (Stats, error) {
	if !c.Initialized() {
		return Stats{}, ErrNotInitialized
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	agents, err := c.state.agents.Len(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("protocol: counting agents: %w", err)
	}
	channels, err := c.state.channels.Len(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("protocol: counting channels: %w", err)
	}
	messages, err := c.state.messages.Len(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("protocol: counting messages: %w", err)
	}
	active := 0
	err = c.state.escrows.Iterate(ctx, func(_ string, e Escrow) bool {
		if e.Status.Active() {
			active++
		}
		return true
	})
	if err != nil {
		return Stats{}, fmt.Errorf("protocol: counting escrows: %w", err)
	}

	stats := Stats{
		TotalAgents:   agents,
		TotalChannels: channels,
		TotalMessages: messages,
		ActiveEscrows: active,
		LastSync:      c.state.lastSync,
		Registered:    c.state.registered,
	}
	if c.state.self != nil {
		stats.TotalAgents++
		self := cloneAgent(*c.state.self)
		stats.CurrentAgent = &self
	}
	return stats, nil
}

func (c *Coordinator) HealthCheck(ctx context.Context) bool {
	if !c.Initialized() {
		return false
	}
	return c.gateway.HealthCheck(ctx)
}

// Sync pulls network statistics from the gateway and stamps lastSync.
func (c *Coordinator) Sync(ctx context.Context) (ns NetworkStats, err error) {
	defer c.observe("sync", time.Now(), &err)
	if !c.Initialized() {
		return NetworkStats{}, ErrNotInitialized
	}

	ns, err = c.gateway.NetworkStats(ctx)
	if err != nil {
		return NetworkStats{}, deliveryFailed("sync", err)
	}

	c.mu.Lock()
	c.state.lastSync = c.now()
	c.refreshGauges(ctx)
	c.mu.Unlock()

	c.publish(events.NetworkSynced, "", ns)
	return ns, nil
}

func (c *Coordinator) Balance(ctx context.Context) (int64, error) {
	if !c.Initialized() {
		return 0, ErrNotInitialized
	}
	bal, err := c.gateway.Balance(ctx)
	if err != nil {
		return 0, deliveryFailed("balance", err)
	}
	return bal, nil
}

func (c *Coordinator) requireRegistered() error {
	if !c.state.registered || c.state.self == nil {
		return ErrNotRegistered
	}
	return nil
}

func (c *Coordinator) directory(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	err := c.state.agents.Iterate(ctx, func(_ string, a Agent) bool {
		agents = append(agents, a)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: reading directory: %w", err)
	}
	return agents, nil
}

func (c *Coordinator) selfID() string {
	if c.state.self == nil {
		return ""
	}
	return c.state.self.ID
}

// touchSelf must be called with the write lock held.
func (c *Coordinator) touchSelf() {
	if c.state.self != nil {
		c.state.self.LastActive = c.now()
	}
}

func (c *Coordinator) record(ctx context.Context, eventType, subject string, detail any) {
	c.publish(eventType, subject, detail)
	if c.audit == nil {
		return
	}
	if err := c.audit.Log(ctx, eventType, subject, c.selfID(), "coordinator", detail); err != nil {
		c.logger.Warn("audit log write failed",
			slog.String("event", eventType),
			slog.String("err", err.Error()),
		)
		telemetry.Metrics.ErrorsTotal.WithLabelValues("audit").Inc()
	}
}

func (c *Coordinator) publish(eventType, subject string, data any) {
	if c.events == nil {
		return
	}
	c.events.Publish(events.Event{
		Type:    eventType,
		Subject: subject,
		AgentID: c.selfID(),
		Time:    c.now(),
		Data:    data,
	})
}

func (c *Coordinator) observe(op string, start time.Time, errp *error) {
	status := "ok"
	if errp != nil && *errp != nil {
		status = KindOf(*errp)
	}
	telemetry.Metrics.OperationsTotal.WithLabelValues(op, status).Inc()
	telemetry.Metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (c *Coordinator) refreshGauges(ctx context.Context) {
	if n, err := c.state.agents.Len(ctx); err == nil {
		telemetry.Metrics.DirectoryAgents.Set(float64(n))
	}
	if n, err := c.state.channels.Len(ctx); err == nil {
		telemetry.Metrics.Channels.Set(float64(n))
	}
	active := 0
	_ = c.state.escrows.Iterate(ctx, func(_ string, e Escrow) bool {
		if e.Status.Active() {
			active++
		}
		return true
	})
	telemetry.Metrics.ActiveEscrows.Set(float64(active))
}

func clampReputation(r int) int {
	switch {
	case r < 0:
		return 0
	case r > 100:
		return 100
	default:
		return r
	}
}

func cloneAgents(in []Agent) []Agent {
	out := make([]Agent, len(in))
	for i, a := range in {
		out[i] = cloneAgent(a)
	}
	return out
}
