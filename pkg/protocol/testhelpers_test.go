package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeGateway struct {
	mu sync.Mutex

	agents      []Agent
	registerErr error
	listErr     error
	sendErr     error
	channelErr  error
	joinErr     error
	joinDecline bool
	escrowErr   error
	statsErr    error
	healthy     bool
	reputation  *int

	registerCalls int
	sendCalls     int
	escrowCalls   int
	joinCalls     int
	seq           int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{healthy: true}
}

func (f *fakeGateway) next(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeGateway) Register(_ context.Context, req RegistrationRequest) (Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	if f.registerErr != nil {
		return Registration{}, f.registerErr
	}
	return Registration{
		AgentID:       "agent-self",
		TxHash:        "0xregister",
		WalletAddress: "wallet-self",
		Reputation:    f.reputation,
	}, nil
}

func (f *fakeGateway) ListAgents(context.Context) ([]Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Agent, len(f.agents))
	copy(out, f.agents)
	return out, nil
}

func (f *fakeGateway) SendMessage(_ context.Context, recipientID, content string, typ MessageType) (Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if f.sendErr != nil {
		return Receipt{}, f.sendErr
	}
	return Receipt{ID: f.next("msg"), TxHash: "0xmsg"}, nil
}

func (f *fakeGateway) CreateChannel(_ context.Context, name, description string, private bool) (Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channelErr != nil {
		return Receipt{}, f.channelErr
	}
	return Receipt{ID: f.next("chan"), TxHash: "0xchan"}, nil
}

func (f *fakeGateway) JoinChannel(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinCalls++
	if f.joinErr != nil {
		return false, f.joinErr
	}
	return !f.joinDecline, nil
}

func (f *fakeGateway) CreateEscrow(_ context.Context, req EscrowRequest) (Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escrowCalls++
	if f.escrowErr != nil {
		return Receipt{}, f.escrowErr
	}
	return Receipt{ID: f.next("escrow"), TxHash: "0xescrow"}, nil
}

func (f *fakeGateway) NetworkStats(context.Context) (NetworkStats, error) {
	if f.statsErr != nil {
		return NetworkStats{}, f.statsErr
	}
	return NetworkStats{BlockHeight: 42, TotalSupply: 1000, Health: "ok"}, nil
}

func (f *fakeGateway) Balance(context.Context) (int64, error) { return 500, nil }

func (f *fakeGateway) HealthCheck(context.Context) bool { return f.healthy }

// fakeClock advances one second per reading so successive operations get
// strictly increasing timestamps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type auditCall struct {
	eventType, subject string
}

type fakeAudit struct {
	mu    sync.Mutex
	calls []auditCall
}

func (a *fakeAudit) Log(_ context.Context, eventType, subjectID, agentID, actor string, detail any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, auditCall{eventType, subjectID})
	return nil
}

func validSettings() Settings {
	return Settings{
		RPCURL:       "https://api.devnet.solana.com",
		ProgramID:    "AgentProtoco1111111111111111111111111111111",
		WalletKey:    "test-wallet-secret",
		AgentName:    "TestAgent",
		Capabilities: []string{"analysis", "trading"},
	}
}

func fixtureAgents() []Agent {
	return []Agent{
		{ID: "agent-a", Name: "Alpha Trader", Description: "Market analysis agent", Capabilities: []string{"trading", "analysis"}, Reputation: 95, Status: StatusOnline, Framework: "eliza"},
		{ID: "agent-b", Name: "Beta Writer", Description: "Writes research summaries", Capabilities: []string{"writing"}, Reputation: 94, Status: StatusOnline, Framework: "langchain"},
		{ID: "agent-c", Name: "Gamma Oracle", Description: "Price feeds", Capabilities: []string{"oracle", "analysis"}, Reputation: 89, Status: StatusOffline, Framework: "eliza"},
	}
}

type testEnv struct {
	coord   *Coordinator
	gateway *fakeGateway
	clock   *fakeClock
	audit   *fakeAudit
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	gw := newFakeGateway()
	gw.agents = fixtureAgents()
	clock := newFakeClock()
	aud := &fakeAudit{}

	cfg := Config{
		Gateway:  gw,
		Settings: validSettings(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Audit:    aud,
		Now:      clock.Now,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testEnv{coord: c, gateway: gw, clock: clock, audit: aud}
}

func registeredEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	env := newTestEnv(t, mutate...)
	if _, err := env.coord.Register(context.Background(), Identity{Name: "Self"}, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return env
}

var errBoom = errors.New("boom")
