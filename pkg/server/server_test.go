package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/igorsilveira/clawnet/pkg/a2a"
	"github.com/igorsilveira/clawnet/pkg/chain"
	"github.com/igorsilveira/clawnet/pkg/events"
	"github.com/igorsilveira/clawnet/pkg/protocol"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	coord *protocol.Coordinator
	sim   *chain.Simulator
	hub   *events.Hub
	srv   *Server
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	sim := chain.NewSimulator(chain.WithAgents(chain.DemoAgents()...))
	hub := events.NewHub(16)
	t.Cleanup(hub.Close)

	coord, err := protocol.New(protocol.Config{
		Gateway: sim,
		Events:  hub,
		Now:     func() time.Time { return fixedNow },
		Settings: protocol.Settings{
			RPCURL:    "https://api.devnet.solana.com",
			ProgramID: "AgentProtoco1111111111111111111111111111111",
			WalletKey: "test-wallet-secret",
			AgentName: "Scout",
		},
	})
	if err != nil {
		t.Fatalf("protocol.New: %v", err)
	}
	if _, err := coord.Register(context.Background(), protocol.Identity{}, []string{"analysis"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	cfg.Coordinator = coord
	cfg.Hub = hub
	return &testEnv{coord: coord, sim: sim, hub: hub, srv: New(cfg)}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != `{"status":"ok"}` {
		t.Errorf("body = %q", got)
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	rd := decode[readiness](t, rec)
	if !rd.Registered || !rd.Gateway {
		t.Errorf("readiness = %+v", rd)
	}

	env.sim.SetHealthy(false)
	rec = env.do(t, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 with an unhealthy gateway", rec.Code)
	}
}

func TestReadyzWithoutCoordinator(t *testing.T) {
	srv := New(Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, Config{AuthToken: "s3cret"})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"no bearer prefix", "s3cret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Authorization", tt.header)
			}
			rec := env.do(t, http.MethodGet, "/api/v1/stats", "", h)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	if rec := env.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz behind auth: status = %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodGet, "/api/v1/stats", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	stats := decode[protocol.Stats](t, rec)
	if !stats.Registered || stats.CurrentAgent == nil {
		t.Errorf("stats = %+v", stats)
	}
}

func TestAgents(t *testing.T) {
	env := newTestEnv(t, Config{})

	tests := []struct {
		name  string
		query string
		code  int
		want  []string
	}{
		{"capability", "?capability=oracle", http.StatusOK, []string{"agent-atlas"}},
		{"framework", "?framework=langchain", http.StatusOK, []string{"agent-quill"}},
		{"min reputation and status", "?min_reputation=85&status=online", http.StatusOK, []string{"agent-atlas"}},
		{"no match", "?capability=teleportation", http.StatusOK, []string{}},
		{"bad limit", "?limit=-1", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/agents"+tt.query, "", nil)
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.code, rec.Body.String())
			}
			if tt.code != http.StatusOK {
				return
			}
			agents := decode[[]protocol.Agent](t, rec)
			if len(agents) != len(tt.want) {
				t.Fatalf("len = %d, want %d (%+v)", len(agents), len(tt.want), agents)
			}
			for i, a := range agents {
				if a.ID != tt.want[i] {
					t.Errorf("agents[%d] = %q, want %q", i, a.ID, tt.want[i])
				}
			}
		})
	}
}

func TestReputation(t *testing.T) {
	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodGet, "/api/v1/agents/agent-unknown/reputation", "", nil)
	body := decode[map[string]any](t, rec)
	if body["reputation"] != float64(protocol.DefaultReputation) {
		t.Errorf("reputation = %v, want %d", body["reputation"], protocol.DefaultReputation)
	}
}

func TestPluginsAndActions(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodGet, "/api/v1/plugins?kind=provider", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("plugins status = %d", rec.Code)
	}
	if got := len(decode[[]map[string]any](t, rec)); got != 2 {
		t.Errorf("providers = %d, want 2", got)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/plugins?kind=widget", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad kind: status = %d, want 400", rec.Code)
	}

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"send", "/api/v1/actions/send-message", `{"text":"send a note to @agent-quill: draft the summary"}`, http.StatusOK},
		{"not applicable", "/api/v1/actions/create-escrow", `{"text":"hello there"}`, http.StatusUnprocessableEntity},
		{"unknown action", "/api/v1/actions/teleport", `{"text":"teleport"}`, http.StatusNotFound},
		{"bad json", "/api/v1/actions/send-message", `{"text":`, http.StatusBadRequest},
		{"invalid argument", "/api/v1/actions/create-escrow", `{"text":"escrow","params":{"counterpartyId":"agent-atlas","amount":-5}}`, http.StatusBadRequest},
		{"evaluator", "/api/v1/evaluators/quality", `{"text":"Here is a detailed, structured summary of the audit findings."}`, http.StatusOK},
		{"evaluator empty text", "/api/v1/evaluators/quality", `{"text":"  "}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body, nil)
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.code, rec.Body.String())
			}
		})
	}

	rec = env.do(t, http.MethodGet, "/api/v1/messages?recipient=agent-quill", "", nil)
	msgs := decode[[]protocol.Message](t, rec)
	if len(msgs) != 1 || msgs[0].Content != "draft the summary" {
		t.Errorf("messages = %+v", msgs)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/providers/agent-status", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("provider status = %d", rec.Code)
	}
}

func TestEscrowTransitions(t *testing.T) {
	env := newTestEnv(t, Config{})
	e, err := env.coord.CreateEscrow(context.Background(), "agent-atlas", 250, "price feed", nil)
	if err != nil {
		t.Fatalf("CreateEscrow: %v", err)
	}
	base := "/api/v1/escrows/" + e.ID

	tests := []struct {
		name   string
		path   string
		body   string
		code   int
		status protocol.EscrowStatus
	}{
		{"wrong amount", base + "/fund", `{"amount":10}`, http.StatusBadRequest, ""},
		{"fund", base + "/fund", `{"amount":250}`, http.StatusOK, protocol.EscrowFunded},
		{"complete", base + "/complete", "", http.StatusOK, protocol.EscrowCompleted},
		{"refund after complete", base + "/refund", "", http.StatusBadRequest, ""},
		{"unknown transition", base + "/cancel", "", http.StatusNotFound, ""},
		{"unknown escrow", "/api/v1/escrows/escrow-missing/dispute", "", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		rec := env.do(t, http.MethodPost, tt.path, tt.body, nil)
		if rec.Code != tt.code {
			t.Fatalf("%s: status = %d, want %d: %s", tt.name, rec.Code, tt.code, rec.Body.String())
		}
		if tt.status != "" {
			if got := decode[protocol.Escrow](t, rec).Status; got != tt.status {
				t.Errorf("%s: Status = %q, want %q", tt.name, got, tt.status)
			}
		}
	}

	rec := env.do(t, http.MethodGet, "/api/v1/escrows", "", nil)
	if list := decode[[]protocol.Escrow](t, rec); len(list) != 1 {
		t.Errorf("escrows = %d, want 1", len(list))
	}
}

func TestErrorKinds(t *testing.T) {
	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodGet, "/api/v1/channels/channel-missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decode[errorBody](t, rec); body.Kind != "NotFound" {
		t.Errorf("Kind = %q, want NotFound", body.Kind)
	}

	tests := []struct {
		kind string
		want int
	}{
		{"InvalidArgument", http.StatusBadRequest},
		{"NotRegistered", http.StatusConflict},
		{"NotConfigured", http.StatusServiceUnavailable},
		{"DeliveryFailed", http.StatusBadGateway},
		{"Internal", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.kind); got != tt.want {
			t.Errorf("statusFor(%q) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, Config{})
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws?types="+events.ChannelCreated, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var hello wsOutgoing
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Type != "subscribed" || hello.SubscriberID == "" {
		t.Fatalf("hello = %+v", hello)
	}

	if _, err := env.coord.SendMessage(ctx, "agent-quill", "filtered out", nil); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	ch, err := env.coord.CreateChannel(ctx, "research", "", nil)
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	var got wsOutgoing
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if got.Event == nil || got.Event.Type != events.ChannelCreated || got.Event.Subject != ch.ID {
		t.Errorf("event = %+v", got.Event)
	}
}

func TestGatewayCallbacks(t *testing.T) {
	const secret = "hook-secret"
	env := newTestEnv(t, Config{})
	env.srv = New(Config{
		Coordinator: env.coord,
		Webhooks:    GatewayCallbacks(env.coord, secret),
	})
	ctx := context.Background()

	msg, err := env.coord.SendMessage(ctx, "agent-quill", "ping", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := env.coord.DiscoverAgents(ctx, protocol.AgentFilter{}); err != nil {
		t.Fatalf("DiscoverAgents: %v", err)
	}

	sub := env.hub.Subscribe("test")

	post := func(body, sig string) *httptest.ResponseRecorder {
		h := http.Header{}
		if sig != "" {
			h.Set(SignatureHeader, sig)
		}
		return env.do(t, http.MethodPost, "/webhooks/gateway", body, h)
	}
	signed := func(body string) *httptest.ResponseRecorder {
		return post(body, Sign(secret, []byte(body)))
	}

	read := `{"event":"message.status","source":"gateway","payload":{"messageId":"` + msg.ID + `","status":"read"}}`
	if rec := post(read, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("unsigned: status = %d, want 401", rec.Code)
	}
	if rec := post(read, Sign("wrong", []byte(read))); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad signature: status = %d, want 401", rec.Code)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"message read", read, http.StatusOK},
		{"message back to pending", `{"event":"message.status","payload":{"messageId":"` + msg.ID + `","status":"pending"}}`, http.StatusBadRequest},
		{"agent offline", `{"event":"agent.offline","payload":{"agentId":"agent-atlas"}}`, http.StatusOK},
		{"reputation", `{"event":"reputation.update","payload":{"agentId":"agent-quill","delta":-11}}`, http.StatusOK},
		{"unknown agent", `{"event":"agent.active","payload":{"agentId":"agent-ghost"}}`, http.StatusNotFound},
		{"unhandled event", `{"event":"block.mined","payload":{}}`, http.StatusAccepted},
		{"bad payload", `{"event":"agent.active","payload":"nope"}`, http.StatusBadRequest},
		{"not json", `{{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := signed(tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	msgs, _ := env.coord.GetMessages(ctx, protocol.MessageFilter{})
	if len(msgs) != 1 || msgs[0].Status != protocol.MessageRead {
		t.Errorf("messages = %+v, want one read message", msgs)
	}
	if rep := env.coord.GetAgentReputation(ctx, "agent-quill"); rep != 70 {
		t.Errorf("quill reputation = %d, want 70", rep)
	}

	updated := map[string]int{}
	for len(sub.C) > 0 {
		ev := <-sub.C
		if ev.Type == events.AgentUpdated {
			updated[ev.Subject]++
		}
	}
	if updated["agent-atlas"] != 1 || updated["agent-quill"] != 1 {
		t.Errorf("agent updates = %v, want one each for atlas and quill", updated)
	}
}

func TestRPCMount(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.srv = New(Config{
		Coordinator: env.coord,
		RPC:         chain.NewHandler(chain.HandlerConfig{Gateway: env.sim}),
	})

	body := `{"jsonrpc":"2.0","id":1,"method":"` + chain.MethodHealth + `"}`
	rec := env.do(t, http.MethodPost, "/rpc/", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"result"`)) {
		t.Errorf("body = %s, want a result", rec.Body.String())
	}
}

func TestAgentCard(t *testing.T) {
	env := newTestEnv(t, Config{AuthToken: "secret", PublicURL: "https://scout.example.org", Version: "0.1.0"})

	rec := env.do(t, http.MethodGet, a2a.CardPath, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without a token", rec.Code)
	}
	card := decode[a2a.AgentCard](t, rec)
	self, _ := env.coord.Self()
	if card.AgentID != self.ID {
		t.Errorf("AgentID = %q, want %q", card.AgentID, self.ID)
	}
	if card.URL != "https://scout.example.org" || card.Version != "0.1.0" {
		t.Errorf("card = %+v", card)
	}
	if len(card.Skills) != 8 {
		t.Errorf("skills = %d, want 8", len(card.Skills))
	}
}
