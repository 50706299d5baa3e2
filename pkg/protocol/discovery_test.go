package protocol

import (
	"context"
	"errors"
	"testing"
)

func TestFilterAgents(t *testing.T) {
	agents := fixtureAgents()

	tests := []struct {
		name   string
		filter AgentFilter
		want   []string
	}{
		{"no filter", AgentFilter{}, []string{"agent-a", "agent-b", "agent-c"}},
		{"min reputation and online", AgentFilter{MinReputation: 80, Status: StatusOnline}, []string{"agent-a", "agent-b"}},
		{"offset then limit", AgentFilter{MinReputation: 80, Status: StatusOnline, Limit: 1, Offset: 1}, []string{"agent-b"}},
		{"status any", AgentFilter{Status: StatusAny}, []string{"agent-a", "agent-b", "agent-c"}},
		{"capability match any", AgentFilter{Capabilities: []string{"ORACLE", "writing"}}, []string{"agent-b", "agent-c"}},
		{"framework exact", AgentFilter{Framework: "eliza"}, []string{"agent-a", "agent-c"}},
		{"search description", AgentFilter{SearchTerm: "RESEARCH"}, []string{"agent-b"}},
		{"search capability", AgentFilter{SearchTerm: "analy"}, []string{"agent-a", "agent-c"}},
		{"offset past end", AgentFilter{Offset: 5}, []string{}},
		{"no match", AgentFilter{MinReputation: 99}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterAgents(agents, tt.filter)
			if got == nil {
				t.Fatal("FilterAgents returned nil, want empty slice")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d agents, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("agent[%d] = %q, want %q", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestFilterAgentsIsDeterministic(t *testing.T) {
	f := AgentFilter{Capabilities: []string{"analysis"}, Limit: 2}
	first := FilterAgents(fixtureAgents(), f)
	second := FilterAgents(fixtureAgents(), f)
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("run differs at %d: %q vs %q", i, first[i].ID, second[i].ID)
		}
	}
}

func TestDiscoverAgents(t *testing.T) {
	ctx := context.Background()
	env := registeredEnv(t)
	env.gateway.agents = append(env.gateway.agents, Agent{ID: "agent-self", Name: "me", Reputation: 100, Status: StatusOnline})

	found, err := env.coord.DiscoverAgents(ctx, AgentFilter{MinReputation: 80, Status: StatusOnline})
	if err != nil {
		t.Fatalf("DiscoverAgents: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("found %d agents, want 2", len(found))
	}
	for _, a := range found {
		if a.ID == "agent-self" {
			t.Error("self listed in discovery results")
		}
	}

	page, err := env.coord.DiscoverAgents(ctx, AgentFilter{MinReputation: 80, Status: StatusOnline, Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("DiscoverAgents: %v", err)
	}
	if len(page) != 1 || page[0].ID != found[1].ID {
		t.Errorf("page = %+v, want the second filtered agent %q", page, found[1].ID)
	}

	// Only matches are cached, so agent-c stays unknown.
	if got := env.coord.GetAgentReputation(ctx, "agent-c"); got != DefaultReputation {
		t.Errorf("agent-c reputation = %d, want default %d", got, DefaultReputation)
	}
}

func TestDiscoverAgentsGatewayFailure(t *testing.T) {
	env := registeredEnv(t)
	env.gateway.listErr = errBoom

	_, err := env.coord.DiscoverAgents(context.Background(), AgentFilter{})
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("err = %v, want ErrDeliveryFailed", err)
	}
	stats, _ := env.coord.GetProtocolStats(context.Background())
	if stats.TotalAgents != 1 {
		t.Errorf("TotalAgents = %d, want only self", stats.TotalAgents)
	}
}
