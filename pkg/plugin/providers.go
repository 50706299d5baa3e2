package plugin

import (
	"context"
	"fmt"
	"strings"

	"github.com/igorsilveira/clawnet/pkg/protocol"
)

type AgentStatusProvider struct {
	Coord *protocol.Coordinator
}

func (p *AgentStatusProvider) Name() string { return "agent-status" }
func (p *AgentStatusProvider) Kind() Kind   { return KindProvider }
func (p *AgentStatusProvider) Description() string {
	return "Identity, reputation and registration state of this agent."
}

func (p *AgentStatusProvider) Get(_ context.Context, _ Request) (Snapshot, error) {
	if !p.Coord.Initialized() {
		return Snapshot{}, protocol.ErrNotInitialized
	}
	self, ok := p.Coord.Self()
	if !ok {
		return Snapshot{
			Text:   "This agent is not registered on the network.",
			Values: map[string]any{"registered": false},
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Agent %s (%s) is %s with reputation %d/100.", self.Name, self.ID, self.Status, self.Reputation)
	if len(self.Capabilities) > 0 {
		fmt.Fprintf(&b, " Capabilities: %s.", strings.Join(self.Capabilities, ", "))
	}
	return Snapshot{
		Text: b.String(),
		Values: map[string]any{
			"registered":   true,
			"agentId":      self.ID,
			"name":         self.Name,
			"reputation":   self.Reputation,
			"status":       string(self.Status),
			"capabilities": self.Capabilities,
			"wallet":       self.WalletAddress,
		},
	}, nil
}

type NetworkStatsProvider struct {
	Coord *protocol.Coordinator
}

func (p *NetworkStatsProvider) Name() string { return "network-stats" }
func (p *NetworkStatsProvider) Kind() Kind   { return KindProvider }
func (p *NetworkStatsProvider) Description() string {
	return "Aggregate protocol counts and gateway reachability."
}

func (p *NetworkStatsProvider) Get(ctx context.Context, _ Request) (Snapshot, error) {
	stats, err := p.Coord.GetProtocolStats(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	healthy := p.Coord.HealthCheck(ctx)

	gateway := "reachable"
	if !healthy {
		gateway = "unreachable"
	}
	values := map[string]any{
		"totalAgents":   stats.TotalAgents,
		"totalChannels": stats.TotalChannels,
		"totalMessages": stats.TotalMessages,
		"activeEscrows": stats.ActiveEscrows,
		"registered":    stats.Registered,
		"healthy":       healthy,
	}
	if !stats.LastSync.IsZero() {
		values["lastSync"] = stats.LastSync
	}
	return Snapshot{
		Text:   fmt.Sprintf("%s Gateway %s.", formatStats(stats), gateway),
		Values: values,
	}, nil
}
