// Package a2a publishes the local agent as an agent card so peers outside the
// chain directory can find what it offers.
package a2a

import (
	"encoding/json"
	"net/http"

	"github.com/igorsilveira/clawnet/pkg/plugin"
	"github.com/igorsilveira/clawnet/pkg/protocol"
)

const CardPath = "/.well-known/agentcard"

type AgentCard struct {
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	URL          string       `json:"url"`
	Version      string       `json:"version"`
	Capabilities Capabilities `json:"capabilities"`
	Skills       []Skill      `json:"skills,omitempty"`

	AgentID       string   `json:"agentId,omitempty"`
	WalletAddress string   `json:"walletAddress,omitempty"`
	Reputation    int      `json:"reputation,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

type Capabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

type Skill struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// BuildCard describes the agent as it currently stands. Before registration
// the card carries the configured name and no chain identity.
func BuildCard(coord *protocol.Coordinator, registry *plugin.Registry, url, version string) AgentCard {
	card := AgentCard{
		URL:     url,
		Version: version,
		Capabilities: Capabilities{
			Streaming:         true,
			PushNotifications: true,
		},
	}

	if self, ok := coord.Self(); ok {
		card.Name = self.Name
		card.Description = self.Description
		card.AgentID = self.ID
		card.WalletAddress = self.WalletAddress
		card.Reputation = self.Reputation
		card.Tags = self.Capabilities
	} else if coord.Initialized() {
		s := coord.Settings()
		card.Name = s.AgentName
		card.Tags = s.Capabilities
	}

	if registry != nil {
		for _, d := range registry.List(plugin.KindAction) {
			card.Skills = append(card.Skills, Skill{ID: d.Name, Name: d.Name, Description: d.Description})
		}
	}
	return card
}

// CardHandler serves BuildCard fresh on every request.
func CardHandler(coord *protocol.Coordinator, registry *plugin.Registry, url, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(BuildCard(coord, registry, url, version))
	}
}
