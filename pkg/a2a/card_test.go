package a2a

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/igorsilveira/clawnet/pkg/chain"
	"github.com/igorsilveira/clawnet/pkg/plugin"
	"github.com/igorsilveira/clawnet/pkg/protocol"
)

func testCoordinator(t *testing.T) *protocol.Coordinator {
	t.Helper()
	coord, err := protocol.New(protocol.Config{
		Gateway: chain.NewSimulator(),
		Settings: protocol.Settings{
			RPCURL:       "https://api.devnet.solana.com",
			ProgramID:    "AgentProtoco1111111111111111111111111111111",
			WalletKey:    "test-wallet-secret",
			AgentName:    "Scout",
			Capabilities: []string{"analysis"},
		},
	})
	if err != nil {
		t.Fatalf("protocol.New: %v", err)
	}
	return coord
}

func TestBuildCardBeforeRegistration(t *testing.T) {
	coord := testCoordinator(t)
	card := BuildCard(coord, plugin.Default(coord, nil), "http://127.0.0.1:18790", "0.1.0")

	if card.Name != "Scout" {
		t.Errorf("Name = %q, want %q", card.Name, "Scout")
	}
	if card.AgentID != "" || card.WalletAddress != "" {
		t.Errorf("unregistered card has chain identity: %+v", card)
	}
	if len(card.Skills) != 8 {
		t.Errorf("skills = %d, want one per action (8)", len(card.Skills))
	}
	if !card.Capabilities.Streaming {
		t.Error("streaming should be advertised")
	}
}

func TestCardHandlerAfterRegistration(t *testing.T) {
	coord := testCoordinator(t)
	self, err := coord.Register(context.Background(), protocol.Identity{Description: "finds things"}, nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	rec := httptest.NewRecorder()
	CardHandler(coord, nil, "https://scout.example.org", "0.1.0")(rec, httptest.NewRequest(http.MethodGet, CardPath, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var card AgentCard
	if err := json.NewDecoder(rec.Body).Decode(&card); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if card.AgentID != self.ID || card.WalletAddress != self.WalletAddress {
		t.Errorf("card = %+v, want identity of %s", card, self.ID)
	}
	if card.Reputation != protocol.DefaultReputation {
		t.Errorf("Reputation = %d, want %d", card.Reputation, protocol.DefaultReputation)
	}
	if card.Description != "finds things" || card.URL != "https://scout.example.org" {
		t.Errorf("card = %+v", card)
	}
	if len(card.Skills) != 0 {
		t.Errorf("skills = %d without a registry, want 0", len(card.Skills))
	}
}
