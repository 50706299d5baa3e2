package protocol

import "context"

// Gateway performs the durable, on-chain half of every protocol operation.
// Every method may fail; the coordinator never assumes success.
type Gateway interface {
	Register(ctx context.Context, req RegistrationRequest) (Registration, error)
	ListAgents(ctx context.Context) ([]Agent, error)
	SendMessage(ctx context.Context, recipientID, content string, typ MessageType) (Receipt, error)
	CreateChannel(ctx context.Context, name, description string, private bool) (Receipt, error)
	JoinChannel(ctx context.Context, channelID string) (bool, error)
	CreateEscrow(ctx context.Context, req EscrowRequest) (Receipt, error)
	NetworkStats(ctx context.Context) (NetworkStats, error)
	Balance(ctx context.Context) (int64, error)
	HealthCheck(ctx context.Context) bool
}

type RegistrationRequest struct {
	Identity     Identity `json:"identity"`
	Capabilities []string `json:"capabilities"`
}

type Registration struct {
	AgentID       string `json:"agentId"`
	TxHash        string `json:"txHash"`
	WalletAddress string `json:"walletAddress,omitempty"`
	// Reputation is set when the chain already knows the agent.
	Reputation *int `json:"reputation,omitempty"`
}

// Receipt identifies an entity created by a gateway transaction.
type Receipt struct {
	ID     string `json:"id"`
	TxHash string `json:"txHash"`
}

type EscrowRequest struct {
	CounterpartyID string   `json:"counterpartyId"`
	Amount         int64    `json:"amount"`
	Service        string   `json:"service"`
	Deliverables   []string `json:"deliverables"`
	DeadlineUnix   int64    `json:"deadline"`
}

type NetworkStats struct {
	BlockHeight uint64 `json:"blockHeight"`
	TotalSupply uint64 `json:"totalSupply"`
	Health      string `json:"health"`
}
