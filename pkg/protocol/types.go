package protocol

import "time"

type AgentStatus string

const (
	StatusOnline  AgentStatus = "online"
	StatusOffline AgentStatus = "offline"

	// StatusAny disables the status predicate in an AgentFilter.
	StatusAny AgentStatus = "any"
)

type Agent struct {
	ID            string      `json:"agentId"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	Capabilities  []string    `json:"capabilities"`
	Reputation    int         `json:"reputation"`
	WalletAddress string      `json:"walletAddress"`
	Status        AgentStatus `json:"status"`
	Framework     string      `json:"framework"`
	LastActive    time.Time   `json:"lastActive"`
}

// Identity is what the local agent presents when registering.
type Identity struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Framework   string `json:"framework"`
}

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageData     MessageType = "data"
	MessageCommand  MessageType = "command"
	MessageResponse MessageType = "response"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

type Message struct {
	ID              string        `json:"id"`
	SenderID        string        `json:"senderId"`
	RecipientID     string        `json:"recipientId"`
	Content         string        `json:"content"`
	Type            MessageType   `json:"type"`
	Priority        Priority      `json:"priority"`
	Encrypted       bool          `json:"encrypted"`
	Status          MessageStatus `json:"status"`
	Timestamp       time.Time     `json:"timestamp"`
	TransactionHash string        `json:"transactionHash,omitempty"`
}

// MessageOptions overrides the defaults applied by SendMessage. Nil fields
// keep the default.
type MessageOptions struct {
	Type      MessageType
	Priority  Priority
	Encrypted *bool
}

type ChannelType string

const (
	ChannelPublic  ChannelType = "public"
	ChannelPrivate ChannelType = "private"
)

type Channel struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Type            ChannelType `json:"type"`
	MaxParticipants int         `json:"maxParticipants"`
	Participants    []string    `json:"participants"`
	Owner           string      `json:"owner"`
	Invited         []string    `json:"invited,omitempty"`
	LastActivity    time.Time   `json:"lastActivity"`
	TransactionHash string      `json:"transactionHash,omitempty"`
}

type ChannelOptions struct {
	Type            ChannelType
	MaxParticipants int
}

func (c *Channel) hasParticipant(agentID string) bool {
	return contains(c.Participants, agentID)
}

func (c *Channel) isInvited(agentID string) bool {
	return agentID == c.Owner || contains(c.Invited, agentID)
}

type EscrowStatus string

const (
	EscrowCreated   EscrowStatus = "created"
	EscrowFunded    EscrowStatus = "funded"
	EscrowCompleted EscrowStatus = "completed"
	EscrowDisputed  EscrowStatus = "disputed"
	EscrowRefunded  EscrowStatus = "refunded"
)

// Terminal reports whether no further transition is possible.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowCompleted || s == EscrowRefunded
}

// Active reports whether the escrow still holds or awaits funds.
func (s EscrowStatus) Active() bool {
	return s == EscrowCreated || s == EscrowFunded
}

type Escrow struct {
	ID              string       `json:"id"`
	Amount          int64        `json:"amount"`
	CounterpartyID  string       `json:"counterpartyId"`
	Service         string       `json:"service"`
	Deliverables    []string     `json:"deliverables"`
	Deadline        time.Time    `json:"deadline"`
	Status          EscrowStatus `json:"status"`
	TransactionHash string       `json:"transactionHash,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

type Stats struct {
	TotalAgents   int       `json:"totalAgents"`
	TotalChannels int       `json:"totalChannels"`
	TotalMessages int       `json:"totalMessages"`
	ActiveEscrows int       `json:"activeEscrows"`
	LastSync      time.Time `json:"lastSync"`
	Registered    bool      `json:"isRegistered"`
	CurrentAgent  *Agent    `json:"currentAgent,omitempty"`
}

type AgentFilter struct {
	Capabilities  []string
	Framework     string
	SearchTerm    string
	MinReputation int
	Status        AgentStatus
	Limit         int
	Offset        int
}

type MessageFilter struct {
	SenderID    string
	RecipientID string
	Type        MessageType
	Status      MessageStatus
	Since       time.Time
	UnreadOnly  bool
	Limit       int
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
