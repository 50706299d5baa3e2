package plugin

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/igorsilveira/clawnet/pkg/protocol"
)

var (
	registerIntent      = regexp.MustCompile(`(?i)\b(?:register|sign ?up|onboard|create (?:an? |my )?identity)\b`)
	discoverIntent      = regexp.MustCompile(`(?i)\b(?:find|discover|search|look(?:ing)? for|locate|list)\b.*\b(?:agents?|bots?|peers?)\b`)
	sendIntent          = regexp.MustCompile(`(?i)\b(?:send|message|tell|dm|notify)\b`)
	createChannelIntent = regexp.MustCompile(`(?i)\b(?:create|open|start|make|set up)\b.*\bchannel\b`)
	joinChannelIntent   = regexp.MustCompile(`(?i)\bjoin\b.*\bchannel\b`)
	escrowIntent        = regexp.MustCompile(`(?i)\bescrow\b`)
	statsIntent         = regexp.MustCompile(`(?i)\b(?:stats|statistics|network status|protocol status|how many agents)\b`)
	reputationIntent    = regexp.MustCompile(`(?i)\b(?:reputation|trust score)\b`)

	namedAs        = regexp.MustCompile(`(?i)\b(?:as|named|called)\s+"?([a-z0-9_.-]+)"?`)
	capabilityList = regexp.MustCompile(`(?i)\bcapabilit(?:y|ies)\s*[:=]?\s*([a-z0-9 ,_-]+)`)
	withCapability = regexp.MustCompile(`(?i)\b(?:with|having|offering)\s+([a-z0-9_-]+)\s+capabilit`)
	minReputation  = regexp.MustCompile(`(?i)\breputation\s*(?:of\s*)?(?:>=|>|above|over|at least)?\s*(\d{1,3})`)
	resultLimit    = regexp.MustCompile(`(?i)\b(?:top|first|up to)\s+(\d+)\b`)
	recipientTo    = regexp.MustCompile(`(?i)\bto\s+(?:agent\s+)?@?([a-z0-9_.-]+)`)
	quoted         = regexp.MustCompile(`"([^"]+)"`)
	channelNamed   = regexp.MustCompile(`(?i)\bchannel\s+(?:called|named)\s+([a-z0-9_-]+)`)
	channelRef     = regexp.MustCompile(`(?i)\bchannel\s+(?:id\s+)?"?([a-z0-9_-]+)"?`)
	capacity       = regexp.MustCompile(`(?i)\b(?:max|up to|limit(?: of)?)\s+(\d+)\s+(?:participants|members|agents)\b`)
	amountUnit     = regexp.MustCompile(`(?i)\b(\d+)\s*(?:tokens?|units?|lamports|sol)\b`)
	amountKeyword  = regexp.MustCompile(`(?i)\b(?:of|amount|worth)\s+(\d+)\b`)
	firstAmount    = regexp.MustCompile(`\b(\d+)\b`)
	counterparty   = regexp.MustCompile(`(?i)\bwith\s+(?:agent\s+)?@?([a-z0-9_.-]+)`)
	serviceFor     = regexp.MustCompile(`(?i)\bfor\s+"([^"]+)"`)
	reputationOf   = regexp.MustCompile(`(?i)\breputation\s+(?:of|for)\s+(?:agent\s+)?@?([a-z0-9_.-]+)`)
	onlineWord     = regexp.MustCompile(`(?i)\bonline\b`)
	privateWord    = regexp.MustCompile(`(?i)\bprivate\b`)
	listSeparator  = regexp.MustCompile(`\s*(?:,|\band\b)\s*`)
)

func submatch(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range listSeparator.Split(s, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{protocol.ErrInvalidArgument}, args...)...)
}

type RegisterAction struct {
	Coord *protocol.Coordinator
}

type registerParams struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Framework    string   `json:"framework"`
	Capabilities []string `json:"capabilities"`
}

func (a *RegisterAction) Name() string { return "register" }
func (a *RegisterAction) Kind() Kind   { return KindAction }
func (a *RegisterAction) Description() string {
	return "Register this agent's identity on the network."
}

func (a *RegisterAction) Validate(_ context.Context, req Request) bool {
	return registerIntent.MatchString(req.Text) && !a.Coord.Registered() && a.Coord.Settings().Validate() == nil
}

func (a *RegisterAction) Handle(ctx context.Context, req Request) (Response, error) {
	p, err := parseParams[registerParams](req, a.Name())
	if err != nil {
		return Response{}, err
	}
	if p.Name == "" {
		p.Name = submatch(namedAs, req.Text)
	}
	if p.Capabilities == nil {
		p.Capabilities = splitList(submatch(capabilityList, req.Text))
	}

	self, err := a.Coord.Register(ctx, protocol.Identity{
		Name:        p.Name,
		Description: p.Description,
		Framework:   p.Framework,
	}, p.Capabilities)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Action:  a.Name(),
		Text:    fmt.Sprintf("Registered %s as %s with reputation %d.", self.Name, self.ID, self.Reputation),
		Content: self,
	}, nil
}

type DiscoverAction struct {
	Coord *protocol.Coordinator
}

type discoverParams struct {
	Capabilities  []string `json:"capabilities"`
	Framework     string   `json:"framework"`
	SearchTerm    string   `json:"searchTerm"`
	MinReputation int      `json:"minReputation"`
	Status        string   `json:"status"`
	Limit         int      `json:"limit"`
	Offset        int      `json:"offset"`
}

func (a *DiscoverAction) Name() string { return "discover" }
func (a *DiscoverAction) Kind() Kind   { return KindAction }
func (a *DiscoverAction) Description() string {
	return "Find agents on the network by capability, framework, reputation or status."
}

func (a *DiscoverAction) Validate(_ context.Context, req Request) bool {
	return discoverIntent.MatchString(req.Text) && a.Coord.Registered()
}

func (a *DiscoverAction) Handle(ctx context.Context, req Request) (Response, error) {
	p, err := parseParams[discoverParams](req, a.Name())
	if err != nil {
		return Response{}, err
	}
	if len(req.Params) == 0 {
		if c := submatch(withCapability, req.Text); c != "" {
			p.Capabilities = []string{c}
		}
		p.MinReputation, _ = strconv.Atoi(submatch(minReputation, req.Text))
		p.Limit, _ = strconv.Atoi(submatch(resultLimit, req.Text))
		if onlineWord.MatchString(req.Text) {
			p.Status = string(protocol.StatusOnline)
		}
	}

	agents, err := a.Coord.DiscoverAgents(ctx, protocol.AgentFilter{
		Capabilities:  p.Capabilities,
		Framework:     p.Framework,
		SearchTerm:    p.SearchTerm,
		MinReputation: p.MinReputation,
		Status:        protocol.AgentStatus(p.Status),
		Limit:         p.Limit,
		Offset:        p.Offset,
	})
	if err != nil {
		return Response{}, err
	}

	if len(agents) == 0 {
		return Response{Action: a.Name(), Text: "No agents matched.", Content: agents}, nil
	}
	names := make([]string, len(agents))
	for i, ag := range agents {
		names[i] = fmt.Sprintf("%s (%d)", ag.Name, ag.Reputation)
	}
	return Response{
		Action:  a.Name(),
		Text:    fmt.Sprintf("Found %d agents: %s.", len(agents), strings.Join(names, ", ")),
		Content: agents,
	}, nil
}

type SendMessageAction struct {
	Coord *protocol.Coordinator
}

type sendParams struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Encrypted   *bool  `json:"encrypted"`
}

func (a *SendMessageAction) Name() string { return "send-message" }
func (a *SendMessageAction) Kind() Kind   { return KindAction }
func (a *SendMessageAction) Description() string {
	return "Send a direct message to another agent."
}

func (a *SendMessageAction) Validate(_ context.Context, req Request) bool {
	return sendIntent.MatchString(req.Text) && a.Coord.Registered()
}

func (a *SendMessageAction) Handle(ctx context.Context, req Request) (Response, error) {
	p, err := parseParams[sendParams](req, a.Name())
	if err != nil {
		return Response{}, err
	}
	if p.RecipientID == "" {
		p.RecipientID = submatch(recipientTo, req.Text)
	}
	if p.Content == "" {
		p.Content = submatch(quoted, req.Text)
	}
	if p.Content == "" {
		if i := strings.Index(req.Text, ":"); i >= 0 {
			p.Content = strings.TrimSpace(req.Text[i+1:])
		}
	}
	if p.RecipientID == "" {
		return Response{}, invalid("no recipient found in %q", req.Text)
	}

	msg, err := a.Coord.SendMessage(ctx, p.RecipientID, p.Content, &protocol.MessageOptions{
		Type:      protocol.MessageType(p.Type),
		Priority:  protocol.Priority(p.Priority),
		Encrypted: p.Encrypted,
	})
	if err != nil {
		return Response{}, err
	}
	return Response{
		Action:  a.Name(),
		Text:    fmt.Sprintf("Message %s sent to %s.", msg.ID, msg.RecipientID),
		Content: msg,
	}, nil
}

type CreateChannelAction struct {
	Coord *protocol.Coordinator
}

type channelParams struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Type            string `json:"type"`
	MaxParticipants int    `json:"maxParticipants"`
}

func (a *CreateChannelAction) Name() string { return "create-channel" }
func (a *CreateChannelAction) Kind() Kind   { return KindAction }
func (a *CreateChannelAction) Description() string {
	return "Open a public or private collaboration channel."
}

func (a *CreateChannelAction) Validate(_ context.Context, req Request) bool {
	return createChannelIntent.MatchString(req.Text) && a.Coord.Registered()
}

func (a *CreateChannelAction) Handle(ctx context.Context, req Request) (Response, error) {
	p, err := parseParams[channelParams](req, a.Name())
	if err != nil {
		return Response{}, err
	}
	if len(req.Params) == 0 {
		p.Name = submatch(quoted, req.Text)
		if p.Name == "" {
			p.Name = submatch(channelNamed, req.Text)
		}
		if privateWord.MatchString(req.Text) {
			p.Type = string(protocol.ChannelPrivate)
		}
		p.MaxParticipants, _ = strconv.Atoi(submatch(capacity, req.Text))
	}
	if p.Name == "" {
		return Response{}, invalid("no channel name found in %q", req.Text)
	}

	ch, err := a.Coord.CreateChannel(ctx, p.Name, p.Description, &protocol.ChannelOptions{
		Type:            protocol.ChannelType(p.Type),
		MaxParticipants: p.MaxParticipants,
	})
	if err != nil {
		return Response{}, err
	}
	return Response{
		Action:  a.Name(),
		Text:    fmt.Sprintf("Created %s channel %s (%s) for up to %d participants.", ch.Type, ch.Name, ch.ID, ch.MaxParticipants),
		Content: ch,
	}, nil
}

type JoinChannelAction struct {
	Coord *protocol.Coordinator
}

type joinParams struct {
	ChannelID string `json:"channelId"`
}

func (a *JoinChannelAction) Name() string { return "join-channel" }
func (a *JoinChannelAction) Kind() Kind   { return KindAction }
func (a *JoinChannelAction) Description() string {
	return "Join an existing channel."
}

func (a *JoinChannelAction) Validate(_ context.Context, req Request) bool {
	return joinChannelIntent.MatchString(req.Text) && a.Coord.Registered()
}

func (a *JoinChannelAction) Handle(ctx context.Context, req Request) (Response, error) {
	p, err := parseParams[joinParams](req, a.Name())
	if err != nil {
		return Response{}, err
	}
	if p.ChannelID == "" {
		p.ChannelID = submatch(channelRef, req.Text)
	}
	if p.ChannelID == "" {
		return Response{}, invalid("no channel found in %q", req.Text)
	}

	joined, err := a.Coord.JoinChannel(ctx, p.ChannelID)
	if err != nil {
		return Response{}, err
	}
	content := map[string]any{"channelId": p.ChannelID, "joined": joined}
	if !joined {
		return Response{Action: a.Name(), Text: fmt.Sprintf("Could not join channel %s.", p.ChannelID), Content: content}, nil
	}
	return Response{Action: a.Name(), Text: fmt.Sprintf("Joined channel %s.", p.ChannelID), Content: content}, nil
}

type CreateEscrowAction struct {
	Coord *protocol.Coordinator
}

type escrowParams struct {
	CounterpartyID string   `json:"counterpartyId"`
	Amount         int64    `json:"amount"`
	Service        string   `json:"service"`
	Deliverables   []string `json:"deliverables"`
}

func (a *CreateEscrowAction) Name() string { return "create-escrow" }
func (a *CreateEscrowAction) Kind() Kind   { return KindAction }
func (a *CreateEscrowAction) Description() string {
	return "Place an escrowed commitment with another agent."
}

func (a *CreateEscrowAction) Validate(_ context.Context, req Request) bool {
	return escrowIntent.MatchString(req.Text) && a.Coord.Registered()
}

func (a *CreateEscrowAction) Handle(ctx context.Context, req Request) (Response, error) {
	p, err := parseParams[escrowParams](req, a.Name())
	if err != nil {
		return Response{}, err
	}
	if len(req.Params) == 0 {
		p.CounterpartyID = submatch(counterparty, req.Text)
		p.Amount = escrowAmount(req.Text)
		p.Service = submatch(serviceFor, req.Text)
	}
	if p.Service == "" {
		p.Service = "service"
	}

	e, err := a.Coord.CreateEscrow(ctx, p.CounterpartyID, p.Amount, p.Service, p.Deliverables)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Action:  a.Name(),
		Text:    fmt.Sprintf("Escrow %s of %d with %s created, due %s.", e.ID, e.Amount, e.CounterpartyID, e.Deadline.Format("2006-01-02 15:04 MST")),
		Content: e,
	}, nil
}

// escrowAmount reads the amount from free text. The counterparty and quoted
// service are cut out first so digits in an agent id are never taken.
func escrowAmount(text string) int64 {
	rest := counterparty.ReplaceAllString(text, " ")
	rest = quoted.ReplaceAllString(rest, " ")
	for _, re := range []*regexp.Regexp{amountUnit, amountKeyword, firstAmount} {
		if v := submatch(re, rest); v != "" {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

type StatsAction struct {
	Coord *protocol.Coordinator
}

func (a *StatsAction) Name() string { return "get-protocol-stats" }
func (a *StatsAction) Kind() Kind   { return KindAction }
func (a *StatsAction) Description() string {
	return "Report aggregate protocol statistics."
}

func (a *StatsAction) Validate(_ context.Context, req Request) bool {
	return statsIntent.MatchString(req.Text) && a.Coord.Initialized()
}

func (a *StatsAction) Handle(ctx context.Context, _ Request) (Response, error) {
	stats, err := a.Coord.GetProtocolStats(ctx)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Action:  a.Name(),
		Text:    formatStats(stats),
		Content: stats,
	}, nil
}

type ReputationAction struct {
	Coord *protocol.Coordinator
}

type reputationParams struct {
	AgentID string `json:"agentId"`
}

func (a *ReputationAction) Name() string { return "get-reputation" }
func (a *ReputationAction) Kind() Kind   { return KindAction }
func (a *ReputationAction) Description() string {
	return "Look up the reputation of this agent or another one."
}

func (a *ReputationAction) Validate(_ context.Context, req Request) bool {
	return reputationIntent.MatchString(req.Text) && a.Coord.Initialized()
}

func (a *ReputationAction) Handle(ctx context.Context, req Request) (Response, error) {
	p, err := parseParams[reputationParams](req, a.Name())
	if err != nil {
		return Response{}, err
	}
	if p.AgentID == "" {
		p.AgentID = submatch(reputationOf, req.Text)
	}

	rep := a.Coord.GetAgentReputation(ctx, p.AgentID)
	who := p.AgentID
	if who == "" {
		who = "your agent"
	}
	return Response{
		Action:  a.Name(),
		Text:    fmt.Sprintf("Reputation of %s is %d/100.", who, rep),
		Content: map[string]any{"agentId": p.AgentID, "reputation": rep},
	}, nil
}

func formatStats(s protocol.Stats) string {
	return fmt.Sprintf("%d agents, %d channels, %d messages, %d active escrows.",
		s.TotalAgents, s.TotalChannels, s.TotalMessages, s.ActiveEscrows)
}
