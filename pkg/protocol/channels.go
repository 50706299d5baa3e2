package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/igorsilveira/clawnet/pkg/events"
)

// CreateChannel opens a channel with the caller as owner and sole
// participant.
func (c *Coordinator) CreateChannel(ctx context.Context, name, description string, opts *ChannelOptions) (ch Channel, err error) {
	defer c.observe("create_channel", time.Now(), &err)
	if !c.Initialized() {
		return Channel{}, ErrNotInitialized
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireRegistered(); err != nil {
		return Channel{}, err
	}
	if strings.TrimSpace(name) == "" {
		return Channel{}, fmt.Errorf("%w: channel name is empty", ErrInvalidArgument)
	}

	typ, capacity := ChannelPublic, DefaultMaxParticipants
	if opts != nil {
		if opts.Type != "" {
			typ = opts.Type
		}
		if opts.MaxParticipants != 0 {
			capacity = opts.MaxParticipants
		}
	}
	if typ != ChannelPublic && typ != ChannelPrivate {
		return Channel{}, fmt.Errorf("%w: unknown channel type %q", ErrInvalidArgument, typ)
	}
	if capacity < 1 {
		return Channel{}, fmt.Errorf("%w: max participants must be at least 1", ErrInvalidArgument)
	}

	receipt, err := c.gateway.CreateChannel(ctx, name, description, typ == ChannelPrivate)
	if err != nil {
		return Channel{}, deliveryFailed("create_channel", err)
	}
	if receipt.ID == "" {
		return Channel{}, deliveryFailed("create_channel", fmt.Errorf("gateway returned an empty channel id"))
	}

	self := c.state.self.ID
	ch = Channel{
		ID:              receipt.ID,
		Name:            name,
		Description:     description,
		Type:            typ,
		MaxParticipants: capacity,
		Participants:    []string{self},
		Owner:           self,
		LastActivity:    c.now(),
		TransactionHash: receipt.TxHash,
	}
	if err := c.state.channels.Put(ctx, ch.ID, ch); err != nil {
		return Channel{}, fmt.Errorf("protocol: saving channel %s: %w", ch.ID, err)
	}
	c.touchSelf()
	c.refreshGauges(ctx)

	c.logger.Info("channel created",
		slog.String("channel_id", ch.ID),
		slog.String("type", string(typ)),
		slog.Int("max_participants", capacity),
	)
	c.record(ctx, events.ChannelCreated, ch.ID, map[string]string{"name": name, "tx_hash": receipt.TxHash})
	return cloneChannel(ch), nil
}

// JoinChannel adds the caller to a channel. Only a missing registration is
// an error; every other refusal is reported as false so a conversation can
// carry on.
func (c *Coordinator) JoinChannel(ctx context.Context, channelID string) (joined bool, err error) {
	defer c.observe("join_channel", time.Now(), &err)
	if !c.Initialized() {
		return false, ErrNotInitialized
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireRegistered(); err != nil {
		return false, err
	}
	self := c.state.self.ID
	logger := c.logger.With(slog.String("channel_id", channelID))

	ch, ok, err := c.state.channels.Get(ctx, channelID)
	if err != nil {
		logger.Warn("join: loading channel failed", slog.String("err", err.Error()))
		return false, nil
	}
	if !ok {
		logger.Info("join: channel not found")
		return false, nil
	}

	if !ch.hasParticipant(self) {
		if ch.Type == ChannelPublic && len(ch.Participants) >= ch.MaxParticipants {
			logger.Info("join: channel at capacity", slog.Int("max_participants", ch.MaxParticipants))
			return false, nil
		}
		if ch.Type == ChannelPrivate && !ch.isInvited(self) {
			logger.Info("join: not invited to private channel")
			return false, nil
		}

		accepted, err := c.gateway.JoinChannel(ctx, channelID)
		if err != nil {
			logger.Warn("join: gateway rejected", slog.String("err", err.Error()))
			return false, nil
		}
		if !accepted {
			logger.Info("join: gateway declined")
			return false, nil
		}
		ch.Participants = append(ch.Participants, self)
	}

	ch.LastActivity = c.now()
	if err := c.state.channels.Put(ctx, ch.ID, ch); err != nil {
		logger.Warn("join: saving channel failed", slog.String("err", err.Error()))
		return false, nil
	}
	c.touchSelf()
	c.record(ctx, events.ChannelJoined, ch.ID, nil)
	return true, nil
}

// LeaveChannel removes the caller from a channel. Leaving a channel the
// caller is not in succeeds; an unknown channel yields false.
func (c *Coordinator) LeaveChannel(ctx context.Context, channelID string) (left bool, err error) {
	defer c.observe("leave_channel", time.Now(), &err)
	if !c.Initialized() {
		return false, ErrNotInitialized
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireRegistered(); err != nil {
		return false, err
	}
	self := c.state.self.ID

	ch, ok, err := c.state.channels.Get(ctx, channelID)
	if err != nil || !ok {
		return false, nil
	}
	if !ch.hasParticipant(self) {
		return true, nil
	}

	kept := ch.Participants[:0:0]
	for _, p := range ch.Participants {
		if p != self {
			kept = append(kept, p)
		}
	}
	ch.Participants = kept
	ch.LastActivity = c.now()
	if err := c.state.channels.Put(ctx, ch.ID, ch); err != nil {
		c.logger.Warn("leave: saving channel failed",
			slog.String("channel_id", channelID),
			slog.String("err", err.Error()),
		)
		return false, nil
	}
	c.record(ctx, events.ChannelLeft, ch.ID, nil)
	return true, nil
}

// InviteToChannel lets the owner of a private channel admit agentID.
func (c *Coordinator) InviteToChannel(ctx context.Context, channelID, agentID string) (err error) {
	defer c.observe("invite_to_channel", time.Now(), &err)
	if !c.Initialized() {
		return ErrNotInitialized
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireRegistered(); err != nil {
		return err
	}
	if strings.TrimSpace(agentID) == "" {
		return fmt.Errorf("%w: invitee is empty", ErrInvalidArgument)
	}

	ch, ok, err := c.state.channels.Get(ctx, channelID)
	if err != nil {
		return fmt.Errorf("protocol: loading channel %s: %w", channelID, err)
	}
	if !ok {
		return fmt.Errorf("%w: channel %q", ErrNotFound, channelID)
	}
	if ch.Type != ChannelPrivate {
		return fmt.Errorf("%w: channel %s is public", ErrInvalidArgument, channelID)
	}
	if ch.Owner != c.state.self.ID {
		return fmt.Errorf("%w: only the owner can invite to %s", ErrInvalidArgument, channelID)
	}
	if contains(ch.Invited, agentID) {
		return nil
	}

	ch.Invited = append(ch.Invited, agentID)
	if err := c.state.channels.Put(ctx, ch.ID, ch); err != nil {
		return fmt.Errorf("protocol: saving channel %s: %w", channelID, err)
	}
	c.record(ctx, events.ChannelInvited, ch.ID, map[string]string{"agent_id": agentID})
	return nil
}

// GetChannel returns a copy of a channel.
func (c *Coordinator) GetChannel(ctx context.Context, channelID string) (Channel, error) {
	if !c.Initialized() {
		return Channel{}, ErrNotInitialized
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	ch, ok, err := c.state.channels.Get(ctx, channelID)
	if err != nil {
		return Channel{}, fmt.Errorf("protocol: loading channel %s: %w", channelID, err)
	}
	if !ok {
		return Channel{}, fmt.Errorf("%w: channel %q", ErrNotFound, channelID)
	}
	return cloneChannel(ch), nil
}

// GetChannelParticipants resolves participant ids against the directory.
// Ids that have not been discovered yet are left out.
func (c *Coordinator) GetChannelParticipants(ctx context.Context, channelID string) ([]Agent, error) {
	if !c.Initialized() {
		return nil, ErrNotInitialized
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	ch, ok, err := c.state.channels.Get(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("protocol: loading channel %s: %w", channelID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: channel %q", ErrNotFound, channelID)
	}

	agents := make([]Agent, 0, len(ch.Participants))
	for _, id := range ch.Participants {
		if self := c.state.self; self != nil && self.ID == id {
			agents = append(agents, cloneAgent(*self))
			continue
		}
		a, ok, err := c.state.agents.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("protocol: resolving participant %s: %w", id, err)
		}
		if ok {
			agents = append(agents, cloneAgent(a))
		}
	}
	return agents, nil
}
