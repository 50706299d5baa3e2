package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/igorsilveira/clawnet/pkg/events"
	"github.com/igorsilveira/clawnet/pkg/telemetry"
)

// messageTransitions lists the forward moves. read and failed have no entry
// because they are terminal.
var messageTransitions = map[MessageStatus][]MessageStatus{
	MessagePending:   {MessageDelivered, MessageFailed},
	MessageDelivered: {MessageRead, MessageFailed},
}

// SendMessage delivers content to recipientID through the gateway and
// appends it to the message log.
func (c *Coordinator) SendMessage(ctx context.Context, recipientID, content string, opts *MessageOptions) (msg Message, err error) {
	defer c.observe("send_message", time.Now(), &err)
	if !c.Initialized() {
		return Message{}, ErrNotInitialized
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireRegistered(); err != nil {
		return Message{}, err
	}
	if strings.TrimSpace(recipientID) == "" {
		return Message{}, fmt.Errorf("%w: recipient is empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(content) == "" {
		return Message{}, fmt.Errorf("%w: message content is empty", ErrInvalidArgument)
	}

	typ, priority, encrypted := MessageText, PriorityNormal, true
	if opts != nil {
		if opts.Type != "" {
			typ = opts.Type
		}
		if opts.Priority != "" {
			priority = opts.Priority
		}
		if opts.Encrypted != nil {
			encrypted = *opts.Encrypted
		}
	}
	if !validMessageType(typ) {
		return Message{}, fmt.Errorf("%w: unknown message type %q", ErrInvalidArgument, typ)
	}
	if !validPriority(priority) {
		return Message{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidArgument, priority)
	}

	receipt, err := c.gateway.SendMessage(ctx, recipientID, content, typ)
	if err != nil {
		return Message{}, deliveryFailed("send_message", err)
	}

	msg = Message{
		ID:              receipt.ID,
		SenderID:        c.state.self.ID,
		RecipientID:     recipientID,
		Content:         content,
		Type:            typ,
		Priority:        priority,
		Encrypted:       encrypted,
		Status:          MessagePending,
		Timestamp:       c.now(),
		TransactionHash: receipt.TxHash,
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.TransactionHash != "" {
		msg.Status = MessageDelivered
	}

	if err := c.state.messages.Put(ctx, msg.ID, msg); err != nil {
		return Message{}, fmt.Errorf("protocol: appending message %s: %w", msg.ID, err)
	}
	c.touchSelf()
	telemetry.Metrics.MessagesTotal.WithLabelValues(string(typ)).Inc()

	c.logger.Info("message sent",
		slog.String("message_id", msg.ID),
		slog.String("recipient_id", recipientID),
		slog.String("tx_hash", msg.TransactionHash),
	)
	c.record(ctx, events.MessageSent, msg.ID, map[string]string{
		"recipient_id": recipientID,
		"type":         string(typ),
		"tx_hash":      msg.TransactionHash,
	})
	return msg, nil
}

// GetMessages returns log entries matching f, most recent first. It needs no
// registration.
func (c *Coordinator) GetMessages(ctx context.Context, f MessageFilter) ([]Message, error) {
	if !c.Initialized() {
		return nil, ErrNotInitialized
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var all []Message
	err := c.state.messages.Iterate(ctx, func(_ string, m Message) bool {
		all = append(all, m)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: reading message log: %w", err)
	}
	return FilterMessages(all, f), nil
}

// FilterMessages applies f to a log in insertion order and returns the
// matches newest first. Equal timestamps keep the later insert first.
func FilterMessages(log []Message, f MessageFilter) []Message {
	matched := make([]Message, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		m := log[i]
		if f.SenderID != "" && m.SenderID != f.SenderID {
			continue
		}
		if f.RecipientID != "" && m.RecipientID != f.RecipientID {
			continue
		}
		if f.Type != "" && m.Type != f.Type {
			continue
		}
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if !f.Since.IsZero() && m.Timestamp.Before(f.Since) {
			continue
		}
		if f.UnreadOnly && m.Status == MessageRead {
			continue
		}
		matched = append(matched, m)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched
}

// UpdateMessageStatus advances a logged message along
// pending→delivered→read, or to failed. Re-applying the current status is a
// no-op.
func (c *Coordinator) UpdateMessageStatus(ctx context.Context, id string, status MessageStatus) (msg Message, err error) {
	defer c.observe("update_message_status", time.Now(), &err)
	if !c.Initialized() {
		return Message{}, ErrNotInitialized
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	msg, ok, err := c.state.messages.Get(ctx, id)
	if err != nil {
		return Message{}, fmt.Errorf("protocol: loading message %s: %w", id, err)
	}
	if !ok {
		return Message{}, fmt.Errorf("%w: message %q", ErrNotFound, id)
	}
	if msg.Status == status {
		return msg, nil
	}
	if !contains(statusStrings(messageTransitions[msg.Status]), string(status)) {
		return Message{}, fmt.Errorf("%w: message %s cannot go from %s to %s", ErrInvalidTransition, id, msg.Status, status)
	}

	msg.Status = status
	if err := c.state.messages.Put(ctx, msg.ID, msg); err != nil {
		return Message{}, fmt.Errorf("protocol: saving message %s: %w", id, err)
	}
	c.publish(events.MessageStatus, msg.ID, string(status))
	return msg, nil
}

func validMessageType(t MessageType) bool {
	switch t {
	case MessageText, MessageData, MessageCommand, MessageResponse:
		return true
	}
	return false
}

func validPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func statusStrings[S ~string](in []S) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
