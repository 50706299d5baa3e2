package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/igorsilveira/clawnet/pkg/events"
)

var escrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowCreated:  {EscrowFunded, EscrowDisputed},
	EscrowFunded:   {EscrowCompleted, EscrowDisputed},
	EscrowDisputed: {EscrowRefunded},
}

// CanTransition reports whether the escrow state machine allows from→to.
func CanTransition(from, to EscrowStatus) bool {
	for _, next := range escrowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateEscrow records an escrow agreement with counterpartyID. The deadline
// is fixed at creation to now plus the configured window. Unless
// AnchorEscrows is set the gateway is not involved.
func (c *Coordinator) CreateEscrow(ctx context.Context, counterpartyID string, amount int64, service string, deliverables []string) (e Escrow, err error) {
	defer c.observe("create_escrow", time.Now(), &err)
	if !c.Initialized() {
		return Escrow{}, ErrNotInitialized
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireRegistered(); err != nil {
		return Escrow{}, err
	}
	if amount <= 0 {
		return Escrow{}, fmt.Errorf("%w: escrow amount must be positive, got %d", ErrInvalidArgument, amount)
	}
	if strings.TrimSpace(counterpartyID) == "" {
		return Escrow{}, fmt.Errorf("%w: counterparty is empty", ErrInvalidArgument)
	}
	if counterpartyID == c.state.self.ID {
		return Escrow{}, fmt.Errorf("%w: cannot open an escrow with yourself", ErrInvalidArgument)
	}

	now := c.now()
	e = Escrow{
		ID:             uuid.NewString(),
		Amount:         amount,
		CounterpartyID: counterpartyID,
		Service:        service,
		Deliverables:   cloneStrings(deliverables),
		Deadline:       now.Add(c.escrowWindow),
		Status:         EscrowCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if e.Deliverables == nil {
		e.Deliverables = []string{}
	}

	if c.anchorEscrows {
		receipt, err := c.gateway.CreateEscrow(ctx, EscrowRequest{
			CounterpartyID: counterpartyID,
			Amount:         amount,
			Service:        service,
			Deliverables:   cloneStrings(e.Deliverables),
			DeadlineUnix:   e.Deadline.Unix(),
		})
		if err != nil {
			return Escrow{}, deliveryFailed("create_escrow", err)
		}
		if receipt.ID != "" {
			e.ID = receipt.ID
		}
		e.TransactionHash = receipt.TxHash
	}

	if err := c.state.escrows.Put(ctx, e.ID, e); err != nil {
		return Escrow{}, fmt.Errorf("protocol: saving escrow %s: %w", e.ID, err)
	}
	c.touchSelf()
	c.refreshGauges(ctx)

	c.logger.Info("escrow created",
		slog.String("escrow_id", e.ID),
		slog.String("counterparty_id", counterpartyID),
		slog.Int64("amount", amount),
		slog.Bool("anchored", c.anchorEscrows),
	)
	c.record(ctx, events.EscrowCreated, e.ID, map[string]any{
		"counterparty_id": counterpartyID,
		"amount":          amount,
		"deadline":        e.Deadline,
	})
	return cloneEscrow(e), nil
}

// GetEscrow returns a copy of an escrow.
func (c *Coordinator) GetEscrow(ctx context.Context, id string) (Escrow, error) {
	if !c.Initialized() {
		return Escrow{}, ErrNotInitialized
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok, err := c.state.escrows.Get(ctx, id)
	if err != nil {
		return Escrow{}, fmt.Errorf("protocol: loading escrow %s: %w", id, err)
	}
	if !ok {
		return Escrow{}, fmt.Errorf("%w: escrow %q", ErrNotFound, id)
	}
	return cloneEscrow(e), nil
}

// ListEscrows returns every escrow in creation order.
func (c *Coordinator) ListEscrows(ctx context.Context) ([]Escrow, error) {
	if !c.Initialized() {
		return nil, ErrNotInitialized
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Escrow
	err := c.state.escrows.Iterate(ctx, func(_ string, e Escrow) bool {
		out = append(out, cloneEscrow(e))
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: listing escrows: %w", err)
	}
	return out, nil
}

// FundEscrow moves a created escrow to funded. amount must match the
// recorded amount, also when the escrow is already funded, and the deadline
// must not have passed.
func (c *Coordinator) FundEscrow(ctx context.Context, id string, amount int64) (Escrow, error) {
	matches := func(e Escrow) error {
		if amount != e.Amount {
			return fmt.Errorf("%w: funding %d does not match escrow amount %d", ErrInvalidArgument, amount, e.Amount)
		}
		return nil
	}
	return c.transitionEscrow(ctx, "fund_escrow", id, EscrowFunded, matches, checkDeadline)
}

// CompleteEscrow releases a funded escrow before its deadline.
func (c *Coordinator) CompleteEscrow(ctx context.Context, id string) (Escrow, error) {
	return c.transitionEscrow(ctx, "complete_escrow", id, EscrowCompleted, nil, checkDeadline)
}

func (c *Coordinator) DisputeEscrow(ctx context.Context, id string) (Escrow, error) {
	return c.transitionEscrow(ctx, "dispute_escrow", id, EscrowDisputed, nil, nil)
}

func (c *Coordinator) RefundEscrow(ctx context.Context, id string) (Escrow, error) {
	return c.transitionEscrow(ctx, "refund_escrow", id, EscrowRefunded, nil, nil)
}

// transitionEscrow moves escrow id to status to. validate runs on every
// call, including the no-op when the escrow is already in to; check runs only
// before a real transition.
func (c *Coordinator) transitionEscrow(ctx context.Context, op, id string, to EscrowStatus, validate func(Escrow) error, check func(Escrow, time.Time) error) (e Escrow, err error) {
	defer c.observe(op, time.Now(), &err)
	if !c.Initialized() {
		return Escrow{}, ErrNotInitialized
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireRegistered(); err != nil {
		return Escrow{}, err
	}

	e, ok, err := c.state.escrows.Get(ctx, id)
	if err != nil {
		return Escrow{}, fmt.Errorf("protocol: loading escrow %s: %w", id, err)
	}
	if !ok {
		return Escrow{}, fmt.Errorf("%w: escrow %q", ErrNotFound, id)
	}
	if validate != nil {
		if err := validate(e); err != nil {
			return Escrow{}, err
		}
	}
	if e.Status == to {
		return cloneEscrow(e), nil
	}
	if !CanTransition(e.Status, to) {
		return Escrow{}, fmt.Errorf("%w: escrow %s cannot go from %s to %s", ErrInvalidTransition, id, e.Status, to)
	}

	now := c.now()
	if check != nil {
		if err := check(e, now); err != nil {
			return Escrow{}, err
		}
	}

	from := e.Status
	e.Status = to
	e.UpdatedAt = now
	if err := c.state.escrows.Put(ctx, e.ID, e); err != nil {
		return Escrow{}, fmt.Errorf("protocol: saving escrow %s: %w", id, err)
	}
	c.refreshGauges(ctx)

	c.logger.Info("escrow transition",
		slog.String("escrow_id", id),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	c.record(ctx, events.EscrowTransition, e.ID, map[string]string{"from": string(from), "to": string(to)})
	return cloneEscrow(e), nil
}

func checkDeadline(e Escrow, now time.Time) error {
	if now.After(e.Deadline) {
		return fmt.Errorf("%w: escrow %s passed its deadline %s", ErrInvalidArgument, e.ID, e.Deadline.Format(time.RFC3339))
	}
	return nil
}
