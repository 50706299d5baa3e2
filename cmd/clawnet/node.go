package clawnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/igorsilveira/clawnet/pkg/audit"
	"github.com/igorsilveira/clawnet/pkg/chain"
	"github.com/igorsilveira/clawnet/pkg/config"
	"github.com/igorsilveira/clawnet/pkg/credentials"
	"github.com/igorsilveira/clawnet/pkg/events"
	"github.com/igorsilveira/clawnet/pkg/plugin"
	"github.com/igorsilveira/clawnet/pkg/protocol"
	"github.com/igorsilveira/clawnet/pkg/scheduler"
	"github.com/igorsilveira/clawnet/pkg/server"
	"github.com/igorsilveira/clawnet/pkg/store"
)

// node is one running agent: its state, the gateway it talks to and the
// surfaces exposing it.
type node struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	audit     *audit.Logger
	hub       *events.Hub
	sim       *chain.Simulator
	coord     *protocol.Coordinator
	registry  *plugin.Registry
	scheduler *scheduler.Scheduler
	server    *server.Server
}

func newGateway(cfg *config.Config, logger *slog.Logger) (protocol.Gateway, *chain.Simulator, error) {
	if cfg.Gateway.Mode == "simulate" {
		sim := chain.NewSimulator(chain.WithAgents(chain.DemoAgents()...))
		return sim, sim, nil
	}
	client, err := chain.NewRPCClient(chain.ClientConfig{
		Endpoint:  cfg.Protocol.RPCURL,
		ProgramID: cfg.Protocol.ProgramID,
		WalletKey: cfg.Protocol.WalletKey,
		Timeout:   cfg.Gateway.TimeoutDuration(),
		RateLimit: cfg.Gateway.RateLimit,
		Burst:     cfg.Gateway.Burst,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, nil, nil
}

func buildNode(cfg *config.Config, logger *slog.Logger) (*node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	st, err := store.New(cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	if err := resolveWalletKey(cfg, st); err != nil {
		st.Close()
		return nil, err
	}

	auditLog, err := audit.New(st.DB())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("initializing audit logger: %w", err)
	}

	gw, sim, err := newGateway(cfg, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating gateway: %w", err)
	}

	hub := events.NewHub(0)
	coord, err := protocol.New(protocol.Config{
		State:         protocol.NewPersistentState(st),
		Gateway:       gw,
		Settings:      cfg.Protocol.Settings(),
		Logger:        logger,
		Audit:         auditLog,
		Events:        hub,
		EscrowWindow:  cfg.Escrow.WindowDuration(),
		AnchorEscrows: cfg.Escrow.Anchor,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	sched := scheduler.New()
	if cfg.Sync.Enabled {
		if err := sched.Add(scheduler.SyncJob(coord, cfg.Sync.Schedule())); err != nil {
			st.Close()
			return nil, err
		}
	}

	n := &node{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		audit:     auditLog,
		hub:       hub,
		sim:       sim,
		coord:     coord,
		registry:  plugin.Default(coord, nil),
		scheduler: sched,
	}

	var rpc http.Handler
	if cfg.Server.ExposeRPC && sim != nil {
		rpc = chain.NewHandler(chain.HandlerConfig{
			Gateway:   sim,
			Logger:    logger,
			AuthToken: cfg.Server.AuthToken,
		})
	}

	n.server = server.New(server.Config{
		Addr:        cfg.Server.ListenAddr(),
		Coordinator: coord,
		Registry:    n.registry,
		Hub:         hub,
		Audit:       auditLog,
		Scheduler:   sched,
		Logger:      logger,
		Webhooks:    server.GatewayCallbacks(coord, cfg.Server.WebhookSecret),
		RPC:         rpc,
		AuthToken:   cfg.Server.AuthToken,
		PublicURL:   cfg.Server.AdvertisedURL(),
		Version:     version,
	})
	return n, nil
}

// resolveWalletKey fills an empty wallet_key from the credential vault when
// a master key is set. Config and environment values win over the vault.
func resolveWalletKey(cfg *config.Config, st *store.Store) error {
	if cfg.Protocol.WalletKey != "" || cfg.Protocol.MasterKey == "" {
		return nil
	}
	vault, err := credentials.New(st.DB(), cfg.Protocol.MasterKey)
	if err != nil {
		return err
	}
	key, err := vault.Get(context.Background(), credentials.WalletKey)
	if errors.Is(err, credentials.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading wallet key: %w", err)
	}
	cfg.Protocol.WalletKey = key
	return nil
}

// autoRegister anchors the configured identity when auto_register is set.
// A failure is logged and left for the register action to retry.
func (n *node) autoRegister(ctx context.Context) {
	if !n.cfg.Protocol.AutoRegister || n.coord.Registered() {
		return
	}
	agent, err := n.coord.Register(ctx, n.cfg.Protocol.Identity(), n.cfg.Protocol.Capabilities)
	if err != nil {
		n.logger.Error("auto registration failed",
			slog.String("kind", protocol.KindOf(err)),
			slog.String("err", err.Error()),
		)
		return
	}
	n.logger.Info("agent registered",
		slog.String("agent_id", agent.ID),
		slog.String("wallet", agent.WalletAddress),
	)
}

// run blocks until ctx is cancelled or the server fails.
func (n *node) run(ctx context.Context) error {
	n.autoRegister(ctx)

	schedDone := make(chan struct{})
	go func() {
		n.scheduler.Start(ctx)
		close(schedDone)
	}()

	err := n.server.Start(ctx)
	n.scheduler.Stop()
	<-schedDone
	return err
}

func (n *node) Close() error {
	n.hub.Close()
	return n.store.Close()
}
