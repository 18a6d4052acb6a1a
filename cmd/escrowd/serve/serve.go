// Package servecmder provides the serve command that runs the customer and
// merchant agents, the escrow watcher, and the API server together.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/escrowd/api"
	apimcp "github.com/papercomputeco/escrowd/api/mcp"
	"github.com/papercomputeco/escrowd/cmd/escrowd/stack"
	"github.com/papercomputeco/escrowd/pkg/agent"
	"github.com/papercomputeco/escrowd/pkg/agent/negotiator"
	"github.com/papercomputeco/escrowd/pkg/config"
	"github.com/papercomputeco/escrowd/pkg/dotdir"
	"github.com/papercomputeco/escrowd/pkg/escrow"
	"github.com/papercomputeco/escrowd/pkg/escrow/watch"
	"github.com/papercomputeco/escrowd/pkg/logger"
	"github.com/papercomputeco/escrowd/pkg/search"
	"github.com/papercomputeco/escrowd/pkg/settlement"
	"github.com/papercomputeco/escrowd/pkg/worker"
)

type ServeCommander struct {
	flags config.FlagSet
	cfg   *config.Config

	configDir string
	debug     bool

	listen          string
	storage         string
	sqlitePath      string
	postgresDSN     string
	factsDir        string
	ledgerProvider  string
	rpcURL          string
	contract        string
	chainID         uint
	merchantTarget  string
	defaultMerchant string
	defaultSeller   string
	llmBaseURL      string
	llmModel        string
	eventsProvider  string
	kafkaBrokers    string
	kafkaTopic      string

	logger *slog.Logger
	zap    *zap.Logger
}

var serveFlags = []string{
	config.FlagAPIListen,
	config.FlagStorageProvider,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagFactsDir,
	config.FlagLedgerProvider,
	config.FlagRPCURL,
	config.FlagContract,
	config.FlagChainID,
	config.FlagMerchantTarget,
	config.FlagDefaultMerchant,
	config.FlagDefaultSeller,
	config.FlagLLMBaseURL,
	config.FlagLLMModel,
	config.FlagEventsProvider,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

const serveLongDesc string = `Run escrowd services.

Starts the customer and merchant agents behind the HTTP API, the MCP
endpoint at /mcp, and the escrow event watcher. Configuration comes from
flags, ESCROWD_* environment variables, and .escrowd/config.toml in that
order of precedence.

The customer agent negotiates with the merchant agent configured by
--merchant-target, which defaults to this same server.

Logs go to the terminal and, as JSON, to escrowd.log in the .escrowd
directory.`

const serveShortDesc string = "Run escrowd services"

func NewServeCmd() *cobra.Command {
	return newServeCmd(&ServeCommander{flags: config.Registry})
}

func newServeCmd(cmder *ServeCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, cmder.flags, serveFlags)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, cmder.flags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, cmder.flags, config.FlagStorageProvider, &cmder.storage)
	config.AddStringFlag(cmd, cmder.flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, cmder.flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, cmder.flags, config.FlagFactsDir, &cmder.factsDir)
	config.AddStringFlag(cmd, cmder.flags, config.FlagLedgerProvider, &cmder.ledgerProvider)
	config.AddStringFlag(cmd, cmder.flags, config.FlagRPCURL, &cmder.rpcURL)
	config.AddStringFlag(cmd, cmder.flags, config.FlagContract, &cmder.contract)
	config.AddUintFlag(cmd, cmder.flags, config.FlagChainID, &cmder.chainID)
	config.AddStringFlag(cmd, cmder.flags, config.FlagMerchantTarget, &cmder.merchantTarget)
	config.AddStringFlag(cmd, cmder.flags, config.FlagDefaultMerchant, &cmder.defaultMerchant)
	config.AddStringFlag(cmd, cmder.flags, config.FlagDefaultSeller, &cmder.defaultSeller)
	config.AddStringFlag(cmd, cmder.flags, config.FlagLLMBaseURL, &cmder.llmBaseURL)
	config.AddStringFlag(cmd, cmder.flags, config.FlagLLMModel, &cmder.llmModel)
	config.AddStringFlag(cmd, cmder.flags, config.FlagEventsProvider, &cmder.eventsProvider)
	config.AddStringFlag(cmd, cmder.flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, cmder.flags, config.FlagKafkaTopic, &cmder.kafkaTopic)

	return cmd
}

func (c *ServeCommander) run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	ddm := dotdir.NewManager()
	closeLog := c.openLoggers(ddm)
	defer closeLog()

	cfg := c.cfg
	pollInterval, err := cfg.PollInterval()
	if err != nil {
		return err
	}
	remoteTimeout, err := cfg.RemoteTimeout()
	if err != nil {
		return err
	}

	content, err := stack.OpenContent(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer content.Close()

	ledger, err := stack.OpenLedger(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer ledger.Close()

	registry, err := stack.OpenRegistry(cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}

	index, err := search.NewIndex(search.Config{Registry: registry, Logger: c.logger})
	if err != nil {
		return err
	}

	publisher, err := stack.OpenPublisher(cfg, c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	pool, err := worker.NewPool(&worker.Config{
		Publisher: publisher,
		Logger:    c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating event pool: %w", err)
	}
	defer pool.Close()

	watcher, err := watch.New(watch.Config{
		Backend:  ledger.Backend,
		Pool:     pool,
		Interval: pollInterval,
		Logger:   c.logger,
	})
	if err != nil {
		return err
	}
	watcher.OnEvent(func(_ context.Context, ev *escrow.Event) {
		c.logger.Debug("escrow event", "name", ev.Name, "order_id", ev.OrderID, "status", ev.Status.String())
	})

	merchantClient, err := agent.NewMerchantClient(agent.MerchantClientConfig{
		Target:  cfg.Agent.MerchantTarget,
		Timeout: remoteTimeout,
		Logger:  c.logger,
	})
	if err != nil {
		return err
	}

	coordinator, err := settlement.NewCoordinator(settlement.Config{
		Content:             content,
		Ledger:              ledger.Client,
		Merchant:            merchantClient,
		DefaultSellerWallet: cfg.Agent.DefaultSellerWallet,
		RemoteTimeout:       remoteTimeout,
		OnPartial:           c.recordPending(ddm),
		OnResolved: func(orderID string) {
			if err := ddm.ClearPending(orderID, c.configDir); err != nil {
				c.logger.Warn("could not clear pending settlement", "order_id", orderID, "error", err)
			}
		},
		Events: pool,
		Logger: c.logger,
	})
	if err != nil {
		return err
	}

	neg, hasLLM := c.negotiator(cfg)

	// Without a model the merchant answers questions with its menu summary.
	var merchantNeg agent.Negotiator
	if hasLLM {
		merchantNeg = neg
	}

	merchantRouter, err := agent.NewMerchantRouter(agent.MerchantConfig{
		Registry:     registry,
		Negotiator:   merchantNeg,
		DefaultScope: cfg.Agent.DefaultMerchant,
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}

	customerRouter, err := agent.NewCustomerRouter(agent.CustomerConfig{
		Orders:          coordinator,
		Negotiator:      neg,
		Merchant:        merchantClient,
		DefaultMerchant: cfg.Agent.DefaultMerchant,
		Logger:          c.logger,
	})
	if err != nil {
		return err
	}

	mcpServer, err := apimcp.NewServer(apimcp.Config{
		Registry: registry,
		Index:    index,
		Ledger:   ledger.Client,
		Logger:   c.zap,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer := api.NewServer(api.Config{
		ListenAddr:  cfg.API.Listen,
		Customer:    customerRouter,
		Merchant:    merchantRouter,
		Registry:    registry,
		Index:       index,
		Content:     content,
		Ledger:      ledger.Client,
		Coordinator: coordinator,
		MCP:         mcpServer.Handler(),
	}, c.zap)

	c.zap.Info("starting api server",
		zap.String("api_addr", cfg.API.Listen),
		zap.String("merchant_target", cfg.Agent.MerchantTarget),
	)

	// Channel to capture errors from goroutines
	errChan := make(chan error, 3)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	go func() {
		if err := watcher.Run(ctx); err != nil {
			errChan <- fmt.Errorf("escrow watcher error: %w", err)
		}
	}()

	go func() {
		if err := index.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			// Search still works without the watcher, it just rebuilds on
			// the fingerprint check instead of on change.
			c.logger.Warn("merchant facts watcher stopped", "error", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		_ = apiServer.Shutdown()
		return err
	case sig := <-sigChan:
		c.zap.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		return apiServer.Shutdown()
	}
}

// openLoggers sends slog output to the terminal and to .escrowd/escrowd.log,
// and zap output to the terminal and the same file. Without a log file only
// the terminal is used.
func (c *ServeCommander) openLoggers(ddm *dotdir.Manager) func() {
	term := logger.NewLogger(c.debug)

	f, err := ddm.OpenLog(c.configDir)
	if err != nil {
		c.logger = term
		c.zap = logger.NewZap(c.debug)
		c.logger.Warn("logging to terminal only", "error", err)
		return func() { _ = c.zap.Sync() }
	}

	c.logger = logger.Multi(term, logger.NewFileLogger(f, "serve", c.debug))
	c.zap = logger.NewZap(c.debug, os.Stdout, f)
	return func() {
		_ = c.zap.Sync()
		_ = f.Close()
	}
}

// negotiator picks the OpenAI-compatible negotiator when an API key is
// available, and a static one that only chats otherwise.
func (c *ServeCommander) negotiator(cfg *config.Config) (agent.Negotiator, bool) {
	oc := negotiator.OpenAIConfig{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		APIKey:  cfg.LLM.APIKey,
		Logger:  c.logger,
	}
	if negotiator.HasCredentials(oc) {
		n, err := negotiator.NewOpenAI(oc)
		if err == nil {
			c.logger.Info("negotiating with LLM", "base_url", cfg.LLM.BaseURL, "model", cfg.LLM.Model)
			return n, true
		}
		c.logger.Warn("could not create LLM negotiator", "error", err)
	}

	c.logger.Warn("no LLM API key configured, agents reply without negotiation")
	return negotiator.NewStatic(noLLMReply), false
}

const noLLMReply = "Negotiation is unavailable: no LLM API key is configured. Set llm.api_key or OPENAI_API_KEY."

func (c *ServeCommander) recordPending(ddm *dotdir.Manager) func(settlement.Pending) {
	return func(p settlement.Pending) {
		entry := dotdir.PendingSettlement{
			OrderID:    p.OrderID,
			Step:       p.Step,
			Buyer:      p.Buyer,
			MerchantID: p.MerchantID,
			Price:      p.Price.String(),
		}
		if p.Err != nil {
			entry.Reason = p.Err.Error()
		}
		if err := ddm.RecordPending(entry, c.configDir); err != nil {
			c.logger.Error("could not record pending settlement", "order_id", p.OrderID, "error", err)
		}
	}
}
