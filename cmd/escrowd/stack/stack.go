// Package stack assembles escrowd components from the resolved config so
// the serve, order, and merchant commands build them the same way.
package stack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/escrowd/pkg/config"
	"github.com/papercomputeco/escrowd/pkg/contentstore"
	"github.com/papercomputeco/escrowd/pkg/contentstore/inmemory"
	"github.com/papercomputeco/escrowd/pkg/contentstore/postgres"
	"github.com/papercomputeco/escrowd/pkg/contentstore/sqlite"
	"github.com/papercomputeco/escrowd/pkg/dotdir"
	"github.com/papercomputeco/escrowd/pkg/escrow"
	"github.com/papercomputeco/escrowd/pkg/escrow/ethbackend"
	"github.com/papercomputeco/escrowd/pkg/escrow/memledger"
	"github.com/papercomputeco/escrowd/pkg/eventstream"
	"github.com/papercomputeco/escrowd/pkg/eventstream/kafka"
	"github.com/papercomputeco/escrowd/pkg/eventstream/nop"
	"github.com/papercomputeco/escrowd/pkg/facts"
	"github.com/papercomputeco/escrowd/pkg/knowledge"
)

// Provider names.
const (
	ProviderMemory   = "memory"
	ProviderSQLite   = "sqlite"
	ProviderPostgres = "postgres"
	ProviderEthereum = "ethereum"
	ProviderKafka    = "kafka"
	ProviderNop      = "nop"
)

// Load resolves the config for cmd. Flags named by keys take precedence
// over ESCROWD_* environment variables, which take precedence over
// config.toml. It also returns the --config-dir override.
func Load(cmd *cobra.Command, keys ...string) (*config.Config, string, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Registry, keys)

	return config.FromViper(v), configDir, nil
}

// OpenContent opens the content store selected by storage.provider.
func OpenContent(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*contentstore.Store, error) {
	var driver contentstore.Driver

	switch strings.ToLower(cfg.Storage.Provider) {
	case "", ProviderMemory:
		logger.Info("using in-memory content store")
		driver = inmemory.NewDriver()

	case ProviderSQLite:
		if cfg.Storage.SQLitePath == "" {
			return nil, fmt.Errorf("storage.sqlite_path is required for the %s provider", ProviderSQLite)
		}
		d, err := sqlite.NewDriver(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite content store: %w", err)
		}
		logger.Info("using SQLite content store", "path", cfg.Storage.SQLitePath)
		driver = d

	case ProviderPostgres:
		if cfg.Storage.PostgresDSN == "" {
			return nil, fmt.Errorf("storage.postgres_dsn is required for the %s provider", ProviderPostgres)
		}
		d, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres content store: %w", err)
		}
		logger.Info("using PostgreSQL content store")
		driver = d

	default:
		return nil, fmt.Errorf("unknown storage provider: %q", cfg.Storage.Provider)
	}

	return contentstore.NewStore(driver, logger), nil
}

// Ledger is an escrow client and its backend.
type Ledger struct {
	Client  *escrow.Client
	Backend escrow.Backend
	close   func()
}

// Close releases the backend connection.
func (l *Ledger) Close() {
	if l.close != nil {
		l.close()
	}
}

// OpenLedger connects to the ledger selected by ledger.provider.
func OpenLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Ledger, error) {
	var (
		backend escrow.Backend
		closer  func()
	)

	switch strings.ToLower(cfg.Ledger.Provider) {
	case "", ProviderMemory:
		l, err := memledger.New(memledger.Config{})
		if err != nil {
			return nil, err
		}
		logger.Warn("using in-memory ledger, orders are lost on exit", "contract", l.Contract().Hex())
		backend = l

	case ProviderEthereum:
		b, err := ethbackend.Dial(ctx, ethbackend.Config{
			RPCURL:        cfg.Ledger.RPCURL,
			Contract:      cfg.Ledger.ContractAddress,
			ControllerKey: cfg.Ledger.ControllerKey,
			ChainID:       uint64(cfg.Ledger.ChainID),
			Logger:        logger,
		})
		if err != nil {
			return nil, fmt.Errorf("dialing ledger: %w", err)
		}
		logger.Info("connected to ledger", "rpc_url", cfg.Ledger.RPCURL, "contract", b.Contract().Hex())
		backend, closer = b, b.Close

	default:
		return nil, fmt.Errorf("unknown ledger provider: %q", cfg.Ledger.Provider)
	}

	client, err := escrow.NewClient(escrow.Config{Backend: backend, Logger: logger})
	if err != nil {
		if closer != nil {
			closer()
		}
		return nil, err
	}
	return &Ledger{Client: client, Backend: backend, close: closer}, nil
}

// OpenRegistry opens the merchant fact logs, defaulting to facts/ inside
// the .escrowd directory.
func OpenRegistry(cfg *config.Config, configDir string, logger *slog.Logger) (*knowledge.Registry, error) {
	dir := cfg.Facts.Dir
	if dir == "" {
		var err error
		dir, err = dotdir.NewManager().FactsDir(configDir)
		if err != nil {
			return nil, err
		}
	}

	store, err := facts.NewStore(facts.Config{Dir: dir, Logger: logger})
	if err != nil {
		return nil, err
	}
	return knowledge.NewRegistry(store, logger), nil
}

// OpenPublisher returns the order event publisher selected by
// events.provider.
func OpenPublisher(cfg *config.Config, logger *slog.Logger) (eventstream.Publisher, error) {
	switch strings.ToLower(cfg.Events.Provider) {
	case "", ProviderNop:
		return nop.NewPublisher(), nil

	case ProviderKafka:
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.KafkaBrokers(),
			Topic:   cfg.Events.Topic,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("publishing order events to kafka", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
		return p, nil

	default:
		return nil, fmt.Errorf("unknown events provider: %q", cfg.Events.Provider)
	}
}
