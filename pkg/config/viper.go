package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/escrowd/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the ESCROWD_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (ESCROWD_API_LISTEN, ESCROWD_LEDGER_RPC_URL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: ESCROWD_LEDGER_CONTROLLER_KEY, ESCROWD_LLM_API_KEY, etc.
	v.SetEnvPrefix("ESCROWD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes a Config from the resolved viper values so that
// flags, environment, and file settings all land in one struct.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			Provider:    v.GetString("storage.provider"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		Facts: FactsConfig{
			Dir: v.GetString("facts.dir"),
		},
		Ledger: LedgerConfig{
			Provider:        v.GetString("ledger.provider"),
			RPCURL:          v.GetString("ledger.rpc_url"),
			ContractAddress: v.GetString("ledger.contract_address"),
			ChainID:         v.GetUint("ledger.chain_id"),
			ControllerKey:   v.GetString("ledger.controller_key"),
			PollInterval:    v.GetString("ledger.poll_interval"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		Agent: AgentConfig{
			MerchantTarget:      v.GetString("agent.merchant_target"),
			DefaultMerchant:     v.GetString("agent.default_merchant"),
			DefaultSellerWallet: v.GetString("agent.default_seller_wallet"),
			RemoteTimeout:       v.GetString("agent.remote_timeout"),
		},
		LLM: LLMConfig{
			BaseURL: v.GetString("llm.base_url"),
			Model:   v.GetString("llm.model"),
			APIKey:  v.GetString("llm.api_key"),
		},
		Events: EventsConfig{
			Provider: v.GetString("events.provider"),
			Brokers:  v.GetString("events.brokers"),
			Topic:    v.GetString("events.topic"),
		},
		Client: ClientConfig{
			APITarget: v.GetString("client.api_target"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.provider", d.Storage.Provider)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Facts
	v.SetDefault("facts.dir", d.Facts.Dir)

	// Ledger
	v.SetDefault("ledger.provider", d.Ledger.Provider)
	v.SetDefault("ledger.rpc_url", d.Ledger.RPCURL)
	v.SetDefault("ledger.contract_address", d.Ledger.ContractAddress)
	v.SetDefault("ledger.chain_id", d.Ledger.ChainID)
	v.SetDefault("ledger.controller_key", d.Ledger.ControllerKey)
	v.SetDefault("ledger.poll_interval", d.Ledger.PollInterval)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Agent
	v.SetDefault("agent.merchant_target", d.Agent.MerchantTarget)
	v.SetDefault("agent.default_merchant", d.Agent.DefaultMerchant)
	v.SetDefault("agent.default_seller_wallet", d.Agent.DefaultSellerWallet)
	v.SetDefault("agent.remote_timeout", d.Agent.RemoteTimeout)

	// LLM
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)
}
