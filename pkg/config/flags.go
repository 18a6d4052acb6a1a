package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --rpc-url
// on both "escrowd serve" and "escrowd order get").
type Flag struct {
	// Name is the long flag name (e.g. "rpc-url").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "ledger.rpc_url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPIListen       = "api-listen"
	FlagStorageProvider = "storage-provider"
	FlagSQLite          = "sqlite"
	FlagPostgres        = "postgres"
	FlagFactsDir        = "facts-dir"
	FlagLedgerProvider  = "ledger-provider"
	FlagRPCURL          = "rpc-url"
	FlagContract        = "contract"
	FlagChainID         = "chain-id"
	FlagMerchantTarget  = "merchant-target"
	FlagDefaultMerchant = "merchant"
	FlagDefaultSeller   = "default-seller"
	FlagLLMBaseURL      = "llm-base-url"
	FlagLLMModel        = "llm-model"
	FlagEventsProvider  = "events-provider"
	FlagKafkaBrokers    = "kafka-brokers"
	FlagKafkaTopic      = "kafka-topic"
	FlagAPITarget       = "api-target"
)

// Registry is the set of flags shared across escrowd commands.
var Registry = FlagSet{
	FlagAPIListen:       {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagStorageProvider: {Name: "storage", ViperKey: "storage.provider", Description: "Content store provider (memory, sqlite, postgres)"},
	FlagSQLite:          {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite content store"},
	FlagPostgres:        {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string for the content store"},
	FlagFactsDir:        {Name: "facts-dir", ViperKey: "facts.dir", Description: "Directory holding merchant fact logs (default: .escrowd/facts)"},
	FlagLedgerProvider:  {Name: "ledger", ViperKey: "ledger.provider", Description: "Escrow ledger provider (memory, ethereum)"},
	FlagRPCURL:          {Name: "rpc-url", ViperKey: "ledger.rpc_url", Description: "Ethereum JSON-RPC endpoint"},
	FlagContract:        {Name: "contract", ViperKey: "ledger.contract_address", Description: "Escrow contract address"},
	FlagChainID:         {Name: "chain-id", ViperKey: "ledger.chain_id", Description: "Chain id used to sign controller transactions"},
	FlagMerchantTarget:  {Name: "merchant-target", ViperKey: "agent.merchant_target", Description: "Merchant agent URL consulted by the customer agent"},
	FlagDefaultMerchant: {Name: "merchant", Shorthand: "m", ViperKey: "agent.default_merchant", Description: "Merchant scope used when a message carries no merchant_id hint"},
	FlagDefaultSeller:   {Name: "default-seller", ViperKey: "agent.default_seller_wallet", Description: "Fallback seller payout wallet"},
	FlagLLMBaseURL:      {Name: "llm-base-url", ViperKey: "llm.base_url", Description: "OpenAI-compatible base URL for negotiation"},
	FlagLLMModel:        {Name: "llm-model", ViperKey: "llm.model", Description: "Negotiation model name"},
	FlagEventsProvider:  {Name: "events", ViperKey: "events.provider", Description: "Order event stream provider (nop, kafka)"},
	FlagKafkaBrokers:    {Name: "kafka-brokers", ViperKey: "events.brokers", Description: "Comma separated Kafka brokers"},
	FlagKafkaTopic:      {Name: "kafka-topic", ViperKey: "events.topic", Description: "Kafka topic for order events"},
	FlagAPITarget:       {Name: "api-target", ViperKey: "client.api_target", Description: "escrowd API server URL"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
