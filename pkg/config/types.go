package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent escrowd configuration stored as config.toml
// in the .escrowd/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Storage StorageConfig `toml:"storage"`
	Facts   FactsConfig   `toml:"facts"`
	Ledger  LedgerConfig  `toml:"ledger"`
	API     APIConfig     `toml:"api"`
	Agent   AgentConfig   `toml:"agent"`
	LLM     LLMConfig     `toml:"llm"`
	Events  EventsConfig  `toml:"events"`
	Client  ClientConfig  `toml:"client"`
}

// StorageConfig selects the content store backing order description records.
type StorageConfig struct {
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// FactsConfig holds the merchant fact log settings. An empty Dir resolves to
// the facts/ directory inside .escrowd/.
type FactsConfig struct {
	Dir string `toml:"dir,omitempty"`
}

// LedgerConfig holds the escrow contract connection settings.
type LedgerConfig struct {
	Provider        string `toml:"provider,omitempty"`
	RPCURL          string `toml:"rpc_url,omitempty"`
	ContractAddress string `toml:"contract_address,omitempty"`
	ChainID         uint   `toml:"chain_id,omitempty"`
	ControllerKey   string `toml:"controller_key,omitempty"`
	PollInterval    string `toml:"poll_interval,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// AgentConfig holds settings shared by the customer and merchant agents.
// MerchantTarget is the full URL (scheme + host + port) of the merchant agent
// the customer side consults.
type AgentConfig struct {
	MerchantTarget      string `toml:"merchant_target,omitempty"`
	DefaultMerchant     string `toml:"default_merchant,omitempty"`
	DefaultSellerWallet string `toml:"default_seller_wallet,omitempty"`
	RemoteTimeout       string `toml:"remote_timeout,omitempty"`
}

// LLMConfig holds the OpenAI-compatible negotiation model settings.
type LLMConfig struct {
	BaseURL string `toml:"base_url,omitempty"`
	Model   string `toml:"model,omitempty"`
	APIKey  string `toml:"api_key,omitempty"`
}

// EventsConfig holds order event stream settings.
type EventsConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running
// escrowd API server.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func validDuration(key, v string) error {
	if _, err := time.ParseDuration(v); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.provider": {
		get: func(c *Config) string { return c.Storage.Provider },
		set: func(c *Config, v string) error { c.Storage.Provider = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"facts.dir": {
		get: func(c *Config) string { return c.Facts.Dir },
		set: func(c *Config, v string) error { c.Facts.Dir = v; return nil },
	},
	"ledger.provider": {
		get: func(c *Config) string { return c.Ledger.Provider },
		set: func(c *Config, v string) error { c.Ledger.Provider = v; return nil },
	},
	"ledger.rpc_url": {
		get: func(c *Config) string { return c.Ledger.RPCURL },
		set: func(c *Config, v string) error { c.Ledger.RPCURL = v; return nil },
	},
	"ledger.contract_address": {
		get: func(c *Config) string { return c.Ledger.ContractAddress },
		set: func(c *Config, v string) error { c.Ledger.ContractAddress = v; return nil },
	},
	"ledger.chain_id": {
		get: func(c *Config) string {
			if c.Ledger.ChainID == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Ledger.ChainID), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for ledger.chain_id: %w", err)
			}
			c.Ledger.ChainID = uint(n)
			return nil
		},
	},
	"ledger.controller_key": {
		get: func(c *Config) string { return c.Ledger.ControllerKey },
		set: func(c *Config, v string) error { c.Ledger.ControllerKey = v; return nil },
	},
	"ledger.poll_interval": {
		get: func(c *Config) string { return c.Ledger.PollInterval },
		set: func(c *Config, v string) error {
			if err := validDuration("ledger.poll_interval", v); err != nil {
				return err
			}
			c.Ledger.PollInterval = v
			return nil
		},
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"agent.merchant_target": {
		get: func(c *Config) string { return c.Agent.MerchantTarget },
		set: func(c *Config, v string) error { c.Agent.MerchantTarget = v; return nil },
	},
	"agent.default_merchant": {
		get: func(c *Config) string { return c.Agent.DefaultMerchant },
		set: func(c *Config, v string) error { c.Agent.DefaultMerchant = v; return nil },
	},
	"agent.default_seller_wallet": {
		get: func(c *Config) string { return c.Agent.DefaultSellerWallet },
		set: func(c *Config, v string) error { c.Agent.DefaultSellerWallet = v; return nil },
	},
	"agent.remote_timeout": {
		get: func(c *Config) string { return c.Agent.RemoteTimeout },
		set: func(c *Config, v string) error {
			if err := validDuration("agent.remote_timeout", v); err != nil {
				return err
			}
			c.Agent.RemoteTimeout = v
			return nil
		},
	},
	"llm.base_url": {
		get: func(c *Config) string { return c.LLM.BaseURL },
		set: func(c *Config, v string) error { c.LLM.BaseURL = v; return nil },
	},
	"llm.model": {
		get: func(c *Config) string { return c.LLM.Model },
		set: func(c *Config, v string) error { c.LLM.Model = v; return nil },
	},
	"llm.api_key": {
		get: func(c *Config) string { return c.LLM.APIKey },
		set: func(c *Config, v string) error { c.LLM.APIKey = v; return nil },
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return c.Events.Brokers },
		set: func(c *Config, v string) error { c.Events.Brokers = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
}
