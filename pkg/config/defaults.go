package config

const (
	defaultStorageProvider = "memory"

	defaultLedgerProvider = "memory"
	defaultPollInterval   = "5s"

	defaultAPIListen = ":8090"

	defaultMerchantTarget  = "http://localhost:8090"
	defaultMerchant        = "1"
	defaultRemoteTimeout   = "10s"
	defaultLLMBaseURL      = "https://api.asi1.ai/v1"
	defaultLLMModel        = "asi1-mini"
	defaultEventsProvider  = "nop"
	defaultEventsTopic     = "escrowd.orders"
	defaultEventsBrokers   = "localhost:9092"
	defaultEthereumRPCURL  = "http://localhost:8545"
	defaultEthereumChainID = 31337
	defaultAPITarget       = "http://localhost:8090"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
		},
		Ledger: LedgerConfig{
			Provider:     defaultLedgerProvider,
			PollInterval: defaultPollInterval,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Agent: AgentConfig{
			MerchantTarget:  defaultMerchantTarget,
			DefaultMerchant: defaultMerchant,
			RemoteTimeout:   defaultRemoteTimeout,
		},
		LLM: LLMConfig{
			BaseURL: defaultLLMBaseURL,
			Model:   defaultLLMModel,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		Client: ClientConfig{
			APITarget: defaultAPITarget,
		},
	}
}
