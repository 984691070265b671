package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Store: StoreConfig{
			DBPath: "~/.agendia/agendia.db",
		},
		Provider: ProviderConfig{
			APIBase:        "https://api.openai.com/v1",
			APIKey:         "${OPENAI_API_KEY}",
			Model:          "gpt-4o-mini",
			Temperature:    0.8,
			TimeoutSeconds: 60,
		},
		TTS: TTSConfig{
			Enabled:  true,
			Model:    "tts-1",
			Voice:    "shimmer",
			MaxChars: 130,
		},
		Gateway: GatewayConfig{
			URL:          "http://localhost:8081",
			APIKey:       "${EVOLUTION_API_KEY}",
			InstanceName: "agendia",
			IgnoreGroups: true,
		},
		Agent: AgentConfig{
			HistoryLimit:      20,
			MaxToolIterations: 5,
		},
		Events: EventsConfig{
			Enabled:  false,
			Exchange: "agendia.leads",
		},
		Retention: RetentionConfig{
			Enabled:  true,
			Days:     365,
			Schedule: "0 4 * * *",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
