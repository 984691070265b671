package domain

// ChannelConfig is the per-instance runtime configuration for one gateway
// instance. It lives in the config store, is created with placeholder values
// on the first webhook for an unknown instance, and is mutated by the
// dashboard; the pipeline only ever reads it.
type ChannelConfig struct {
	InstanceName    string
	Active          bool
	IgnoreGroups    bool
	Whitelist       []string // non-empty whitelist takes absolute priority; blacklist is then inert
	Blacklist       []string
	GatewayURL      string
	GatewayAPIKey   string
	HumanAgentPhone string
}

// Whitelisted reports whether phone may be served. An empty whitelist
// allows everyone.
func (c *ChannelConfig) Whitelisted(phone string) bool {
	if len(c.Whitelist) == 0 {
		return true
	}
	for _, p := range c.Whitelist {
		if p == phone {
			return true
		}
	}
	return false
}
