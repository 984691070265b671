package domain

import "context"

// MessageStore persists ordered conversation turns per session. Append-only.
type MessageStore interface {
	// AppendTurns stores turns in order under sessionID in one transaction,
	// so a crash mid-pipeline leaves no partial history.
	AppendTurns(ctx context.Context, sessionID string, turns ...Turn) error

	// LastTurns returns the most recent limit turns in chronological order.
	LastTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// LastRecord returns the newest stored record for the session, or nil.
	LastRecord(ctx context.Context, sessionID string) (*TurnRecord, error)

	// LastUserRecord returns the newest stored user turn, or nil. Drives
	// the duplicate-delivery check: user and assistant turns persist
	// together, so the newest record overall is never a user turn between
	// deliveries.
	LastUserRecord(ctx context.Context, sessionID string) (*TurnRecord, error)

	// LastAssistantText returns the content of the most recent assistant
	// turn, or "" when there is none.
	LastAssistantText(ctx context.Context, sessionID string) (string, error)

	// PruneOlderThan deletes turns older than days. Returns rows removed.
	PruneOlderThan(ctx context.Context, days int) (int64, error)
}

// CatalogStore reads the package catalog. The pipeline never mutates it.
type CatalogStore interface {
	// SearchPackages runs a keyword OR-filter across title and description
	// of active packages. An empty keyword list returns active packages
	// unfiltered (up to limit).
	SearchPackages(ctx context.Context, keywords []string, category string, limit int) ([]Package, error)

	// FindPackageByTitle does a case-insensitive partial title match.
	FindPackageByTitle(ctx context.Context, name string) (*Package, error)

	// ActivePackages returns active packages, newest first.
	ActivePackages(ctx context.Context, limit int) ([]Package, error)
}

// ConfigStore resolves per-instance channel configuration.
type ConfigStore interface {
	// GetChannelConfig returns the config for instanceName, or nil when the
	// instance is unknown.
	GetChannelConfig(ctx context.Context, instanceName string) (*ChannelConfig, error)

	// EnsureChannelConfig returns the config for instanceName, creating it
	// with the given defaults when absent.
	EnsureChannelConfig(ctx context.Context, defaults ChannelConfig) (*ChannelConfig, error)
}
