// Package notifications pushes case activity to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// the sync workflow can call it unconditionally. Each category (stage
// changes, new communications, errors) can be switched off in config.toml.
// StageListener plugs the service into casestage.Tracker.
package notifications
