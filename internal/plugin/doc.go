// Package plugin holds the attached runtime state (bundle listing, cache
// manager, resolver) as one explicit value and dispatches method-channel
// calls against it. Attach performs the blocking startup sweep; Detach
// releases every reference so later calls fail fast instead of touching a
// stale cache directory.
package plugin
