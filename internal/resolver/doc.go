// Package resolver validates logical asset names against the bundle listing
// and hands valid ones to the cache layer for materialization.
package resolver
