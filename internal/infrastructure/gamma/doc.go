// Package gamma talks to the Polymarket Gamma REST API: it discovers the
// asset ids to track from recent open events and resolves human readable
// labels for them.
package gamma
