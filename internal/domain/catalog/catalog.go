// Package catalog lists the aggregate types this service can reconstruct.
package catalog

import (
	"github.com/example/scorekeeper-events/internal/domain/aggregate"
	"github.com/example/scorekeeper-events/internal/domain/game"
	"github.com/example/scorekeeper-events/internal/domain/inning"
	"github.com/example/scorekeeper-events/internal/domain/lineup"
)

// Registry returns a registry with every built-in aggregate type
func Registry() *aggregate.Registry {
	return aggregate.NewRegistry(
		game.Definition.Replayer(),
		lineup.Definition.Replayer(),
		inning.Definition.Replayer(),
	)
}
