// Package migrate collects the datastore migrators that store plugins
// register, such as index creation for the entity and activity collections.
// The serve and migrate commands run them before taking traffic.
package migrate

import (
	"context"
	"fmt"
	"sort"
)

// Migrator prepares one datastore concern, for example the unique indexes a
// collection needs.
type Migrator interface {
	Name() string
	Migrate(ctx context.Context) error
}

// Plugin pairs a Migrator with its Order. Lower orders run first, so index
// builds can precede migrators that depend on them.
type Plugin struct {
	Order    int
	Migrator Migrator
}

var plugins []Plugin

// Register adds a migrator. Store plugins call this from init().
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// RunAll runs every registered migrator in Order. The first failure aborts
// the run, leaving later migrators untouched.
func RunAll(ctx context.Context) error {
	sorted := make([]Plugin, len(plugins))
	copy(sorted, plugins)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	for _, p := range sorted {
		if err := p.Migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", p.Migrator.Name(), err)
		}
	}
	return nil
}
