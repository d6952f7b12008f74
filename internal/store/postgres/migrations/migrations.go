// Package migrations holds the schema of the postgres store, applied with bun's migrator.
package migrations

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is discovered by file name: <version>_<comment>.go.
var Migrations = migrate.NewMigrations()
