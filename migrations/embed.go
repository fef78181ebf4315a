// Package migrations embeds the SQL schema for the access-control store.
//
// Importing this package for side effects registers the files with the
// database package, so the binary carries its own schema.
package migrations

import (
	"embed"

	"github.com/nerrad567/gatehouse/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
