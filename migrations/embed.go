// Package migrations embeds the schema applied at start-up by
// database.RunMigrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
