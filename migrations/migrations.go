// Package migrations embeds the SQL schema migrations applied by
// pkg/database.RunMigrations at startup.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
