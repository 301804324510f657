// Package migrations embeds the SQL schema applied by pkg/database.Migrator.
package migrations

import "embed"

// FS holds the numbered *.sql migration files
//
//go:embed *.sql
var FS embed.FS
