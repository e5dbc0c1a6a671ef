// Package migrations embeds the tracker SQLite schema.
package migrations

import "embed"

// FS holds the ordered tracker migration files.
//
//go:embed *.sql
var FS embed.FS
