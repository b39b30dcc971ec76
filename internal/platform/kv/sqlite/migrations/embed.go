package migrations

import "embed"

// FS contains embedded SQLite migrations for the key-value tables.
//
//go:embed *.sql
var FS embed.FS
