package migrations

import "embed"

// FS contains embedded SQLite migrations for stint storage.
//
//go:embed *.sql
var FS embed.FS
