package migrations

import "embed"

// FS holds the SQL migrations applied by the SQLite storage layer.
//
//go:embed *.sql
var FS embed.FS
