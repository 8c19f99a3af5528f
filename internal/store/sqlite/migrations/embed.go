package migrations

import "embed"

// FS contains embedded SQLite migrations for the waypoint store.
//
//go:embed *.sql
var FS embed.FS
