package db

import "embed"

// MigrationFS embeds the SQL migrations for the sessions and audit_logs tables.
// Used by the migrate runner (cmd/migrate).
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
