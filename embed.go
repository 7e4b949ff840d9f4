package backend

import "embed"

// MigrationsFS carries the SQL schema migrations so the binary can apply
// them at startup without shipping files next to it.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
