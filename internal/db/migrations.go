package db

import "embed"

// MigrationsFS holds the schema migrations compiled into the binary, so
// startup does not depend on the process working directory.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
