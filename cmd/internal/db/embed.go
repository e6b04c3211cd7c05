// Package db ships the SQL schema and applies it with golang-migrate.
package db

import "embed"

// MigrationFS holds the versioned migrations under migrations/.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
