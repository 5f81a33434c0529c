// Package db embeds the SQL migration files applied at startup.
package db

import "embed"

// Migrations holds the DDL files. Names follow NNN_description.sql so that
// lexical order is application order.
//
//go:embed migrations/*.sql
var Migrations embed.FS
