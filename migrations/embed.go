// Package migrations embeds SQL migration files for use at runtime.
package migrations

import "embed"

// FS is the embedded migrations filesystem.
//
//go:embed *.sql
var FS embed.FS
