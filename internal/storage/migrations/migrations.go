// Package migrations embeds the schema migration files applied at
// startup. Files run in lexical order and must stay idempotent.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
