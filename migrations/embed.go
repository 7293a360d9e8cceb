// Package migrations embeds the schema scripts applied to every tenant.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
