// Package migrations embeds the SQL migration files for the durable
// core's schema, read by storage.NewMigrator via goose.SetBaseFS.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
