// Package migrations embeds the schema migrations so the binary can migrate
// its own database without access to the source tree.
package migrations

import "embed"

//go:embed sql/*.sql
var FS embed.FS
