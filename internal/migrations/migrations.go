// Package migrations embeds the goose migration set so the binary can
// apply its own schema without shipping a separate migrations/
// directory alongside it, generalizing
// illenko-transactional-outbox/payments/db.go's goose.Up(db,
// "migrations") (which reads migrations off disk) to an embedded FS.
package migrations

import "embed"

//go:embed sql/*.sql
var FS embed.FS
