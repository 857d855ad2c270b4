package migrations

import "embed"

// FS holds the goose migrations of the offline cache database.
//
//go:embed *.sql
var FS embed.FS
