// Package migrations holds the snapshot archive schema.
package migrations

import "embed"

// FS contains every migration file shipped with the binary.
//
//go:embed *.sql
var FS embed.FS
