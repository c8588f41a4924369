// Package migrations holds the embedded SQL schema for the local cache
// database and the remote store.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// SQLite returns the migrations for the local cache database.
func SQLite() (fs.FS, error) {
	return fs.Sub(files, "sqlite")
}

// Postgres returns the migrations for the remote store.
func Postgres() (fs.FS, error) {
	return fs.Sub(files, "postgres")
}
