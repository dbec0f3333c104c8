//go:build cgosqlite

package storage

// This file is compiled when building with the cgosqlite tag.
//
// Build command:
//   CGO_ENABLED=1 go build -tags cgosqlite ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// foreignKeysParam enables foreign key enforcement on each new connection
	foreignKeysParam = "_foreign_keys=on"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
