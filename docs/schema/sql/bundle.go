// Package sqldocs exposes the ledger snapshot DDL bundles directly from the
// docs tree.
package sqldocs

import _ "embed"

// SQLite contains the snapshot-store SQLite DDL bundle.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the snapshot-store Postgres DDL bundle.
//
//go:embed postgres.sql
var Postgres string
