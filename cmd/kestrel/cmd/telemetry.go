package cmd

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"github.com/kestrelkb/kestrel/internal/telemetry"
)

// openTelemetryStore opens (creating if needed) the query-telemetry
// database under the active Context's data directory and returns the
// metrics store backing it plus a close function. Kept in its own
// SQLite file rather than the metadata store's so query telemetry
// (SPEC_FULL.md §9) never contends with the document/chunk tables the
// engine's own store touches.
func openTelemetryStore() (*telemetry.SQLiteMetricsStore, func() error, error) {
	if eng == nil {
		return nil, nil, fmt.Errorf("no active engine context")
	}
	path := filepath.Join(eng.DataDir(), "telemetry.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open telemetry db: %w", err)
	}
	if err := telemetry.InitTelemetrySchema(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("init telemetry schema: %w", err)
	}
	store, err := telemetry.NewSQLiteMetricsStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("open metrics store: %w", err)
	}
	return store, db.Close, nil
}
