package core

import (
	"fmt"
	"os"

	"bloodcore/internal/infra/persistence/memory"
	"bloodcore/internal/infra/persistence/postgres"
	"bloodcore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete ledger storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenLedger selects a ledger backend using environment variables. Defaults
// to sqlite when unset.
//
//	BLOODCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	BLOODCORE_SQLITE_PATH: path to sqlite file (default ./bloodcore.db)
//	BLOODCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenLedger(engine *RulesEngine) (Ledger, error) {
	driver := os.Getenv("BLOODCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("BLOODCORE_SQLITE_PATH"), engine)
	case StoragePostgres:
		return postgres.NewStore(os.Getenv("BLOODCORE_POSTGRES_DSN"), engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
