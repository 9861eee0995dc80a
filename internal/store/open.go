package store

import "fmt"

// Drivers
const (
	DriverMemory   = "memory"
	DriverBolt     = "bolt"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open creates a store for the given driver. dsn is a file path for
// bolt and sqlite and a connection string for postgres.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverBolt:
		return NewBoltStore(dsn)
	case DriverSQLite:
		return NewSQLiteStore(dsn)
	case DriverPostgres:
		return NewPostgresStore(dsn)
	}
	return nil, fmt.Errorf("unknown storage driver %q", driver)
}
