package accounts

import (
	"embed"
	"errors"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx5:// driver
	"github.com/golang-migrate/migrate/v4/source/iofs"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrator applies the embedded accounts schema.
type Migrator struct {
	m      *migrate.Migrate
	logger *slog.Logger
}

// NewMigrator opens a migrator against a postgres:// or postgresql://
// connection string.
func NewMigrator(connString string, logger *slog.Logger) (*Migrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "accounts: failed to open embedded migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, MigrationURL(connString))
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "accounts: failed to open migration target")
	}
	return &Migrator{m: m, logger: logger}, nil
}

// MigrationURL rewrites a PostgreSQL connection string to the pgx5 scheme
// the migration driver registers.
func MigrationURL(connString string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if rest, ok := strings.CutPrefix(connString, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return connString
}

// Up applies every pending migration. Being current is not an error.
func (m *Migrator) Up() error {
	err := m.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("no migrations to apply")
		return nil
	}
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternalDatabase, "accounts: migrate up failed")
	}
	m.logger.Info("migrations applied")
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down() error {
	err := m.m.Steps(-1)
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("no migrations to roll back")
		return nil
	}
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternalDatabase, "accounts: migrate down failed")
	}
	m.logger.Info("migration rolled back")
	return nil
}

// Version reports the applied schema version. A fresh database reports 0.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, sserr.Wrap(err, sserr.CodeInternalDatabase, "accounts: failed to read schema version")
	}
	return version, dirty, nil
}

// Close releases the source and database handles.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}
