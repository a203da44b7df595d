package database

import (
	"database/sql"
	"embed"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/kdimtricp/skysight/internal/logging"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

type Migration struct {
	Version string
	Name    string
	SQL     string
}

type Migrator struct {
	db     *sql.DB
	dbType string
}

func NewMigrator(db *sql.DB, dbType string) *Migrator {
	return &Migrator{
		db:     db,
		dbType: dbType,
	}
}

// MigrationsFS returns the directory at migrationsPath, or the migrations
// compiled into the binary when the path is empty.
func MigrationsFS(migrationsPath string) (fs.FS, error) {
	if migrationsPath == "" {
		sub, err := fs.Sub(embeddedMigrations, "migrations")
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open embedded migrations")
		}
		return sub, nil
	}

	info, err := os.Stat(migrationsPath)
	if err != nil {
		return nil, goerr.Wrap(err, "migrations directory does not exist", goerr.V("dir", migrationsPath))
	}
	if !info.IsDir() {
		return nil, goerr.New("migrations path is not a directory", goerr.V("dir", migrationsPath))
	}
	return os.DirFS(migrationsPath), nil
}

// Enabled reports whether the schema of this database is managed by SQL files.
// SQLite and MySQL tables are created directly from the model.
func (m *Migrator) Enabled() bool {
	return m.dbType == TypePostgres
}

// Initialize creates the migrations tracking table if it doesn't exist
func (m *Migrator) Initialize() error {
	if !m.Enabled() {
		return nil
	}

	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := m.db.Exec(query); err != nil {
		return goerr.Wrap(err, "failed to create migrations table")
	}

	logging.Default().Debug("migration tracking table ready")
	return nil
}

// GetAppliedMigrations returns the set of already applied migration versions
func (m *Migrator) GetAppliedMigrations() (map[string]bool, error) {
	applied := make(map[string]bool)

	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query migrations")
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, goerr.Wrap(err, "failed to scan migration version")
		}
		applied[version] = true
	}

	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate migrations")
	}

	return applied, nil
}

// LoadMigrations reads every NNN_name.sql file at the root of fsys, sorted by version.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read migrations directory")
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		// "001_init.sql" -> "001"
		version, _, ok := strings.Cut(entry.Name(), "_")
		if !ok || version == "" {
			logging.Default().Warn("skipping invalid migration filename", "file", entry.Name())
			continue
		}

		content, err := fs.ReadFile(fsys, path.Clean(entry.Name()))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read migration file", goerr.V("file", entry.Name()))
		}

		migrations = append(migrations, Migration{
			Version: version,
			Name:    entry.Name(),
			SQL:     string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version == migrations[i-1].Version {
			return nil, goerr.New("duplicate migration version",
				goerr.V("version", migrations[i].Version),
				goerr.V("files", []string{migrations[i-1].Name, migrations[i].Name}))
		}
	}

	return migrations, nil
}

// ApplyMigration runs a single migration and records it in one transaction.
func (m *Migrator) ApplyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return goerr.Wrap(err, "failed to execute migration", goerr.V("migration", migration.Name))
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version) VALUES ($1)",
		migration.Version,
	); err != nil {
		return goerr.Wrap(err, "failed to record migration", goerr.V("migration", migration.Name))
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit migration", goerr.V("migration", migration.Name))
	}

	logging.Default().Info("applied migration", "name", migration.Name)
	return nil
}

// Run executes all pending migrations and returns how many were applied.
func (m *Migrator) Run(fsys fs.FS) (int, error) {
	if !m.Enabled() {
		logging.Default().Debug("skipping SQL migrations", "type", m.dbType)
		return 0, nil
	}

	if err := m.Initialize(); err != nil {
		return 0, err
	}

	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return 0, err
	}

	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return 0, err
	}

	pendingCount := 0
	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		if err := m.ApplyMigration(migration); err != nil {
			return pendingCount, goerr.Wrap(err, "migration failed")
		}
		pendingCount++
	}

	if pendingCount == 0 {
		logging.Default().Info("no pending migrations")
	} else {
		logging.Default().Info("applied migrations", "count", pendingCount)
	}

	return pendingCount, nil
}

// RunMigrations applies pending migrations from migrationsPath, or from the
// embedded set when the path is empty.
func (db *DB) RunMigrations(migrationsPath string) error {
	fsys, err := MigrationsFS(migrationsPath)
	if err != nil {
		return err
	}

	_, err = NewMigrator(db.conn, db.dbType).Run(fsys)
	return err
}
