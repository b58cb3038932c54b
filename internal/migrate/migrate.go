package migrate

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Run applies all pending migrations using goose.
// It opens and closes its own DB handle so it is independent of the app store.
func Run(driver, dsn string) error {
	sqlDriver, dialect, err := resolve(driver)
	if err != nil {
		return err
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	return Up(db, dialect)
}

// Up applies pending migrations on an already open handle.
func Up(db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

// resolve maps a configured database driver to the sql driver name and the
// goose dialect.
func resolve(driver string) (string, string, error) {
	switch driver {
	case "postgres":
		return "pgx", "postgres", nil
	case "sqlite3", "sqlite":
		return "sqlite3", "sqlite3", nil
	default:
		return "", "", fmt.Errorf("unsupported migration driver %q", driver)
	}
}
