package database

import (
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/fs"
)

// Prepare makes sure the storage of the configured engine exists before it is opened:
// the ledger role and database on Postgres, the parent directory of a SQLite file.
func Prepare(conf *core.Config) error {
	switch conf.Database.Engine {
	case core.EnginePostgres:
		return preparePostgres(conf)
	case core.EngineSQLite:
		if conf.Database.Path == "" || conf.Database.Path == ":memory:" {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(conf.Database.Path), 0o755); err != nil {
			return errors.Wrap(err, "creating sqlite directory")
		}
	}
	return nil
}

// postgresURL builds the DSN of dbName, as the admin role when asked and configured.
func postgresURL(conf *core.Config, dbName string, asAdmin bool) string {
	creds := url.UserPassword(conf.Database.User, conf.Database.Password)
	if asAdmin && conf.Database.AdminUser != "" {
		creds = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	q := make(url.Values)
	q.Set("sslmode", "require")
	if conf.Database.DisableTLS {
		q.Set("sslmode", "disable")
	}
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     creds,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// connect opens dbName and waits until the server answers.
func connect(conf *core.Config, dbName string, asAdmin bool) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresURL(conf, dbName, asAdmin))
	if err != nil {
		return nil, errors.Wrapf(err, "opening database %s", dbName)
	}
	if err = waitReady(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Open opens the ledger database on Postgres.
func Open(conf *core.Config) (*sql.DB, error) {
	return connect(conf, conf.Database.Name, false)
}

// waitReady pings db up to 30 times, backing off 100ms more after each failure.
func waitReady(db *sql.DB) error {
	var err error
	for attempt := 1; attempt <= 30; attempt++ {
		if err = db.Ping(); err == nil {
			return nil
		}
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return errors.Wrap(err, "database ping timeout")
}

func exists(db *sql.DB, query string, arg string) (bool, error) {
	var found bool
	err := db.QueryRow(query, arg).Scan(&found)
	return found, err
}

// preparePostgres creates the ledger role (as admin) then the ledger database (as the ledger role) when missing.
func preparePostgres(conf *core.Config) error {
	admin, err := connect(conf, "postgres", true)
	if err != nil {
		return err
	}
	defer func() { _ = admin.Close() }()

	if role := conf.Database.User; role != "" {
		found, err := exists(admin, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", role)
		if err != nil {
			return errors.Wrap(err, "looking up ledger role")
		}
		if !found {
			stmt := "CREATE ROLE " + pq.QuoteIdentifier(role) + " LOGIN CREATEDB PASSWORD " + pq.QuoteLiteral(conf.Database.Password)
			if _, err = admin.Exec(stmt); err != nil {
				return errors.Wrap(err, "creating ledger role")
			}
		}
	}

	owner, err := connect(conf, "postgres", false)
	if err != nil {
		return err
	}
	defer func() { _ = owner.Close() }()

	found, err := exists(owner, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "looking up ledger database")
	}
	if !found {
		if _, err = owner.Exec("CREATE DATABASE " + pq.QuoteIdentifier(conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating ledger database")
		}
	}
	return nil
}

// Migrate applies the embedded migrations (Postgres).
func Migrate(db *sql.DB) error {
	return RunMigrations("up", db)
}

// RunMigrations runs a goose command ("up", "down", "status", ...) against the embedded migrations.
func RunMigrations(command string, db *sql.DB, args ...string) error {
	goose.SetBaseFS(appfs.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting migrations dialect")
	}
	if err := goose.Run(command, db, "migrations", args...); err != nil {
		return errors.Wrapf(err, "running migrations %s", command)
	}
	return nil
}
