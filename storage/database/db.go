package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // registers "postgres"
	_ "github.com/mattn/go-sqlite3" // registers "sqlite3"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/maktaba/core"
	appfs "github.com/trezcool/maktaba/fs"
)

// Supported engines, named after their database/sql driver.
const (
	EnginePostgres = "postgres"
	EnginePgx      = "pgx"
	EngineSQLite   = "sqlite3"
)

var migrationsDir = "migrations"

func isPostgres(engine string) bool {
	return engine == EnginePostgres || engine == EnginePgx
}

func dsn(dbName string, admin bool, conf *core.Config) (string, error) {
	switch engine := conf.Database.Engine; {
	case isPostgres(engine):
		user := url.UserPassword(conf.Database.User, conf.Database.Password)
		if admin && conf.Database.AdminUser != "" {
			user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
		}

		sslMode := "require"
		if conf.Database.DisableTLS {
			sslMode = "disable"
		}
		q := make(url.Values)
		q.Set("sslmode", sslMode)
		q.Set("timezone", "utc")

		u := url.URL{
			Scheme:   "postgres",
			User:     user,
			Host:     conf.Database.Address(),
			Path:     dbName,
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	case engine == EngineSQLite:
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_loc=UTC", conf.Database.Path), nil
	default:
		return "", errors.Errorf("unsupported database engine %q", engine)
	}
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	source, err := dsn(dbName, admin, conf)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(conf.Database.Engine, source)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if conf.Database.Engine == EngineSQLite {
		db.SetMaxOpenConns(1) // one writer at a time
	}
	return db, nil
}

// Open connects to the app database and waits for it to be ready.
func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, err
	}
	if err = ping(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func exists(db *sqlx.DB, query, name string) (bool, error) {
	var found []bool
	if err := db.Select(&found, query, name); err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func createAppUser(db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = $1", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sqlx.DB, conf *core.Config) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = $1", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %s", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the app user and database on postgres. SQLite files are created on open.
func CreateIfNotExist(conf *core.Config) error {
	if !isPostgres(conf.Database.Engine) {
		return nil
	}

	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()
	if err = ping(db.DB); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return errors.Wrap(err, "creating app user")
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()
	if err = createDB(appDB, conf); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

// Migrate runs a goose command ("up", "down", "status", "version", ...) on the embedded migrations.
func Migrate(db *sql.DB, engine, command string, args ...string) error {
	dialect := "postgres"
	if engine == EngineSQLite {
		dialect = "sqlite3"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	goose.SetBaseFS(appfs.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.Run(command, db, migrationsDir, args...); err != nil {
		return errors.Wrapf(err, "running migration %q", command)
	}
	return nil
}
