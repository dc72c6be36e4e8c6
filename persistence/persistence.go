// Package persistence opens the bun database for the configured driver
// and applies the embedded migrations.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"

	auth "github.com/felapi/fel-auth"
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/migrate"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type Options struct {
	Driver   string
	DSN      string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	// Debug logs every query
	Debug bool
}

// Open connects and pings the database
func Open(ctx context.Context, opts Options) (*bun.DB, error) {
	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch opts.Driver {
	case "", DriverSQLite:
		dsn := opts.DSN
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		sqldb, err = sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, err
		}
		// sqlite allows a single writer
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres:
		sqldb, err = sql.Open("pgx", postgresDSN(opts))
		if err != nil {
			return nil, err
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	case DriverMySQL:
		sqldb, err = sql.Open("mysql", mysqlDSN(opts))
		if err != nil {
			return nil, err
		}
		db = bun.NewDB(sqldb, mysqldialect.New())
	default:
		return nil, fmt.Errorf("persistence: unsupported driver %q", opts.Driver)
	}

	if opts.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persistence: ping %s: %w", opts.Driver, err)
	}

	return db, nil
}

func postgresDSN(opts Options) string {
	if opts.DSN != "" {
		return opts.DSN
	}
	port := opts.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		opts.Username, opts.Password,
		net.JoinHostPort(opts.Host, strconv.Itoa(port)),
		opts.Database,
	)
}

func mysqlDSN(opts Options) string {
	if opts.DSN != "" {
		return opts.DSN
	}
	port := opts.Port
	if port == 0 {
		port = 3306
	}
	cfg := mysql.NewConfig()
	cfg.User = opts.Username
	cfg.Passwd = opts.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(opts.Host, strconv.Itoa(port))
	cfg.DBName = opts.Database
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// DialectDir maps a bun dialect to its migrations directory
func DialectDir(db *bun.DB) string {
	switch db.Dialect().Name().String() {
	case "pg":
		return DriverPostgres
	case "mysql":
		return DriverMySQL
	default:
		return DriverSQLite
	}
}

// Migrator wraps bun's migrator over the embedded SQL files
type Migrator struct {
	m *migrate.Migrator
}

func NewMigrator(db *bun.DB) (*Migrator, error) {
	fsys, err := auth.GetMigrationsFS(DialectDir(db))
	if err != nil {
		return nil, err
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(fsys); err != nil {
		return nil, fmt.Errorf("persistence: discover migrations: %w", err)
	}

	return &Migrator{m: migrate.NewMigrator(db, migrations)}, nil
}

// Up applies pending migrations, returning the names applied
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	if err := m.m.Init(ctx); err != nil {
		return nil, err
	}
	if err := m.m.Lock(ctx); err != nil {
		return nil, err
	}
	defer m.m.Unlock(ctx) //nolint:errcheck

	group, err := m.m.Migrate(ctx)
	if err != nil {
		return nil, err
	}
	return migrationNames(group), nil
}

// Down rolls back the last migration group
func (m *Migrator) Down(ctx context.Context) ([]string, error) {
	if err := m.m.Init(ctx); err != nil {
		return nil, err
	}
	if err := m.m.Lock(ctx); err != nil {
		return nil, err
	}
	defer m.m.Unlock(ctx) //nolint:errcheck

	group, err := m.m.Rollback(ctx)
	if err != nil {
		return nil, err
	}
	return migrationNames(group), nil
}

// Migrate applies every pending migration
func Migrate(ctx context.Context, db *bun.DB) error {
	m, err := NewMigrator(db)
	if err != nil {
		return err
	}
	_, err = m.Up(ctx)
	return err
}

func migrationNames(group *migrate.MigrationGroup) []string {
	if group == nil || group.IsZero() {
		return nil
	}
	names := make([]string, 0, len(group.Migrations))
	for _, mig := range group.Migrations {
		names = append(names, mig.Name)
	}
	return names
}
