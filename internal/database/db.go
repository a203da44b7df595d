package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/kdimtricp/skysight/internal/models"
	"github.com/m-mizutani/goerr/v2"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
)

type DB struct {
	gorm   *gorm.DB
	conn   *sql.DB
	dbType string
}

type Config struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
}

// DefaultPort returns the conventional server port for the database type.
func DefaultPort(dbType string) int {
	switch dbType {
	case TypePostgres:
		return 5432
	case TypeMySQL:
		return 3306
	default:
		return 0
	}
}

func NewDB(config Config) (*DB, error) {
	dialector, err := dialectorFor(config)
	if err != nil {
		return nil, err
	}

	g, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("type", config.Type))
	}

	conn, err := g.DB()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get database handle")
	}

	if config.Type == TypeSQLite {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY under load.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, goerr.Wrap(err, "failed to ping database", goerr.V("type", config.Type))
	}

	db := &DB{gorm: g, conn: conn, dbType: config.Type}

	// Postgres schema comes from SQL migrations.
	if config.Type != TypePostgres {
		if err := db.createTables(); err != nil {
			conn.Close()
			return nil, goerr.Wrap(err, "failed to create tables")
		}
	}

	return db, nil
}

func dialectorFor(config Config) (gorm.Dialector, error) {
	switch config.Type {
	case TypeSQLite:
		if config.SQLitePath == "" {
			return nil, goerr.New("sqlite path is required")
		}
		return sqlite.Open(sqliteDSN(config.SQLitePath)), nil

	case TypePostgres:
		dsn := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(config.User, config.Password),
			Host:     fmt.Sprintf("%s:%d", config.Host, config.Port),
			Path:     "/" + config.Name,
			RawQuery: "sslmode=disable",
		}
		return postgres.Open(dsn.String()), nil

	case TypeMySQL:
		cfg := mysqldriver.NewConfig()
		cfg.User = config.User
		cfg.Passwd = config.Password
		cfg.Net = "tcp"
		cfg.Addr = config.Host + ":" + strconv.Itoa(config.Port)
		cfg.DBName = config.Name
		cfg.ParseTime = true
		cfg.Params = map[string]string{"charset": "utf8mb4"}
		return mysql.Open(cfg.FormatDSN()), nil

	default:
		return nil, goerr.New("unsupported database type", goerr.V("type", config.Type))
	}
}

func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
}

func (db *DB) createTables() error {
	return db.gorm.AutoMigrate(&models.AnalysisRecord{})
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) GORM() *gorm.DB {
	return db.gorm
}

func (db *DB) Type() string {
	return db.dbType
}
