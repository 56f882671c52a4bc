package config

import (
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	perrors "github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/huangjunwen/shardsync/logr"
	"github.com/huangjunwen/shardsync/productdb"
)

// Driver is a database/sql driver name.
type Driver string

const (
	DriverPostgres Driver = "postgres" // lib/pq
	DriverPgx      Driver = "pgx"      // jackc/pgx stdlib
	DriverMySQL    Driver = "mysql"
	DriverSQLite   Driver = "sqlite" // modernc.org/sqlite
)

// Conn describes one store connection.
type Conn struct {
	// Name of the store, used in logs, metrics and as the shard name.
	Name string `json:"name"`

	// Driver is one of postgres, pgx, mysql or sqlite. Empty means not provisioned.
	Driver string `json:"driver"`

	Host     string `json:"host"`
	Port     uint16 `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`

	// SSLMode is a postgres sslmode. For mysql "disable" turns TLS off, "verify-full" verifies
	// the server and anything else skips verification.
	SSLMode string `json:"sslMode"`

	// Charset is used by mysql only. Use "utf8mb4" if not set.
	Charset string `json:"charset"`

	// Path is the sqlite database file.
	Path string `json:"path"`

	// Table holding products. Use productdb.DefaultTable if not set.
	Table string `json:"table"`

	// CreateTable creates the product table at start-up if it does not exist.
	CreateTable bool `json:"createTable"`
}

// Provisioned reports whether a driver is configured.
func (c *Conn) Provisioned() bool {
	return c.Driver != ""
}

// Validate checks a provisioned Conn has what its driver needs.
func (c *Conn) Validate() error {
	if !c.Provisioned() {
		return nil
	}
	switch c.driver() {
	case DriverPostgres, DriverPgx, DriverMySQL:
		if c.Host == "" {
			return perrors.Errorf("config: %s: host is required", c.Name)
		}
	case DriverSQLite:
		if c.Path == "" {
			return perrors.Errorf("config: %s: path is required", c.Name)
		}
	default:
		return perrors.Errorf("config: %s: unknown driver %q", c.Name, c.Driver)
	}
	return nil
}

func (c *Conn) driver() Driver {
	switch d := Driver(strings.ToLower(c.Driver)); d {
	case "postgresql":
		return DriverPostgres
	case "sqlite3":
		return DriverSQLite
	default:
		return d
	}
}

// DSN returns the data source name for the driver.
func (c *Conn) DSN() string {
	switch c.driver() {
	case DriverMySQL:
		return c.mysqlConfig().FormatDSN()
	case DriverPostgres, DriverPgx:
		return c.pgDSN()
	case DriverSQLite:
		return c.Path
	}
	return ""
}

func (c *Conn) mysqlConfig() *mysql.Config {
	ret := mysql.NewConfig()
	ret.Net = "tcp"
	port := c.Port
	if port == 0 {
		port = 3306
	}
	ret.Addr = net.JoinHostPort(c.Host, strconv.Itoa(int(port)))
	ret.User = c.User
	ret.Passwd = c.Password
	ret.DBName = c.Database
	ret.ParseTime = true
	switch c.SSLMode {
	case "", "disable":
	case "verify-full":
		ret.TLSConfig = "true"
	default:
		ret.TLSConfig = "skip-verify"
	}
	if ret.Params == nil {
		ret.Params = map[string]string{}
	}
	charset := c.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	ret.Params["charset"] = charset
	return ret
}

// pgDSN builds a keyword/value connection string understood by both lib/pq and pgx.
func (c *Conn) pgDSN() string {
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	kvs := [][2]string{
		{"host", c.Host},
		{"port", strconv.Itoa(int(port))},
		{"user", c.User},
		{"password", c.Password},
		{"dbname", c.Database},
		{"sslmode", sslMode},
	}
	parts := []string{}
	for _, kv := range kvs {
		if kv[1] == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", kv[0], pgQuote(kv[1])))
	}
	return strings.Join(parts, " ")
}

func pgQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.Replace(v, `\`, `\\`, -1)
	v = strings.Replace(v, `'`, `\'`, -1)
	return "'" + v + "'"
}

// Open opens the *sql.DB. No connection is made until first use.
func (c *Conn) Open() (*sql.DB, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if !c.Provisioned() {
		return nil, perrors.Errorf("config: %s: not provisioned", c.Name)
	}
	db, err := sql.Open(string(c.driver()), c.DSN())
	if err != nil {
		return nil, perrors.Wrapf(err, "open %s", c.Name)
	}
	if c.driver() == DriverSQLite {
		// Serialize writers on one file.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Store opens the connection and wraps it as a product store. A Conn that is not
// provisioned gives an unusable store, so its writer reports itself unready.
func (c *Conn) Store(logger logr.Logger) (*productdb.DB, error) {
	opts := &productdb.Options{
		Table:       c.Table,
		CreateTable: c.CreateTable,
		Logger:      logger,
	}
	if !c.Provisioned() {
		return productdb.New(c.Name, nil, "", opts), nil
	}

	dialect, err := productdb.ParseDialect(string(c.driver()))
	if err != nil {
		return nil, err
	}
	db, err := c.Open()
	if err != nil {
		return nil, err
	}
	return productdb.New(c.Name, db, dialect, opts), nil
}
