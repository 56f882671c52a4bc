package productdb

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Dialect is the SQL flavour spoken by a store.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// ParseDialect maps a database/sql driver name to its Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("ParseDialect: unknown driver %q", driver)
}

func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// QuoteIdent quotes a possibly schema-qualified identifier ("schema.table").
func (d Dialect) QuoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		switch d {
		case Postgres:
			parts[i] = pq.QuoteIdentifier(part)
		case MySQL:
			parts[i] = "`" + strings.Replace(part, "`", "``", -1) + "`"
		default:
			parts[i] = `"` + strings.Replace(part, `"`, `""`, -1) + `"`
		}
	}
	return strings.Join(parts, ".")
}

// SelectAll returns the full-scan statement used by the poller.
func (d Dialect) SelectAll(table string) string {
	return fmt.Sprintf("SELECT id, category, brand, model FROM %s", d.QuoteIdent(table))
}

// Upsert returns an insert that overwrites every non-key column on primary key conflict.
func (d Dialect) Upsert(table string) string {
	insert := fmt.Sprintf(
		"INSERT INTO %s (id, category, brand, model) VALUES (%s, %s, %s, %s)",
		d.QuoteIdent(table),
		d.placeholder(1), d.placeholder(2), d.placeholder(3), d.placeholder(4),
	)
	switch d {
	case MySQL:
		return insert + " ON DUPLICATE KEY UPDATE category = VALUES(category), brand = VALUES(brand), model = VALUES(model)"
	default:
		return insert + " ON CONFLICT (id) DO UPDATE SET category = excluded.category, brand = excluded.brand, model = excluded.model"
	}
}

// Delete returns a delete-by-id statement.
func (d Dialect) Delete(table string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE id = %s", d.QuoteIdent(table), d.placeholder(1))
}

// CreateTable returns the DDL creating the product table if it is missing.
// The source and shard tables of postgres own their id sequence, other stores
// always receive ids from the source.
func (d Dialect) CreateTable(table string) string {
	id := "BIGINT PRIMARY KEY"
	if d == Postgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id       %s,
    category VARCHAR(255) NOT NULL,
    brand    VARCHAR(255),
    model    VARCHAR(255)
)`, d.QuoteIdent(table), id)
}
