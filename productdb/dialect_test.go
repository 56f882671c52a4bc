package productdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDialect(t *testing.T) {
	assert := assert.New(t)

	for _, testCase := range []struct {
		Driver string
		Expect Dialect
		Err    bool
	}{
		{"postgres", Postgres, false},
		{"pgx", Postgres, false},
		{"MySQL", MySQL, false},
		{"sqlite", SQLite, false},
		{"oracle", "", true},
	} {
		d, err := ParseDialect(testCase.Driver)
		if testCase.Err {
			assert.Error(err)
			continue
		}
		assert.NoError(err)
		assert.Equal(testCase.Expect, d)
	}
}

func TestDialectStatements(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(
		`INSERT INTO "product" (id, category, brand, model) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO UPDATE SET category = excluded.category, brand = excluded.brand, model = excluded.model`,
		Postgres.Upsert("product"),
	)
	assert.Equal(
		"INSERT INTO `shop`.`product` (id, category, brand, model) VALUES (?, ?, ?, ?) ON DUPLICATE KEY UPDATE category = VALUES(category), brand = VALUES(brand), model = VALUES(model)",
		MySQL.Upsert("shop.product"),
	)
	assert.Equal(`DELETE FROM "product" WHERE id = ?`, SQLite.Delete("product"))
	assert.Equal(`DELETE FROM "product" WHERE id = $1`, Postgres.Delete("product"))
	assert.Equal(`SELECT id, category, brand, model FROM "public"."product"`, Postgres.SelectAll("public.product"))

	assert.Contains(Postgres.CreateTable("product"), "BIGSERIAL PRIMARY KEY")
	assert.Contains(MySQL.CreateTable("product"), "BIGINT PRIMARY KEY")
	assert.Contains(SQLite.CreateTable("product"), "category VARCHAR(255) NOT NULL")
}

func TestQuoteIdent(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("`a``b`", MySQL.QuoteIdent("a`b"))
	assert.Equal(`"a""b"`, SQLite.QuoteIdent(`a"b`))
	assert.Equal(`"a""b"`, Postgres.QuoteIdent(`a"b`))
}
