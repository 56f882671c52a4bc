// Package product defines the replicated row: a product identified by id,
// routed by category.
package product

import (
	"fmt"
	"strings"

	"gopkg.in/volatiletech/null.v6"
)

// ID is the stable identity of a product across every store. It is never regenerated.
type ID int64

// Attrs is the non-key tuple of a product row.
//
// Attrs is comparable: two tuples are equal only if all three fields are equal,
// including presence/absence of Brand and Model.
type Attrs struct {
	Category string
	Brand    null.String
	Model    null.String
}

// Record is a full product row.
type Record struct {
	ID ID
	Attrs
}

// NewAttrs creates Attrs; empty brand or model means absent.
func NewAttrs(category, brand, model string) Attrs {
	return Attrs{
		Category: category,
		Brand:    null.NewString(brand, brand != ""),
		Model:    null.NewString(model, model != ""),
	}
}

// NormalizedCategory is the lower-cased category used for shard routing.
func (a Attrs) NormalizedCategory() string {
	return strings.ToLower(a.Category)
}

func (a Attrs) String() string {
	return fmt.Sprintf("(%q, %s, %s)", a.Category, nullStr(a.Brand), nullStr(a.Model))
}

func nullStr(s null.String) string {
	if !s.Valid {
		return "NULL"
	}
	return fmt.Sprintf("%q", s.String)
}
