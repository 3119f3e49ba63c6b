package specification

import "gorm.io/gorm"

// Specification narrows a query; repositories compose them instead of hand-writing WHERE clauses.
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}
