package option

import (
	"fmt"

	"careplane/pkg/db/pagination"

	"gorm.io/gorm"
)

// QueryOption mutates a gorm query before it is executed by a repository.
type QueryOption func(*gorm.DB) *gorm.DB

func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if p.Offset > 0 {
			db = db.Offset(p.Offset)
		}
		if p.Limit > 0 {
			db = db.Limit(p.Limit)
		}
		return db
	}
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if s.SortBy == "" || (s.Allow != nil && !s.Allow[s.SortBy]) {
			return db
		}
		order := "asc"
		if s.OrderBy == "desc" || s.OrderBy == "DESC" {
			order = "desc"
		}
		return db.Order(fmt.Sprintf("%s %s", s.SortBy, order))
	}
}
