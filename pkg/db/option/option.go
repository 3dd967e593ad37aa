package option

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/cirrus/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement. Options compose left to right.
type QueryOption interface {
	Apply(stmt *gorm.DB) *gorm.DB
}

type queryOptionFunc func(stmt *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(stmt *gorm.DB) *gorm.DB {
	return f(stmt)
}

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator adds a single comparison to the WHERE clause.
func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		if cond.Field == "" || cond.Operator == "" {
			return stmt
		}
		return stmt.Where(fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), cond.Value)
	})
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

// WithQuerySortBy packages user-supplied sort parameters with the allow list.
func WithQuerySortBy(sortBy, orderBy string, allow map[string]bool) QuerySortBy {
	return QuerySortBy{SortBy: sortBy, OrderBy: orderBy, Allow: allow}
}

// WithSortBy orders the result set. Columns outside the allow list fall back
// to created_at so callers cannot sort by arbitrary SQL.
func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		column := strings.TrimSpace(sort.SortBy)
		if column == "" || !sort.Allow[column] {
			column = "created_at"
		}
		direction := strings.ToLower(strings.TrimSpace(sort.OrderBy))
		if direction != "asc" {
			direction = "desc"
		}
		return stmt.Order(fmt.Sprintf("%s %s, id %s", column, direction, direction))
	})
}

// ApplyPagination applies cursor pagination. It fetches one row past the page
// size so callers can detect whether more rows exist.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		size := page.PageSize
		if size <= 0 {
			size = 10
		}
		if size > 250 {
			size = 250
		}
		if page.PageToken != "" {
			cursor, err := pagination.DecodeCursor(page.PageToken)
			if err == nil && cursor.CreatedAt != "" && cursor.ID != "" {
				stmt = stmt.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
			}
		}
		return stmt.Limit(size + 1)
	})
}
