package option

import (
	"strings"
	"time"

	"github.com/shopdome/commerce/pkg/db/pagination"
	"gorm.io/gorm"
)

// Option mutates a gorm statement before execution.
type Option struct {
	apply func(*gorm.DB) *gorm.DB
}

// Apply runs the option against the statement.
func (o Option) Apply(stmt *gorm.DB) *gorm.DB {
	if o.apply == nil {
		return stmt
	}
	return o.apply(stmt)
}

// WithQuerySortBy validates a caller-supplied sort column against the
// allowed set and falls back to created_at desc.
func WithQuerySortBy(sortBy, orderBy string, allowed map[string]bool) string {
	column := strings.TrimSpace(sortBy)
	if column == "" || !allowed[column] {
		column = "created_at"
	}

	direction := strings.ToLower(strings.TrimSpace(orderBy))
	if direction != "asc" && direction != "desc" {
		direction = "desc"
	}

	return column + " " + direction
}

// WithSortBy applies an ORDER BY clause built by WithQuerySortBy.
func WithSortBy(order string) Option {
	return Option{apply: func(stmt *gorm.DB) *gorm.DB {
		if order == "" {
			return stmt
		}
		return stmt.Order(order)
	}}
}

// ApplyPagination applies cursor pagination. Listings order by
// (created_at desc, id desc), so the cursor marks the last row seen.
// One extra row is fetched to detect whether more pages exist.
func ApplyPagination(page pagination.Pagination) Option {
	return Option{apply: func(stmt *gorm.DB) *gorm.DB {
		pageSize := page.PageSize
		if pageSize <= 0 {
			pageSize = 10
		}

		if page.PageToken != "" {
			cursor, err := pagination.DecodeCursor(page.PageToken)
			if err == nil && cursor != nil {
				if createdAt, perr := time.Parse(time.RFC3339Nano, cursor.CreatedAt); perr == nil {
					stmt = stmt.Where(
						"(created_at < ?) OR (created_at = ? AND id < ?)",
						createdAt, createdAt, cursor.ID,
					)
				}
			}
		}

		return stmt.Limit(pageSize + 1)
	}}
}
