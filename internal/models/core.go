package models

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

// Connector hands out the shared gorm connection pool.
type Connector interface {
	GetConnection() *gorm.DB
}

// PerformWrite runs f inside a transaction on a fresh session bound to ctx.
// The session is released when the transaction commits or rolls back.
// Failures are returned to the caller without retrying.
func PerformWrite(ctx context.Context, logger *slog.Logger, dbConn *gorm.DB, f func(tx *gorm.DB) error) error {
	if dbConn == nil {
		return gorm.ErrInvalidDB
	}

	session := dbConn.Session(&gorm.Session{NewDB: true, Context: ctx})
	if err := session.Transaction(f); err != nil {
		if logger != nil {
			logger.Debug("Write transaction rolled back", slog.Any("error", err))
		}
		return fmt.Errorf("write transaction: %w", err)
	}
	return nil
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is one page of a list query.
type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}

// NormalizePaging clamps page to >= 1 and size to (0, MaxPageSize].
func NormalizePaging(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// Paginate applies LIMIT/OFFSET for an already normalized page.
func Paginate(page, size int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset((page - 1) * size).Limit(size)
	}
}

// OrderClause resolves a client sort key against an allow-list of columns.
// Unknown keys fall back to def. The id column breaks ties.
func OrderClause(allowed map[string]string, sortBy string, descending bool, def string) string {
	column, ok := allowed[sortBy]
	if !ok {
		column = def
	}
	direction := "ASC"
	if descending {
		direction = "DESC"
	}
	return column + " " + direction + ", id " + direction
}
