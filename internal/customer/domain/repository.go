package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopdome/commerce/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts the customer or, when the email already exists,
	// refreshes the contact fields on the existing row. It never fails
	// on a duplicate email; the canonical row is read back by email.
	Upsert(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Customer, error)
	List(ctx context.Context, db *gorm.DB, filter ListCustomerFilter, page pagination.Pagination) ([]*Customer, error)
}
