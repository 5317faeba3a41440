package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopdome/commerce/pkg/db/pagination"
)

type ListCustomerRequest struct {
	PageToken   string
	PageSize    int32
	Name        string
	Email       string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListCustomerFilter struct {
	Name        string
	Email       string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListCustomerResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"customers"`
}

// UpsertCustomerRequest creates a customer on first checkout and
// refreshes contact details on later ones. Email identifies the account.
type UpsertCustomerRequest struct {
	Email string
	Name  string
	Phone string
}

type GetCustomerRequest struct {
	ID string
}

type Service interface {
	Upsert(context.Context, UpsertCustomerRequest) (Customer, error)
	List(context.Context, ListCustomerRequest) (ListCustomerResponse, error)
	GetByID(context.Context, GetCustomerRequest) (Customer, error)
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidID    = errors.New("invalid_id")
	ErrNotFound     = errors.New("not_found")
)
