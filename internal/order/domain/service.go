package domain

import (
	"context"
	"time"

	"github.com/shopdome/commerce/pkg/db/pagination"
)

type GetOrderRequest struct {
	ID          string
	OrderNumber string
}

type ListOrderRequest struct {
	PageToken     string
	PageSize      int32
	PaymentStatus string
	Status        string
	CustomerEmail string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
}

type ListOrderResponse struct {
	pagination.PageInfo
	Orders []Order `json:"orders"`
}

type UpdateStatusRequest struct {
	ID         string
	Status     string
	AdminNotes string
}

type OrderDetail struct {
	Order
	Items []OrderItem `json:"items"`
}

type Service interface {
	Get(ctx context.Context, req GetOrderRequest) (*OrderDetail, error)
	List(ctx context.Context, req ListOrderRequest) (ListOrderResponse, error)
	UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*Order, error)
}
