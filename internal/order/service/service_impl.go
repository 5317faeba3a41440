package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopdome/commerce/internal/observability/metrics"
	"github.com/shopdome/commerce/internal/order/domain"
	"github.com/shopdome/commerce/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Metrics *metrics.Metrics
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("order.service"),
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) Get(ctx context.Context, req domain.GetOrderRequest) (*domain.OrderDetail, error) {
	var (
		order *domain.Order
		err   error
	)

	switch {
	case req.ID != "":
		id, perr := snowflake.ParseString(strings.TrimSpace(req.ID))
		if perr != nil || id == 0 {
			return nil, domain.ErrInvalidID
		}
		order, err = s.repo.FindByID(ctx, s.db, id)
	case req.OrderNumber != "":
		order, err = s.repo.FindByOrderNumber(ctx, s.db, strings.TrimSpace(req.OrderNumber))
	default:
		return nil, domain.ErrInvalidID
	}
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}

	items, err := s.repo.ListItems(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}

	return &domain.OrderDetail{Order: *order, Items: items}, nil
}

func (s *Service) List(ctx context.Context, req domain.ListOrderRequest) (domain.ListOrderResponse, error) {
	filter := domain.ListOrderFilter{
		CustomerEmail: strings.ToLower(strings.TrimSpace(req.CustomerEmail)),
		CreatedFrom:   req.CreatedFrom,
		CreatedTo:     req.CreatedTo,
	}

	if v := strings.TrimSpace(req.PaymentStatus); v != "" {
		status := domain.PaymentStatus(v)
		if !status.Valid() {
			return domain.ListOrderResponse{}, domain.ErrInvalidStatus
		}
		filter.PaymentStatus = status
	}
	if v := strings.TrimSpace(req.Status); v != "" {
		status := domain.Status(v)
		if !status.Valid() {
			return domain.ListOrderResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = status
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListOrderResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(order *domain.Order) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        order.ID.String(),
			CreatedAt: order.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	orders := make([]domain.Order, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		orders = append(orders, *item)
	}

	resp := domain.ListOrderResponse{Orders: orders}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) UpdateStatus(ctx context.Context, req domain.UpdateStatusRequest) (*domain.Order, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidID
	}

	target := domain.Status(strings.TrimSpace(req.Status))
	if !target.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}

	if !domain.CanTransition(order.Status, target) {
		return nil, domain.ErrInvalidTransition
	}

	requirePaid := domain.RequiresPayment(target)
	if requirePaid && order.PaymentStatus != domain.PaymentPaid {
		return nil, domain.ErrPaymentRequired
	}

	// Notes are append-only. The status guard in the UPDATE makes the
	// read-modify-write safe: a concurrent transition conflicts.
	notes := ""
	if note := strings.TrimSpace(req.AdminNotes); note != "" {
		notes = note
		if order.AdminNotes != "" {
			notes = order.AdminNotes + "\n" + note
		}
	}

	// The same guards run again inside the UPDATE so a concurrent
	// transition loses cleanly instead of clobbering.
	now := time.Now().UTC()
	updated, err := s.repo.UpdateFulfillment(ctx, s.db, id, order.Status, target, requirePaid, notes, now)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrConflict
	}

	s.metrics.RecordOrderTransition(ctx, "fulfillment", string(target))
	s.log.Info("order status updated",
		zap.String("order_id", id.String()),
		zap.String("from", string(order.Status)),
		zap.String("to", string(target)),
	)

	result, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, domain.ErrNotFound
	}
	return result, nil
}
