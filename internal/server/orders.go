package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/shopdome/commerce/internal/order/domain"
	"github.com/shopdome/commerce/pkg/db/pagination"
)

type updateOrderStatusRequest struct {
	Status     string `json:"status"`
	AdminNotes string `json:"admin_notes"`
}

func (s *Server) ListOrders(c *gin.Context) {
	var query struct {
		pagination.Pagination
		PaymentStatus string `form:"payment_status"`
		Status        string `form:"status"`
		CustomerEmail string `form:"customer_email"`
		CreatedFrom   string `form:"created_from"`
		CreatedTo     string `form:"created_to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	createdFrom, err := parseOptionalTime(query.CreatedFrom, false)
	if err != nil {
		AbortWithError(c, newValidationError("created_from", "invalid_created_from", "invalid created_from"))
		return
	}
	createdTo, err := parseOptionalTime(query.CreatedTo, true)
	if err != nil {
		AbortWithError(c, newValidationError("created_to", "invalid_created_to", "invalid created_to"))
		return
	}

	resp, err := s.orderSvc.List(c.Request.Context(), orderdomain.ListOrderRequest{
		PageToken:     query.PageToken,
		PageSize:      int32(query.PageSize),
		PaymentStatus: strings.TrimSpace(query.PaymentStatus),
		Status:        strings.TrimSpace(query.Status),
		CustomerEmail: strings.TrimSpace(query.CustomerEmail),
		CreatedFrom:   createdFrom,
		CreatedTo:     createdTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetOrderByID also accepts an order number in place of the id so
// support staff can paste either from a customer email.
func (s *Server) GetOrderByID(c *gin.Context) {
	ref := strings.TrimSpace(c.Param("id"))

	req := orderdomain.GetOrderRequest{ID: ref}
	if strings.ContainsRune(ref, '-') {
		req = orderdomain.GetOrderRequest{OrderNumber: ref}
	}

	resp, err := s.orderSvc.Get(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateOrderStatus(c *gin.Context) {
	var req updateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orderSvc.UpdateStatus(c.Request.Context(), orderdomain.UpdateStatusRequest{
		ID:         strings.TrimSpace(c.Param("id")),
		Status:     strings.TrimSpace(req.Status),
		AdminNotes: strings.TrimSpace(req.AdminNotes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
