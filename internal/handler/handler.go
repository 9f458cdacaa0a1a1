package handler

import (
	"errors"
	"log"
	"strconv"

	"contactpay/internal/config"
	"contactpay/internal/gateway"
	"contactpay/internal/model"
	"contactpay/internal/repository"
	"contactpay/internal/service"
	"contactpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type Handler struct {
	paymentService *service.PaymentService
	refundService  *service.RefundService
	reconciler     *service.Reconciler
	ingestor       *service.WebhookIngestor
}

func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, gatewayClient gateway.Client) *Handler {
	committer := service.NewCommitter(db, cfg)
	reconciler := service.NewReconciler(db, cfg, gatewayClient, committer)
	return &Handler{
		paymentService: service.NewPaymentService(db, cfg, gatewayClient),
		refundService:  service.NewRefundService(db, rdb, cfg),
		reconciler:     reconciler,
		ingestor:       service.NewWebhookIngestor(db, rdb, cfg, committer, reconciler),
	}
}

// ============================================================
// Payments
// ============================================================

// CreatePayment initiates a payment for contact access to a listing.
// POST /api/v1/payments
func (h *Handler) CreatePayment(c *gin.Context) {
	userID, ok := callerUserID(c)
	if !ok {
		response.Unauthorized(c, "missing caller identity")
		return
	}

	var req service.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}
	req.UserID = userID

	result, err := h.paymentService.CreatePayment(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			response.BusinessError(c, response.CodeInvalidAmount, err.Error())
		case errors.Is(err, service.ErrAlreadyContacted):
			response.BusinessError(c, response.CodeAlreadyContacted, err.Error())
		case errors.Is(err, repository.ErrListingNotFound):
			response.NotFound(c, "listing not found")
		case errors.Is(err, gateway.ErrGatewayRejected):
			response.BusinessError(c, response.CodeGatewayRejected, "payment was rejected by the provider")
		case errors.Is(err, gateway.ErrGatewayUnavailable):
			response.BusinessError(c, response.CodeGatewayUnavailable, "payment provider unavailable, please retry")
		default:
			response.ServerError(c, err.Error())
		}
		return
	}

	response.Success(c, result)
}

// GetPaymentStatus is the client-visible status check. For a record that
// is still ambiguous it consults the gateway through the reconciler, which
// may settle the payment right here, before any webhook arrives.
// GET /api/v1/payments/:reference/status
func (h *Handler) GetPaymentStatus(c *gin.Context) {
	reference := c.Param("reference")

	payment, err := h.paymentService.GetPayment(c.Request.Context(), reference)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			response.NotFound(c, "payment not found")
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	if !h.authorizePayer(c, payment) {
		return
	}

	if !payment.IsSettled() {
		payment, err = h.reconciler.Resolve(c.Request.Context(), reference)
		if err != nil {
			response.ServerError(c, err.Error())
			return
		}
	}

	data := gin.H{
		"reference": payment.Reference,
		"status":    payment.Status,
		"amount":    payment.Amount,
		"currency":  payment.Currency,
	}
	if payment.CompletedAt != nil {
		data["completed_at"] = payment.CompletedAt
	}
	if payment.ContactID != nil {
		data["contact_id"] = *payment.ContactID
	}

	response.Success(c, data)
}

// CancelPayment cancels a payment still in PROCESSING.
// POST /api/v1/payments/:reference/cancel
func (h *Handler) CancelPayment(c *gin.Context) {
	reference := c.Param("reference")

	payment, err := h.paymentService.GetPayment(c.Request.Context(), reference)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			response.NotFound(c, "payment not found")
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	if !h.authorizePayer(c, payment) {
		return
	}

	if err := h.paymentService.CancelPayment(c.Request.Context(), reference); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			response.BusinessError(c, response.CodeInvalidTransition,
				"payment can no longer be cancelled, current status: "+payment.Status)
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"reference": reference, "status": model.PaymentStatusCancelled})
}

// ListPayments returns the caller's payments.
// GET /api/v1/payments?page=1&page_size=10
func (h *Handler) ListPayments(c *gin.Context) {
	userID, ok := callerUserID(c)
	if !ok {
		response.Unauthorized(c, "missing caller identity")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	payments, total, err := h.paymentService.ListUserPayments(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      payments,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// Refunds
// ============================================================

// Refund moves a completed payment to REFUNDED. Admin only.
// POST /api/v1/refunds
func (h *Handler) Refund(c *gin.Context) {
	if !callerIsAdmin(c) {
		response.Forbidden(c, "admin access required")
		return
	}

	var req service.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.refundService.Refund(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPaymentNotFound):
			response.NotFound(c, "payment not found")
		case errors.Is(err, repository.ErrInvalidTransition):
			response.BusinessError(c, response.CodeRefundFailed, err.Error())
		default:
			response.ServerError(c, err.Error())
		}
		return
	}

	response.Success(c, result)
}

// ============================================================
// Gateway webhook
// ============================================================

// GatewayWebhook receives asynchronous notifications from the payment
// provider. The raw bytes are captured before any parsing so the signature
// covers exactly what was sent. The response is 200 with a trivial body in
// every handled case, duplicates and rejects included; only a storage
// failure earns a 5xx so the provider retries.
// POST /api/v1/webhooks/gateway
func (h *Handler) GatewayWebhook(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		log.Printf("[Webhook] failed to read body: %v", err)
		c.String(500, "ERROR")
		return
	}

	result, err := h.ingestor.Ingest(
		c.Request.Context(),
		rawBody,
		c.GetHeader("X-Signature"),
		c.ClientIP(),
	)
	if err != nil {
		log.Printf("[Webhook] ingest error: %v", err)
		c.String(500, "ERROR")
		return
	}

	log.Printf("[Webhook] delivery handled: reference=%s outcome=%s", result.Reference, result.Outcome)
	c.String(200, "OK")
}

func (h *Handler) authorizePayer(c *gin.Context, payment *model.Payment) bool {
	if callerIsAdmin(c) {
		return true
	}
	userID, ok := callerUserID(c)
	if !ok {
		response.Unauthorized(c, "missing caller identity")
		return false
	}
	if userID != payment.UserID {
		response.Forbidden(c, "not your payment")
		return false
	}
	return true
}
