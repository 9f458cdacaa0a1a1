package handler

import (
	"contactpay/internal/config"
	"contactpay/internal/gateway"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter wires middleware and routes. The webhook endpoint carries no
// identity middleware requirements: the gateway authenticates through the
// payload signature, not through headers.
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, gatewayClient gateway.Client) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())
	r.Use(IdentityMiddleware(cfg.Server.AdminToken))

	h := NewHandler(db, rdb, cfg, gatewayClient)

	api := r.Group("/api/v1")
	{
		payments := api.Group("/payments")
		{
			payments.POST("", h.CreatePayment)
			payments.GET("", h.ListPayments)
			payments.GET("/:reference/status", h.GetPaymentStatus)
			payments.POST("/:reference/cancel", h.CancelPayment)
		}

		api.POST("/refunds", h.Refund)

		api.POST("/webhooks/gateway", h.GatewayWebhook)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
