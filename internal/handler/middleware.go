package handler

import (
	"log"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserIDKey  = "auth.userID"
	ctxIsAdminKey = "auth.isAdmin"
)

// IdentityMiddleware trusts the upstream session layer (out of scope) to
// have authenticated the caller and to forward identity in headers. Admin
// access is granted by the shared token from config.
func IdentityMiddleware(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := c.GetHeader("X-User-ID"); v != "" {
			if userID, err := strconv.ParseInt(v, 10, 64); err == nil {
				c.Set(ctxUserIDKey, userID)
			}
		}
		if adminToken != "" && c.GetHeader("X-Admin-Token") == adminToken {
			c.Set(ctxIsAdminKey, true)
		}
		c.Next()
	}
}

func callerUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ctxUserIDKey)
	if !ok {
		return 0, false
	}
	userID, ok := v.(int64)
	return userID, ok
}

func callerIsAdmin(c *gin.Context) bool {
	return c.GetBool(ctxIsAdminKey)
}

func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "internal server error",
				})
			}
		}()
		c.Next()
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-User-ID, X-Admin-Token")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
