package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// HealthCheck handles liveness requests
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "catalog-import-service",
	})
}

// ReadinessCheck reports ready once the database answers. Redis is optional:
// without it imports run inline.
func ReadinessCheck(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{"database": "ok"}
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			checks["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"service": "catalog-import-service",
				"checks":  checks,
			})
			return
		}

		if rdb == nil {
			checks["queue"] = "disabled"
		} else if err := rdb.Ping(ctx).Err(); err != nil {
			checks["queue"] = "unavailable, running inline"
		} else {
			checks["queue"] = "ok"
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "ready",
			"service": "catalog-import-service",
			"checks":  checks,
		})
	}
}
