package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/studio-s/auth-service/internal/services"
)

// HealthHandler reports subsystem health. It sits outside the gateway
// trust filter so orchestrators can probe it directly.
type HealthHandler struct {
	db     *gorm.DB
	events services.EventQueue
}

func NewHealthHandler(db *gorm.DB, events services.EventQueue) *HealthHandler {
	return &HealthHandler{db: db, events: events}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"

	dbStatus := "ok"
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err != nil {
			dbStatus = "error: " + err.Error()
			overall = "unhealthy"
		} else if err := sqlDB.Ping(); err != nil {
			dbStatus = "error: " + err.Error()
			overall = "unhealthy"
		}
	} else {
		dbStatus = "n/a"
	}

	queueMode := "sync"
	if h.events != nil && h.events.IsAsync() {
		queueMode = "async (Redis)"
	}

	status := 200
	if overall != "healthy" {
		status = 503
	}
	c.JSON(status, gin.H{
		"status":  overall,
		"service": "studio-s-auth",
		"components": gin.H{
			"database":   dbStatus,
			"queue_mode": queueMode,
		},
	})
}

// Liveness is a trivial probe for the gateway and backend binaries.
// GET /health
func Liveness(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy", "service": service})
	}
}
