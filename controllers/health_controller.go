package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trashbin/services"
)

type HealthController struct {
	health *services.HealthService
}

func NewHealthController(health *services.HealthService) *HealthController {
	return &HealthController{health: health}
}

func (hc *HealthController) Health(c *gin.Context) {
	status := hc.health.Check(c.Request.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
