package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agriconnect/agriconnect-api/services"
)

// GetRate handles GET /api/v1/price/rate - the current INR-per-ETH rate,
// for display conversion on product and checkout pages
func GetRate(c *gin.Context) {
	oracle := services.GetPriceService()
	if oracle == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ORACLE_UNAVAILABLE",
				"message": "Price oracle is not configured",
			},
		})
		return
	}

	rate, err := oracle.GetRate(c.Request.Context(), "ethereum", "inr")
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrOracleUnavailable) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ORACLE_UNAVAILABLE",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"base":  "ethereum",
			"quote": "inr",
			"rate":  rate,
		},
	})
}
