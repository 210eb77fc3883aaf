package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agriconnect/agriconnect-api/middleware"
	"github.com/agriconnect/agriconnect-api/services"
)

// cartService returns the cart store, responding 503 when none is configured
func cartService(c *gin.Context) services.CartInterface {
	cart := services.GetCartService()
	if cart == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CART_UNAVAILABLE",
				"message": "Server-side cart is not configured",
			},
		})
	}
	return cart
}

// GetCart handles GET /api/v1/cart - the caller's cart lines
func GetCart(c *gin.Context) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}

	cart := cartService(c)
	if cart == nil {
		return
	}

	lines, err := cart.GetCart(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CART_ERROR",
				"message": "Failed to load cart",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    lines,
	})
}

// PutCartItem handles PUT /api/v1/cart/items - adds or replaces a cart line
func PutCartItem(c *gin.Context) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}

	var line services.CheckoutLine
	if err := c.ShouldBindJSON(&line); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "product_id and a positive quantity are required",
				"details": err.Error(),
			},
		})
		return
	}

	cart := cartService(c)
	if cart == nil {
		return
	}

	lines, err := cart.PutLine(c.Request.Context(), user.ID, line)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CART_ERROR",
				"message": "Failed to update cart",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    lines,
	})
}

// RemoveCartItem handles DELETE /api/v1/cart/items/:productID
func RemoveCartItem(c *gin.Context) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}

	productID, err := strconv.ParseUint(c.Param("productID"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid product id",
			},
		})
		return
	}

	cart := cartService(c)
	if cart == nil {
		return
	}

	lines, err := cart.RemoveLine(c.Request.Context(), user.ID, uint(productID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CART_ERROR",
				"message": "Failed to update cart",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    lines,
	})
}

// ClearCart handles DELETE /api/v1/cart
func ClearCart(c *gin.Context) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}

	cart := cartService(c)
	if cart == nil {
		return
	}

	if err := cart.ClearCart(c.Request.Context(), user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CART_ERROR",
				"message": "Failed to clear cart",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Cart cleared",
	})
}
