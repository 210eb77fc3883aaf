package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agriconnect/agriconnect-api/config"
	"github.com/agriconnect/agriconnect-api/middleware"
	"github.com/agriconnect/agriconnect-api/models"
	"github.com/agriconnect/agriconnect-api/services"
)

// CheckoutRequest represents the request body for checkout. When Items is
// empty the server-side cart is used instead.
type CheckoutRequest struct {
	Items []services.CheckoutLine `json:"items"`
}

// ReconcileRequest represents the request body for order reconciliation
type ReconcileRequest struct {
	TransactionHash string `json:"transaction_hash" binding:"required"`
}

// Checkout handles POST /api/v1/orders/checkout - places an escrow-backed
// order for every cart line (consumers only)
func Checkout(c *gin.Context) {
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

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid checkout data",
				"details": err.Error(),
			},
		})
		return
	}

	lines := req.Items
	usedCart := false
	if len(lines) == 0 {
		cart := services.GetCartService()
		if cart == nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "EMPTY_CART",
					"message": "No items provided and no server-side cart available",
				},
			})
			return
		}
		lines, err = cart.GetCart(c.Request.Context(), user.ID)
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
		usedCart = true
	}

	orderService := services.NewOrderService()
	orders, err := orderService.PlaceOrder(c.Request.Context(), user, lines)
	if err != nil {
		respondOrderError(c, orders, err)
		return
	}

	// The cart is consumed once its lines are paid for
	if usedCart {
		if cart := services.GetCartService(); cart != nil {
			if clearErr := cart.ClearCart(c.Request.Context(), user.ID); clearErr != nil {
				_ = clearErr
			}
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    orders,
	})
}

// MyOrders handles GET /api/v1/orders/my-orders - lists the caller's orders
// (purchases for consumers, sales for farmers)
func MyOrders(c *gin.Context) {
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

	db := config.GetDB()
	query := db.Preload("Product").Preload("Consumer").Preload("Farmer").Order("created_at DESC")
	if user.Role == models.RoleFarmer {
		query = query.Where("farmer_id = ?", user.ID)
	} else {
		query = query.Where("consumer_id = ?", user.ID)
	}

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load orders",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
	})
}

// ConfirmDelivery handles PATCH /api/v1/orders/:id/deliver - the buying
// consumer confirms delivery, releasing the escrow entry
func ConfirmDelivery(c *gin.Context) {
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

	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid order id",
			},
		})
		return
	}

	// Only the buyer may release the funds they deposited
	db := config.GetDB()
	var order models.Order
	if err := db.First(&order, uint(orderID)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ORDER_NOT_FOUND",
				"message": "Order not found",
			},
		})
		return
	}
	if order.ConsumerID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only the buyer can confirm delivery",
			},
		})
		return
	}

	orderService := services.NewOrderService()
	updated, err := orderService.ConfirmDelivery(c.Request.Context(), uint(orderID))
	if err != nil {
		respondOrderError(c, nil, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    updated,
	})
}

// CancelOrder handles PATCH /api/v1/orders/:id/cancel - administrative
// cancellation of an Active order
func CancelOrder(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid order id",
			},
		})
		return
	}

	orderService := services.NewOrderService()
	updated, err := orderService.CancelOrder(c.Request.Context(), uint(orderID))
	if err != nil {
		respondOrderError(c, nil, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    updated,
	})
}

// ReconcileOrders handles POST /api/v1/orders/reconcile - administrative
// backfill of on-chain order IDs from a deposit transaction hash
func ReconcileOrders(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "transaction_hash is required",
			},
		})
		return
	}

	orderService := services.NewOrderService()
	healed, err := orderService.ReconcileByHash(c.Request.Context(), req.TransactionHash)
	if err != nil {
		respondOrderError(c, nil, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"reconciled": healed,
		},
	})
}

// respondOrderError maps order-engine errors onto the response envelope.
// Every ledger failure includes the underlying message so the caller can
// reconcile manually (the transaction hash is embedded when one exists).
func respondOrderError(c *gin.Context, partial []models.Order, err error) {
	var partialErr *services.PartialCheckoutError
	if errors.As(err, &partialErr) {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"data":    partial,
			"error": gin.H{
				"code":            "PARTIAL_CHECKOUT",
				"message":         err.Error(),
				"mined_tx_hashes": partialErr.MinedTxHashes,
			},
		})
		return
	}

	status := http.StatusInternalServerError
	code := "ORDER_ERROR"
	switch {
	case errors.Is(err, services.ErrValidation):
		status, code = http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, services.ErrInsufficientStock):
		status, code = http.StatusConflict, "INSUFFICIENT_STOCK"
	case errors.Is(err, services.ErrMissingLedgerReference):
		status, code = http.StatusUnprocessableEntity, "MISSING_LEDGER_REFERENCE"
	case errors.Is(err, services.ErrOrderFinal):
		status, code = http.StatusConflict, "ORDER_FINAL"
	case errors.Is(err, services.ErrOracleUnavailable):
		status, code = http.StatusServiceUnavailable, "ORACLE_UNAVAILABLE"
	case errors.Is(err, services.ErrLedgerUnavailable):
		status, code = http.StatusServiceUnavailable, "LEDGER_UNAVAILABLE"
	case errors.Is(err, services.ErrTransactionRejected):
		status, code = http.StatusBadGateway, "TRANSACTION_REJECTED"
	case errors.Is(err, services.ErrEventNotFound):
		status, code = http.StatusBadGateway, "EVENT_NOT_FOUND"
	case errors.Is(err, services.ErrOrderNotFound):
		status, code = http.StatusNotFound, "LEDGER_ORDER_NOT_FOUND"
	}

	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": err.Error(),
		},
	})
}
