package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agriconnect/agriconnect-api/services"
)

// FileDisputeRequest represents the request body for filing a dispute
type FileDisputeRequest struct {
	SubmitterID string `json:"submitter_id" binding:"required"`
	Dispute     string `json:"dispute" binding:"required"`
}

// UpdateDisputeRequest represents the request body for updating a dispute.
// Both fields are optional; omitted fields are left untouched.
type UpdateDisputeRequest struct {
	Remarks *string `json:"remarks"`
	Status  *string `json:"status"`
}

// FileDispute handles POST /api/v1/disputes - records a complaint and
// returns its generated ticket ID
func FileDispute(c *gin.Context) {
	var req FileDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "submitter_id and dispute are required",
				"details": err.Error(),
			},
		})
		return
	}

	disputeService := services.NewDisputeService()
	complaint, err := disputeService.FileDispute(req.SubmitterID, req.Dispute)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": err.Error(),
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to register dispute",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"message":      "Dispute registered successfully",
		"complaint_id": complaint.ComplaintID,
	})
}

// ListDisputes handles GET /api/v1/disputes - all complaints, newest first
// (operators only)
func ListDisputes(c *gin.Context) {
	disputeService := services.NewDisputeService()
	complaints, err := disputeService.ListDisputes()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load disputes",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    complaints,
	})
}

// UpdateDispute handles PUT /api/v1/disputes/:ticketID - operator update of
// remarks and/or status
func UpdateDispute(c *gin.Context) {
	var req UpdateDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid dispute update",
				"details": err.Error(),
			},
		})
		return
	}

	disputeService := services.NewDisputeService()
	complaint, err := disputeService.UpdateDispute(c.Param("ticketID"), req.Remarks, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDisputeNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DISPUTE_NOT_FOUND",
					"message": err.Error(),
				},
			})
		case errors.Is(err, services.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": err.Error(),
				},
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to update dispute",
				},
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    complaint,
	})
}
