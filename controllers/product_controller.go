package controllers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agriconnect/agriconnect-api/config"
	"github.com/agriconnect/agriconnect-api/middleware"
	"github.com/agriconnect/agriconnect-api/models"
	"github.com/agriconnect/agriconnect-api/services"
	"github.com/agriconnect/agriconnect-api/utils"
)

// CreateProductRequest represents the request body for creating a listing
type CreateProductRequest struct {
	CropName      string   `json:"crop_name" binding:"required"`
	Category      string   `json:"category" binding:"required"`
	HarvestDate   string   `json:"harvest_date" binding:"required"` // YYYY-MM-DD
	ExpiryDate    string   `json:"expiry_date" binding:"required"`  // YYYY-MM-DD
	PriceINR      float64  `json:"price_inr" binding:"required,gt=0"`
	Quantity      int      `json:"quantity" binding:"required,gt=0"`
	ManualAddress string   `json:"manual_address"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
}

// UpdateProductRequest represents the request body for updating a listing
type UpdateProductRequest struct {
	CropName      *string  `json:"crop_name"`
	Category      *string  `json:"category"`
	PriceINR      *float64 `json:"price_inr"`
	ManualAddress *string  `json:"manual_address"`
	Status        *string  `json:"status"`
}

// ListProducts handles GET /api/v1/products - all available listings, with
// an optional radius filter around a point
func ListProducts(c *gin.Context) {
	db := config.GetDB()

	query := db.Preload("Farmer").Order("created_at DESC")
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	var products []models.Product
	if err := query.Find(&products).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load products",
			},
		})
		return
	}

	// Basic radius filter: keep listings within radius_km of (lat, lng)
	latStr, lngStr, radiusStr := c.Query("lat"), c.Query("lng"), c.Query("radius_km")
	if latStr != "" && lngStr != "" && radiusStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lng, lngErr := strconv.ParseFloat(lngStr, 64)
		radius, radErr := strconv.ParseFloat(radiusStr, 64)
		if latErr != nil || lngErr != nil || radErr != nil || radius <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": "lat, lng and radius_km must be valid numbers",
				},
			})
			return
		}

		filtered := make([]models.Product, 0, len(products))
		for _, p := range products {
			if p.Latitude == nil || p.Longitude == nil {
				continue
			}
			if haversineKm(lat, lng, *p.Latitude, *p.Longitude) <= radius {
				filtered = append(filtered, p)
			}
		}
		products = filtered
	}

	attachImageURLs(products)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    products,
	})
}

// GetProduct handles GET /api/v1/products/:id
func GetProduct(c *gin.Context) {
	db := config.GetDB()

	var product models.Product
	if err := db.Preload("Farmer").First(&product, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PRODUCT_NOT_FOUND",
				"message": "Product not found",
			},
		})
		return
	}

	if product.ImageS3Key != nil {
		if imageService := services.GetImageService(); imageService != nil {
			if url, err := imageService.GetImageURL(*product.ImageS3Key); err == nil && url != "" {
				product.ImageURL = &url
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    product,
	})
}

// CreateProduct handles POST /api/v1/products - creates a listing (farmers only)
func CreateProduct(c *gin.Context) {
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

	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid product data",
				"details": err.Error(),
			},
		})
		return
	}

	if !models.ValidCategory(req.Category) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Category must be one of Grains, Vegetables, Fruits",
			},
		})
		return
	}

	harvestDate, err := time.Parse("2006-01-02", req.HarvestDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "harvest_date must be YYYY-MM-DD",
			},
		})
		return
	}
	expiryDate, err := time.Parse("2006-01-02", req.ExpiryDate)
	if err != nil || expiryDate.Before(harvestDate) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "expiry_date must be YYYY-MM-DD and not before harvest_date",
			},
		})
		return
	}

	product := models.Product{
		FarmerID:      user.ID,
		CropName:      req.CropName,
		Category:      req.Category,
		HarvestDate:   harvestDate,
		ExpiryDate:    expiryDate,
		PriceINR:      req.PriceINR,
		Quantity:      req.Quantity,
		ManualAddress: req.ManualAddress,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Status:        models.ProductAvailable,
	}

	db := config.GetDB()
	if err := db.Create(&product).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to create product",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    product,
	})
}

// UpdateProduct handles PUT /api/v1/products/:id - partial update by the
// owning farmer. Quantity fields are excluded: only the order engine moves
// sold_quantity, and total quantity edits would break its invariant.
func UpdateProduct(c *gin.Context) {
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
	var product models.Product
	if err := db.First(&product, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PRODUCT_NOT_FOUND",
				"message": "Product not found",
			},
		})
		return
	}

	if product.FarmerID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only the owning farmer can update this listing",
			},
		})
		return
	}

	var req UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid product data",
				"details": err.Error(),
			},
		})
		return
	}

	updates := map[string]interface{}{}
	if req.CropName != nil {
		updates["crop_name"] = *req.CropName
	}
	if req.Category != nil {
		if !models.ValidCategory(*req.Category) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": "Category must be one of Grains, Vegetables, Fruits",
				},
			})
			return
		}
		updates["category"] = *req.Category
	}
	if req.PriceINR != nil {
		if *req.PriceINR <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": "price_inr must be positive",
				},
			})
			return
		}
		updates["price_inr"] = *req.PriceINR
	}
	if req.ManualAddress != nil {
		updates["manual_address"] = *req.ManualAddress
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}

	if len(updates) > 0 {
		if err := db.Model(&product).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to update product",
				},
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    product,
	})
}

// UploadProductImage handles POST /api/v1/products/:id/image - attaches a
// PNG photo to a listing (owning farmer only)
func UploadProductImage(c *gin.Context) {
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
	var product models.Product
	if err := db.First(&product, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PRODUCT_NOT_FOUND",
				"message": "Product not found",
			},
		})
		return
	}

	if product.FarmerID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only the owning farmer can upload a photo",
			},
		})
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_FILE",
				"message": "No image file provided",
			},
		})
		return
	}

	imageService := services.GetImageService()
	if imageService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STORAGE_UNAVAILABLE",
				"message": "Image storage is not configured",
			},
		})
		return
	}

	imageKey, err := imageService.UploadImage(fileHeader)
	if err != nil {
		status := http.StatusInternalServerError
		code := "UPLOAD_FAILED"
		var fileErr *utils.FileUploadError
		if errors.As(err, &fileErr) {
			status = http.StatusBadRequest
			code = fileErr.Code
		}
		c.JSON(status, gin.H{
			"success": false,
			"error": gin.H{
				"code":    code,
				"message": err.Error(),
			},
		})
		return
	}

	// Replace any previous photo
	if product.ImageS3Key != nil && *product.ImageS3Key != imageKey {
		if err := imageService.DeleteImage(*product.ImageS3Key); err != nil {
			// Orphaned object, not worth failing the request
			_ = err
		}
	}

	if err := db.Model(&product).Update("image_s3_key", imageKey).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Photo uploaded but could not be linked to the product",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"image_s3_key": imageKey,
		},
	})
}

// attachImageURLs fills the computed ImageURL field with presigned URLs
func attachImageURLs(products []models.Product) {
	imageService := services.GetImageService()
	if imageService == nil {
		return
	}
	for i := range products {
		if products[i].ImageS3Key == nil {
			continue
		}
		if url, err := imageService.GetImageURL(*products[i].ImageS3Key); err == nil && url != "" {
			products[i].ImageURL = &url
		}
	}
}

// haversineKm returns the great-circle distance between two points
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
