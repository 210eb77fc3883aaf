package main

import (
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/agriconnect/agriconnect-api/config"
	"github.com/agriconnect/agriconnect-api/controllers"
	"github.com/agriconnect/agriconnect-api/middleware"
	"github.com/agriconnect/agriconnect-api/models"
	"github.com/agriconnect/agriconnect-api/services"
)

func main() {
	// Basic logging
	log.Println("Starting AgriConnect API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	if err := config.ConnectDatabase(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto-migrate database models
	db := config.GetDB()
	if err := db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Product{},
		&models.Order{},
		&models.Complaint{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migration completed successfully")

	// Initialize external collaborators
	if _, err := services.InitEscrowService(); err != nil {
		log.Fatalf("Failed to initialize escrow service: %v", err)
	}

	cartStore, err := services.InitCartService(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize cart service: %v", err)
	}
	if redisCart, ok := cartStore.(*services.RedisCartService); ok {
		services.InitPriceService(cfg, redisCart.RedisClient())
	} else {
		services.InitPriceService(cfg, nil)
	}

	if cfg.AWSS3Bucket != "" {
		s3Service, err := services.InitS3Service()
		if err != nil {
			log.Fatalf("Failed to initialize S3 service: %v", err)
		}
		services.InitImageService(s3Service)
	} else {
		log.Println("AWS_S3_BUCKET not set, product photo uploads disabled")
	}

	if publisher := services.InitEventPublisher(cfg); publisher != nil {
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Printf("warning: failed to close event publisher: %v", err)
			}
		}()
	}

	// Initialize Gin router
	router := gin.Default()
	router.Use(cors.Default())

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check endpoint
		v1.GET("/health", healthCheck)

		// Database status endpoint
		v1.GET("/database/status", databaseStatus)

		// Accounts and sessions
		auth := v1.Group("/auth")
		{
			auth.POST("/register", controllers.Register)
			auth.POST("/login", controllers.Login)
			auth.POST("/logout", middleware.RequireSession(), controllers.Logout)
		}

		// Catalog
		v1.GET("/products", controllers.ListProducts)
		v1.GET("/products/:id", controllers.GetProduct)
		v1.POST("/products", middleware.RequireSession(), middleware.RequireRole(models.RoleFarmer), controllers.CreateProduct)
		v1.PUT("/products/:id", middleware.RequireSession(), middleware.RequireRole(models.RoleFarmer), controllers.UpdateProduct)
		v1.POST("/products/:id/image", middleware.RequireSession(), middleware.RequireRole(models.RoleFarmer), controllers.UploadProductImage)

		// Display rate
		v1.GET("/price/rate", controllers.GetRate)

		// Server-side cart (consumers only)
		cart := v1.Group("/cart", middleware.RequireSession(), middleware.RequireRole(models.RoleConsumer))
		{
			cart.GET("", controllers.GetCart)
			cart.PUT("/items", controllers.PutCartItem)
			cart.DELETE("/items/:productID", controllers.RemoveCartItem)
			cart.DELETE("", controllers.ClearCart)
		}

		// Orders
		orders := v1.Group("/orders", middleware.RequireSession())
		{
			orders.POST("/checkout", middleware.RequireRole(models.RoleConsumer), controllers.Checkout)
			orders.GET("/my-orders", controllers.MyOrders)
			orders.PATCH("/:id/deliver", middleware.RequireRole(models.RoleConsumer), controllers.ConfirmDelivery)
			orders.PATCH("/:id/cancel", middleware.RequireRole(models.RoleAdmin), controllers.CancelOrder)
			orders.POST("/reconcile", middleware.RequireRole(models.RoleAdmin), controllers.ReconcileOrders)
		}

		// Dispute ledger
		v1.POST("/disputes", controllers.FileDispute)
		v1.GET("/disputes", middleware.RequireSession(), middleware.RequireRole(models.RoleAdmin), controllers.ListDisputes)
		v1.PUT("/disputes/:ticketID", middleware.RequireSession(), middleware.RequireRole(models.RoleAdmin), controllers.UpdateDispute)
	}

	// Start server
	port := ":" + cfg.Port
	log.Printf("Server is running on http://localhost%s", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "AgriConnect API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()

	// Get the underlying SQL database to check connection
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	// Ping the database to verify connection
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	// Get list of tables
	var tables []string
	if err := db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public'").Scan(&tables).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
