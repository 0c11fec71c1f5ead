package main

import (
	"log"
	"os"

	"grant-review-api/config"
	"grant-review-api/controllers"
	"grant-review-api/middleware"
	"grant-review-api/routes"
	"grant-review-api/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logFile, _ := config.InitLogging()
	if logFile != nil {
		defer logFile.Close()
	}

	// A broken workflow definition must never reach request handling.
	if err := services.ValidateWorkflows(); err != nil {
		log.Fatalf("workflow validation failed: %v", err)
	}

	// Initialize database
	config.InitDB()

	// Set Gin mode
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Add logging middleware
	router.Use(gin.Logger())

	// Add recovery middleware
	router.Use(gin.Recovery())

	// Add security headers middleware
	router.Use(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'self'")
		c.Next()
	})

	// Add CORS middleware
	router.Use(middleware.CORSMiddleware())

	// Activity entries are written synchronously; email and in-app
	// notifications are best-effort delivery adapters behind them.
	dispatcher := services.NewDispatcher(config.DB,
		services.NewEmailAdapter(config.DB),
		services.NewNotificationAdapter(config.DB),
	)
	ctrl := controllers.NewSubmissionController(config.DB, dispatcher)

	// Setup routes
	routes.SetupRoutes(router, ctrl)

	// Start server
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)

	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
