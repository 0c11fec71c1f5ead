package routes

import (
	"grant-review-api/controllers"
	"grant-review-api/middleware"
	"grant-review-api/services"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, ctrl *controllers.SubmissionController) {
	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		public := v1.Group("")
		{
			// Authentication
			public.POST("/login", controllers.Login)

			// Health check
			public.GET("/health", func(c *gin.Context) {
				c.JSON(200, gin.H{
					"status":  "ok",
					"message": "Grant Review API is running",
				})
			})
		}

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			// User profile
			protected.GET("/profile", controllers.GetProfile)
			protected.PUT("/change-password", controllers.ChangePassword)

			// Workflow catalog
			protected.GET("/workflows", ctrl.ListWorkflows)

			// Submissions
			submissions := protected.Group("/submissions")
			{
				submissions.GET("", ctrl.ListSubmissions)
				submissions.POST("", ctrl.CreateSubmission)
				submissions.GET("/:id", ctrl.GetSubmission)

				// Phase transitions
				submissions.GET("/:id/actions", ctrl.GetActions)
				submissions.POST("/:id/transition", ctrl.RequestTransition)

				// Activity feed and comments
				submissions.GET("/:id/activity", ctrl.GetActivity)
				submissions.POST("/:id/comments", ctrl.CreateComment)

				// Flags
				submissions.POST("/:id/flags/:type", ctrl.ToggleFlag)

				// Reviews
				submissions.POST("/:id/reviews", ctrl.SubmitReview)
				submissions.GET("/:id/reviews", ctrl.GetReviews)
				submissions.GET("/:id/reviews/listing", ctrl.GetReviewListing)
				submissions.PUT("/:id/reviews/:review_id/finalize", ctrl.FinalizeReview)

				// Staff-only management
				submissions.PUT("/:id/screening",
					middleware.RequireCapabilities(services.CapStaff), ctrl.SetScreeningStatus)
				submissions.PUT("/:id/reviewers",
					middleware.RequireCapabilities(services.CapStaff), ctrl.AssignReviewers)
				submissions.POST("/:id/determination",
					middleware.RequireCapabilities(services.CapStaff), ctrl.IssueDetermination)
				submissions.POST("/:id/unseal",
					middleware.RequireCapabilities(services.CapAdmin), ctrl.Unseal)
			}

			// Flag lookup across submissions
			protected.GET("/flags/:type", ctrl.GetFlagged)

			// Screening scale
			protected.GET("/screening-statuses",
				middleware.RequireCapabilities(services.CapStaff), ctrl.ListScreeningStatuses)

			// Notifications
			notifications := protected.Group("/notifications")
			{
				notifications.GET("", controllers.GetNotifications)
				notifications.GET("/counter", controllers.GetNotificationCounter)
				notifications.PUT("/:id/read", controllers.MarkNotificationRead)
				notifications.PUT("/read-all", controllers.MarkAllNotificationsRead)
			}
		}
	}
}
