package handlers

import (
	"github.com/labstack/echo/v4"

	"zapleads/internal/app"
	"zapleads/internal/http/middleware"
)

// SetupRoutes sets up all API routes
func SetupRoutes(api *echo.Group, svcs *app.Services) {
	// WebSocket hub doubles as the connection status fanout.
	wsHandler := NewWebSocketHandler(svcs.AuthService)
	svcs.StateMachine.SetNotifier(wsHandler)

	// Auth routes (no authentication required)
	authHandler := NewAuthHandler(svcs.AuthService)
	authGroup := api.Group("/auth")
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/refresh", authHandler.RefreshToken)

	// Gateway callback (authenticated by obscurity of the instance id, the
	// handler never mutates state for unknown instances)
	api.POST("/webhooks/whatsapp/connected", svcs.WebhookHandler.HandleConnected)
	api.POST("/webhooks/whatsapp/message", svcs.WebhookHandler.HandleMessage)

	// WebSocket endpoint (handles authentication manually via query parameter)
	api.GET("/ws", wsHandler.HandleWebSocket)

	// Protected routes (require authentication)
	protected := api.Group("")
	protected.Use(middleware.JWTAuth(svcs.AuthService))

	profileAuth := protected.Group("/auth")
	profileAuth.PUT("/profile", authHandler.UpdateProfile)
	profileAuth.PUT("/change-password", authHandler.ChangePassword)

	// Prospect database
	companyHandler := NewCompanyHandler(svcs.CompanyRepo)
	companies := protected.Group("/companies")
	companies.GET("", companyHandler.List)
	companies.GET("/segments", companyHandler.Segments)
	companies.GET("/:id", companyHandler.GetByID)

	leadHandler := NewLeadHandler(svcs.LeadRepo, svcs.CompanyRepo)
	leads := protected.Group("/leads")
	leads.GET("", leadHandler.List)
	leads.POST("", leadHandler.Create)
	leads.GET("/:id", leadHandler.GetByID)
	leads.PUT("/:id", leadHandler.Update)
	leads.DELETE("/:id", leadHandler.Delete)

	// Message templates
	templateHandler := NewMessageTemplateHandler(svcs.MessageTemplateRepo)
	templates := protected.Group("/message-templates")
	templates.GET("", templateHandler.List)
	templates.POST("", templateHandler.Create)
	templates.GET("/categories", templateHandler.Categories)
	templates.GET("/:id", templateHandler.GetByID)
	templates.PUT("/:id", templateHandler.Update)
	templates.DELETE("/:id", templateHandler.Delete)

	// Campaigns
	campaignHandler := NewCampaignHandler(svcs.CampaignRepo, svcs.LeadRepo, svcs.CampaignService)
	campaigns := protected.Group("/campaigns")
	campaigns.GET("", campaignHandler.List)
	campaigns.POST("", campaignHandler.Create)
	campaigns.GET("/:id", campaignHandler.GetByID)
	campaigns.POST("/:id/leads", campaignHandler.AddLeads)
	campaigns.POST("/:id/activate", campaignHandler.Activate)
	campaigns.POST("/:id/pause", campaignHandler.Pause)
	campaigns.POST("/:id/dispatch", campaignHandler.Dispatch)

	// WhatsApp connections
	connectionHandler := NewConnectionHandler(svcs.ConnectionRepo, svcs.StateMachine, svcs.AllocationService)
	connections := protected.Group("/connections")
	connections.GET("", connectionHandler.List)
	connections.POST("", connectionHandler.Create)
	connections.GET("/slot", connectionHandler.Slot)
	connections.GET("/:id", connectionHandler.GetByID)
	connections.DELETE("/:id", connectionHandler.Delete)
	connections.GET("/:id/qr", connectionHandler.QR)
	connections.POST("/:id/connect", connectionHandler.Connect)
	connections.POST("/:id/cancel", connectionHandler.Cancel)
	connections.POST("/:id/disconnect", connectionHandler.Disconnect)

	// Admin routes (instance pool management)
	admin := protected.Group("/admin")
	admin.Use(middleware.AdminOnly())
	instanceHandler := NewInstanceHandler(svcs.InstanceRepo, svcs.StateMachine)
	admin.GET("/instances", instanceHandler.List)
	admin.POST("/instances", instanceHandler.Create)
	admin.PUT("/instances/:id", instanceHandler.Update)
	admin.DELETE("/instances/:id", instanceHandler.Delete)
	admin.POST("/connections/:id/force-disconnect", instanceHandler.ForceDisconnect)
}
