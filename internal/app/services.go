package app

import (
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"zapleads/internal/auth"
	"zapleads/internal/connection"
	"zapleads/internal/gateway"
	"zapleads/internal/humanizer"
	"zapleads/internal/pool"
	"zapleads/internal/repo"
	"zapleads/internal/services"
	"zapleads/internal/webhook"
)

// Services holds all application services
type Services struct {
	DB *gorm.DB

	AuthService *auth.Service

	UserRepo            *repo.UserRepository
	InstanceRepo        *repo.InstanceRepository
	ConnectionRepo      *repo.ConnectionRepository
	CompanyRepo         *repo.CompanyRepository
	LeadRepo            *repo.LeadRepository
	MessageTemplateRepo *repo.MessageTemplateRepository
	CampaignRepo        *repo.CampaignRepository

	AllocationService *pool.AllocationService
	ReleaseGuard      *pool.ReleaseGuard
	GatewayClient     *gateway.Client
	StateMachine      *connection.StateMachine
	CampaignService   *services.CampaignService
	InstanceMonitor   *services.InstanceMonitorService
	WebhookHandler    *webhook.WhatsAppWebhookHandler
}

// webhookResolver joins the two repositories the webhook needs to map a
// gateway instance id onto the connection bound to it.
type webhookResolver struct {
	*repo.InstanceRepository
	*repo.ConnectionRepository
}

// NewServices creates a new services container
func NewServices(db *gorm.DB) *Services {
	userRepo := repo.NewUserRepository(db)
	instanceRepo := repo.NewInstanceRepository(db)
	connectionRepo := repo.NewConnectionRepository(db)
	companyRepo := repo.NewCompanyRepository(db)
	leadRepo := repo.NewLeadRepository(db)
	messageTemplateRepo := repo.NewMessageTemplateRepository(db)
	campaignRepo := repo.NewCampaignRepository(db)

	authService := auth.NewService(userRepo)

	allocationService := pool.NewAllocationService(instanceRepo)
	releaseGuard := pool.NewReleaseGuard(campaignRepo)
	gatewayClient := gateway.NewClient()

	stateMachine := connection.NewStateMachine(
		connectionRepo,
		allocationService,
		releaseGuard,
		gatewayClient,
		nil, // notifier installed in SetupRoutes once the websocket hub exists
		connection.Config{
			ConnectTimeout: envDuration("CONNECT_TIMEOUT", 60*time.Second),
			WebhookBaseURL: os.Getenv("WEBHOOK_BASE_URL"),
		},
	)

	dispatcher := services.NewCampaignDispatcher(
		campaignRepo,
		connectionRepo,
		gatewayClient,
		humanizer.New(),
		rate.NewLimiter(rate.Limit(envFloat("DISPATCH_RATE", 0.5)), 1),
	)
	campaignService := services.NewCampaignService(campaignRepo, dispatcher)

	instanceMonitor := services.NewInstanceMonitorService(
		connectionRepo,
		stateMachine,
		gatewayClient,
		envDuration("MONITOR_INTERVAL", 1*time.Minute),
	)

	webhookHandler := webhook.NewWhatsAppWebhookHandler(
		webhookResolver{instanceRepo, connectionRepo},
		stateMachine,
		campaignRepo,
	)

	return &Services{
		DB:                  db,
		AuthService:         authService,
		UserRepo:            userRepo,
		InstanceRepo:        instanceRepo,
		ConnectionRepo:      connectionRepo,
		CompanyRepo:         companyRepo,
		LeadRepo:            leadRepo,
		MessageTemplateRepo: messageTemplateRepo,
		CampaignRepo:        campaignRepo,
		AllocationService:   allocationService,
		ReleaseGuard:        releaseGuard,
		GatewayClient:       gatewayClient,
		StateMachine:        stateMachine,
		CampaignService:     campaignService,
		InstanceMonitor:     instanceMonitor,
		WebhookHandler:      webhookHandler,
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if raw := os.Getenv(key); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}
