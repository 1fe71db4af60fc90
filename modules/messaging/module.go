package messaging

import (
	"embed"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	knowledgeServices "github.com/talkbase/talkbase/modules/knowledge/services"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/responsecache"
	infraCache "github.com/talkbase/talkbase/modules/messaging/infrastructure/cache"
	"github.com/talkbase/talkbase/modules/messaging/infrastructure/gateway"
	"github.com/talkbase/talkbase/modules/messaging/infrastructure/persistence"
	"github.com/talkbase/talkbase/modules/messaging/presentation/controllers"
	"github.com/talkbase/talkbase/modules/messaging/services"
	"github.com/talkbase/talkbase/pkg/application"
	"github.com/talkbase/talkbase/pkg/background"
	"github.com/talkbase/talkbase/pkg/configuration"
	"github.com/talkbase/talkbase/pkg/eskiz"
	"github.com/talkbase/talkbase/pkg/llm"
	"github.com/talkbase/talkbase/pkg/middleware"
)

//go:embed infrastructure/persistence/schema/*.sql
var MigrationFiles embed.FS

func NewModule(queue *background.Queue) application.Module {
	return &Module{queue: queue}
}

type Module struct {
	queue *background.Queue
}

// Register wires the messaging pipeline. Depends on the knowledge module
// being registered first for the retrieval service.
func (m *Module) Register(app application.Application) error {
	conf := configuration.Use()

	conversationRepo := persistence.NewConversationRepository()
	messageRepo := persistence.NewMessageRepository()
	agentRepo := persistence.NewAgentRepository()
	settingsRepo := persistence.NewAISettingsRepository()
	usageLogRepo := persistence.NewAIUsageLogRepository()

	generator := llm.NewOpenAIGenerator(llm.OpenAIOptions{
		APIKey:  conf.OpenAI.APIKey,
		BaseURL: conf.OpenAI.BaseURL,
		Model:   conf.OpenAI.ChatModel,
	})

	var responseCache responsecache.Cache
	if conf.ResponseCache.Enabled {
		responseCache = infraCache.NewRedisCache(
			redis.NewClient(&redis.Options{Addr: conf.RedisURL}),
			conf.ResponseCache.Prefix,
			conf.ResponseCache.TTL,
		)
	}

	gatewayRouter := gateway.NewRouter()
	gatewayRouter.RegisterPlatform("telegram", gateway.NewWebhookGateway(0))
	gatewayRouter.RegisterPlatform("whatsapp", gateway.NewWebhookGateway(0))
	gatewayRouter.RegisterPlatform("web", gateway.NewWebhookGateway(0))
	if conf.Eskiz.Enabled() {
		gatewayRouter.RegisterPlatform("sms", gateway.NewSMSGateway(gateway.SMSGatewayOptions{
			Config: eskiz.NewConfig(conf.Eskiz.Email, conf.Eskiz.Password),
			Sender: conf.Eskiz.Sender,
		}))
	}

	tracker := services.NewContextTracker(services.ContextTrackerConfig{
		MessageRepo: messageRepo,
		Generator:   generator,
	})
	handover := services.NewHandoverService(services.HandoverServiceConfig{
		ConversationRepo: conversationRepo,
		MessageRepo:      messageRepo,
		AgentRepo:        agentRepo,
		SettingsRepo:     settingsRepo,
		EventPublisher:   app.EventPublisher(),
	})
	retrieval := app.Service(knowledgeServices.RetrievalService{}).(*knowledgeServices.RetrievalService)

	app.RegisterServices(
		services.NewConversationService(services.ConversationServiceConfig{
			ConversationRepo: conversationRepo,
			MessageRepo:      messageRepo,
			SettingsRepo:     settingsRepo,
			EventPublisher:   app.EventPublisher(),
		}),
		handover,
		services.NewOrchestratorService(services.OrchestratorServiceConfig{
			ConversationRepo: conversationRepo,
			MessageRepo:      messageRepo,
			UsageLogRepo:     usageLogRepo,
			SettingsRepo:     settingsRepo,
			ContextTracker:   tracker,
			Retrieval:        retrieval,
			Handover:         handover,
			Generator:        generator,
			EventPublisher:   app.EventPublisher(),
			Queue:            m.queue,
			Gateway:          gatewayRouter,
			ResponseCache:    responseCache,
		}),
		services.NewRealtimeService(services.RealtimeServiceConfig{
			Publisher:      app.Websocket(),
			EventPublisher: app.EventPublisher(),
			Logger:         conf.Logger(),
		}),
	)
	app.RegisterControllers(
		controllers.NewConversationController(controllers.ConversationControllerConfig{
			BasePath: "/api/v1/conversations",
			App:      app,
			Middlewares: []mux.MiddlewareFunc{
				middleware.WithTransaction(),
			},
		}),
		controllers.NewRealtimeController(controllers.RealtimeControllerConfig{
			BasePath: "/ws",
			App:      app,
		}),
	)
	app.Migrations().RegisterSchema(&MigrationFiles)
	return nil
}

func (m *Module) Name() string {
	return "messaging"
}
