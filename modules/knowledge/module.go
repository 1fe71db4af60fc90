package knowledge

import (
	"embed"

	"github.com/gorilla/mux"

	"github.com/talkbase/talkbase/modules/knowledge/infrastructure/persistence"
	"github.com/talkbase/talkbase/modules/knowledge/presentation/controllers"
	"github.com/talkbase/talkbase/modules/knowledge/services"
	"github.com/talkbase/talkbase/pkg/application"
	"github.com/talkbase/talkbase/pkg/background"
	"github.com/talkbase/talkbase/pkg/configuration"
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

func (m *Module) Register(app application.Application) error {
	conf := configuration.Use()

	embedder := llm.NewOpenAIEmbedder(
		conf.OpenAI.APIKey,
		conf.OpenAI.BaseURL,
		conf.OpenAI.EmbeddingModel,
		conf.OpenAI.EmbeddingDimension,
	)
	documentRepo := persistence.NewDocumentRepository()
	embeddingRepo := persistence.NewEmbeddingRepository()
	logRepo := persistence.NewRetrievalLogRepository()

	app.RegisterServices(
		services.NewDocumentService(services.DocumentServiceConfig{
			DocumentRepo:  documentRepo,
			EmbeddingRepo: embeddingRepo,
			Embedder:      embedder,
		}),
		services.NewRetrievalService(services.RetrievalServiceConfig{
			EmbeddingRepo: embeddingRepo,
			LogRepo:       logRepo,
			Embedder:      embedder,
			Queue:         m.queue,
		}),
	)
	app.RegisterControllers(
		controllers.NewDocumentController(controllers.DocumentControllerConfig{
			BasePath: "/api/v1/knowledge/documents",
			App:      app,
			Middlewares: []mux.MiddlewareFunc{
				middleware.WithTransaction(),
			},
		}),
	)
	app.Migrations().RegisterSchema(&MigrationFiles)
	return nil
}

func (m *Module) Name() string {
	return "knowledge"
}
