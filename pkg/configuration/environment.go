package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/talkbase/talkbase/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existingFiles = append(existingFiles, file)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"talkbase"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type OpenAIOptions struct {
	APIKey             string `env:"OPENAI_KEY"`
	BaseURL            string `env:"OPENAI_BASE_URL"`
	ChatModel          string `env:"OPENAI_CHAT_MODEL" envDefault:"gpt-4o-mini"`
	EmbeddingModel     string `env:"OPENAI_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingDimension int    `env:"OPENAI_EMBEDDING_DIMENSION" envDefault:"1536"`
}

type PipelineOptions struct {
	MaxKnowledgeChunks  int           `env:"PIPELINE_MAX_KNOWLEDGE_CHUNKS" envDefault:"5"`
	SimilarityThreshold float64       `env:"PIPELINE_SIMILARITY_THRESHOLD" envDefault:"0.7"`
	HistoryExchanges    int           `env:"PIPELINE_HISTORY_EXCHANGES" envDefault:"5"`
	EmbedRetryAttempts  int           `env:"PIPELINE_EMBED_RETRY_ATTEMPTS" envDefault:"3"`
	EmbedRetryMaxWait   time.Duration `env:"PIPELINE_EMBED_RETRY_MAX_WAIT" envDefault:"60s"`
	GenerationTimeout   time.Duration `env:"PIPELINE_GENERATION_TIMEOUT" envDefault:"45s"`
	EmbeddingTimeout    time.Duration `env:"PIPELINE_EMBEDDING_TIMEOUT" envDefault:"15s"`
}

func (p *PipelineOptions) Validate() error {
	if p.MaxKnowledgeChunks <= 0 {
		return fmt.Errorf("pipeline MaxKnowledgeChunks must be positive, got %d", p.MaxKnowledgeChunks)
	}
	if p.SimilarityThreshold < 0 || p.SimilarityThreshold > 1 {
		return fmt.Errorf("pipeline SimilarityThreshold must be in [0,1], got %f", p.SimilarityThreshold)
	}
	if p.EmbedRetryAttempts <= 0 {
		return fmt.Errorf("pipeline EmbedRetryAttempts must be positive, got %d", p.EmbedRetryAttempts)
	}
	return nil
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type EskizOptions struct {
	Email    string `env:"ESKIZ_EMAIL"`
	Password string `env:"ESKIZ_PASSWORD"`
	Sender   string `env:"ESKIZ_SENDER" envDefault:"4546"`
}

func (e *EskizOptions) Enabled() bool {
	return e.Email != "" && e.Password != ""
}

type ResponseCacheOptions struct {
	Enabled bool          `env:"RESPONSE_CACHE_ENABLED" envDefault:"false"`
	Prefix  string        `env:"RESPONSE_CACHE_PREFIX" envDefault:"talkbase:ai_responses"`
	TTL     time.Duration `env:"RESPONSE_CACHE_TTL" envDefault:"1h"`
}

type Configuration struct {
	Database      DatabaseOptions
	OpenAI        OpenAIOptions
	Pipeline      PipelineOptions
	Prometheus    PrometheusOptions
	ResponseCache ResponseCacheOptions
	Eskiz         EskizOptions

	RedisURL         string `env:"REDIS_URL" envDefault:"localhost:6379"`
	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	Domain           string `env:"DOMAIN" envDefault:"localhost"`
	Origin           string `env:"ORIGIN" envDefault:"http://localhost:3200"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`
	// The server will look for this header in the request, if it's not present,
	// it will generate a random uuidv4.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	// Tenant resolution header for API requests.
	TenantIDHeader string `env:"TENANT_ID_HEADER" envDefault:"X-Tenant-ID"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func (c *Configuration) Scheme() string {
	if c.GoAppEnvironment == Production { // assume 'https' on production mode
		return "https"
	}
	return "http"
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline configuration error: %w", err)
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}

	return nil
}

func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("failed to close log file: %v", err)
		}
		c.logFile = nil
	}
}
