package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const prefix = "gpt2bot"

// Settings holds the process configuration. Generation parameters are not
// here; they live in the config file at ConfigPath.
type Settings struct {
	ConfigPath  string `envconfig:"GPT2BOT_CONFIG_PATH" default:"gpt2.config"`
	PromptsPath string `envconfig:"GPT2BOT_PROMPTS_PATH" default:"default_prompts.txt"`
	WatchFiles  bool   `envconfig:"GPT2BOT_WATCH_FILES" default:"true"`

	Backend       string `envconfig:"GPT2BOT_BACKEND" default:"runtime"`
	ModelsDir     string `envconfig:"GPT2BOT_MODELS_DIR" default:"models"`
	CheckpointURL string `envconfig:"GPT2BOT_CHECKPOINT_URL" default:"https://openaipublic.blob.core.windows.net/gpt-2/models"`
	RuntimeURL    string `envconfig:"GPT2BOT_RUNTIME_URL" default:"http://localhost:8500"`
	APIKey        string `envconfig:"GPT2BOT_API_KEY" default:""`

	CommandPrefix  string        `envconfig:"GPT2BOT_COMMAND_PREFIX" default:";;"`
	BusyPolicy     string        `envconfig:"GPT2BOT_BUSY_POLICY" default:"queue"`
	QueueSize      int           `envconfig:"GPT2BOT_QUEUE_SIZE" default:"100"`
	RequestTimeout time.Duration `envconfig:"GPT2BOT_REQUEST_TIMEOUT" default:"0s"`

	// Broker is "memory" for a single process or "redis" to share tasks with
	// separate worker processes.
	Broker        string `envconfig:"GPT2BOT_BROKER" default:"memory"`
	RedisHost     string `envconfig:"GPT2BOT_REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"GPT2BOT_REDIS_PORT" default:"6379"`
	RedisDB       int    `envconfig:"GPT2BOT_REDIS_DB" default:"0"`
	RedisPassword string `envconfig:"GPT2BOT_REDIS_PASSWORD" default:""`
	RedisQueue    string `envconfig:"GPT2BOT_REDIS_QUEUE" default:"gpt2bot:tasks"`

	GRPCPort int `envconfig:"GPT2BOT_GRPC_PORT" default:"50051"`
	HTTPPort int `envconfig:"GPT2BOT_HTTP_PORT" default:"8080"`
}

// RedisAddr returns host:port of the Redis server.
func (s *Settings) RedisAddr() string {
	return fmt.Sprintf("%s:%d", s.RedisHost, s.RedisPort)
}

// Load reads the optional .env file at envFile, then the environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var s Settings
	if err := envconfig.Process(prefix, &s); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	switch s.Broker {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("unknown broker %q", s.Broker)
	}
	return &s, nil
}
