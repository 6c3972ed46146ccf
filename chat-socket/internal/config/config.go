package config

import (
	"time"

	"github.com/google/uuid"

	pkgconfig "github.com/weiawesome/wes-chat-socket/pkg/config"
	"github.com/weiawesome/wes-chat-socket/pkg/database"
	"github.com/weiawesome/wes-chat-socket/pkg/log"
	"github.com/weiawesome/wes-chat-socket/pkg/storage"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Chat      ChatConfig
	Database  database.Config
	Redis     RedisConfig
	Kafka     KafkaConfig
	Storage   storage.Config
	Log       log.Config
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	Path           string
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type ChatConfig struct {
	// ReadOnJoin marks a conversation read for the joining user.
	ReadOnJoin bool          `mapstructure:"read_on_join"`
	URLExpiry  time.Duration `mapstructure:"url_expiry"`
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	Channel  string
	PoolSize int `mapstructure:"pool_size"`
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

// Load reads config/config.yaml, applies defaults and environment overrides.
func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8055)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("websocket.path", "/chat-socket")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.allowed_origins", []string{"*"})
	v.SetDefault("chat.read_on_join", true)
	v.SetDefault("chat.url_expiry", "1h")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "chat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "chat-socket:broadcast")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "chat-messages-persisted")
	v.SetDefault("kafka.partitions", 8)
	v.SetDefault("storage.driver", "none")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "chat-socket")

	if err := pkgconfig.BindEnvs(v, map[string]string{
		"server.port":                  "PORT",
		"websocket.path":               "SOCKET_PATH",
		"chat.read_on_join":            "CHAT_READ_ON_JOIN",
		"database.driver":              "DB_DRIVER",
		"database.host":                "DB_HOST",
		"database.port":                "DB_PORT",
		"database.user":                "DB_USER",
		"database.password":            "DB_PASSWORD",
		"database.dbname":              "DB_NAME",
		"database.file_path":           "DB_FILE_PATH",
		"database.auto_migrate":        "DB_AUTO_MIGRATE",
		"redis.enabled":                "REDIS_ENABLED",
		"redis.address":                "REDIS_ADDRESS",
		"redis.password":               "REDIS_PASSWORD",
		"kafka.enabled":                "KAFKA_ENABLED",
		"kafka.brokers":                "KAFKA_BROKERS",
		"kafka.topic":                  "KAFKA_TOPIC",
		"storage.driver":               "STORAGE_DRIVER",
		"storage.local.base_path":      "STORAGE_LOCAL_BASE_PATH",
		"storage.local.base_url":       "STORAGE_LOCAL_BASE_URL",
		"storage.s3.endpoint":          "STORAGE_S3_ENDPOINT",
		"storage.s3.bucket":            "STORAGE_S3_BUCKET",
		"storage.s3.access_key_id":     "STORAGE_S3_ACCESS_KEY_ID",
		"storage.s3.secret_access_key": "STORAGE_S3_SECRET_ACCESS_KEY",
		"storage.s3.public_url":        "STORAGE_S3_PUBLIC_URL",
		"log.level":                    "LOG_LEVEL",
		"log.pretty":                   "LOG_PRETTY",
	}); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Server.ShutdownTimeout = pkgconfig.Duration(v, "server.shutdown_timeout", 30*time.Second)
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Chat.URLExpiry = pkgconfig.Duration(v, "chat.url_expiry", time.Hour)

	if cfg.Log.InstanceID == "" {
		cfg.Log.InstanceID = uuid.NewString()
	}

	return &cfg, nil
}
