package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	ServiceName                   string        `mapstructure:"SERVICE_NAME"`
	Port                          string        `mapstructure:"PORT"`
	DatabaseDriver                string        `mapstructure:"DATABASE_DRIVER"`
	DatabasePath                  string        `mapstructure:"DATABASE_PATH"`
	DatabaseDSN                   string        `mapstructure:"DATABASE_DSN"`
	DiscordClientID               string        `mapstructure:"DISCORD_CLIENT_ID"`
	DiscordClientSecret           string        `mapstructure:"DISCORD_CLIENT_SECRET"`
	DiscordRedirectURL            string        `mapstructure:"DISCORD_REDIRECT_URL"`
	DiscordGuildID                string        `mapstructure:"DISCORD_GUILD_ID"`
	DiscordBotToken               string        `mapstructure:"DISCORD_BOT_TOKEN"`
	DiscordNotificationsChannelID string        `mapstructure:"DISCORD_NOTIFICATIONS_CHANNEL_ID"`
	JWTSecret                     string        `mapstructure:"JWT_SECRET"`
	FrontendURL                   string        `mapstructure:"FRONTEND_URL"`
	EnableCORS                    bool          `mapstructure:"ENABLE_CORS"`
	MessagingBackend              string        `mapstructure:"MESSAGING_BACKEND"`
	RedisAddr                     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword                 string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB                       int           `mapstructure:"REDIS_DB"`
	AdmissionMaxRetries           uint64        `mapstructure:"ADMISSION_MAX_RETRIES"`
	ReconcileInterval             time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	LogLevel                      string        `mapstructure:"LOG_LEVEL"`
	LogEncoding                   string        `mapstructure:"LOG_ENCODING"`
}

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	BackendGoChannel = "gochannel"
	BackendRedis     = "redis"
)

func LoadConfig() *Config {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("SERVICE_NAME", "garage-rsvp-api")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_DRIVER", DriverSQLite)
	v.SetDefault("DATABASE_PATH", "rsvp.db")
	v.SetDefault("DATABASE_DSN", "")
	v.SetDefault("DISCORD_REDIRECT_URL", "http://127.0.0.1:8080/auth/discord/callback")
	v.SetDefault("DISCORD_GUILD_ID", "")
	v.SetDefault("FRONTEND_URL", "http://127.0.0.1:4000/events")
	v.SetDefault("ENABLE_CORS", false)
	v.SetDefault("MESSAGING_BACKEND", BackendGoChannel)
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ADMISSION_MAX_RETRIES", 3)
	v.SetDefault("RECONCILE_INTERVAL", "10m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_ENCODING", "plain")

	for _, key := range []string{
		"DATABASE_DSN",
		"DISCORD_CLIENT_ID",
		"DISCORD_CLIENT_SECRET",
		"DISCORD_GUILD_ID",
		"DISCORD_BOT_TOKEN",
		"DISCORD_NOTIFICATIONS_CHANNEL_ID",
		"JWT_SECRET",
		"FRONTEND_URL",
		"ENABLE_CORS",
		"REDIS_PASSWORD",
	} {
		_ = v.BindEnv(key)
	}

	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	if config.JWTSecret == "" {
		log.Printf("JWT_SECRET is empty; issued tokens are not secure")
	}

	return &config
}
