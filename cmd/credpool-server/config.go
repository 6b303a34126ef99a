package main

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/accessdesk/credpool/internal/api/http"
	"github.com/accessdesk/credpool/internal/db"
)

type Config struct {
	Log      LogConfig
	Http     http.Config
	Database DatabaseConfig
	Pool     PoolConfig
	Auth     AuthConfig
	Secrets  SecretsConfig
	Redis    RedisConfig
}

type DatabaseConfig struct {
	db.Config      `mapstructure:",squash"`
	MigrateOnStart bool `mapstructure:"migrate_on_start"`
}

type PoolConfig struct {
	MaxBatch int `mapstructure:"max_batch"`
}

type AuthConfig struct {
	JWTSecret        string `mapstructure:"jwt_secret"`
	TokenExpiryHours int    `mapstructure:"token_expiry_hours"`
}

type SecretsConfig struct {
	MasterKey string `mapstructure:"master_key"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/credpool-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Secrets come from the environment, never from the yaml file
	_ = viper.BindEnv("database.url", "DATABASE_URL")
	_ = viper.BindEnv("auth.jwt_secret", "CREDPOOL_JWT_SECRET")
	_ = viper.BindEnv("secrets.master_key", "CREDPOOL_MASTER_KEY")
	_ = viper.BindEnv("http.admin_api_key", "CREDPOOL_ADMIN_API_KEY")
	_ = viper.BindEnv("redis.password", "CREDPOOL_REDIS_PASSWORD")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	if config.Auth.TokenExpiryHours <= 0 {
		config.Auth.TokenExpiryHours = 24
	}

	// Initialize logger with configured log level
	initLogger(config.Log.Level)
}
