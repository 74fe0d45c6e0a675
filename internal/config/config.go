// Package config предоставляет структуры и функцию для парсинга и загрузки конфига.
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Panel                   `yaml:"panel"`
	Telegram                `yaml:"telegram"`
	Payments                `yaml:"payments"`
	Pricing                 `yaml:"pricing"`
	Trial                   `yaml:"trial"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:"0.0.0.0:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"5s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// RabbitMQ структура для подключения к брокеру уведомлений.
type RabbitMQ struct {
	URL               string `yaml:"url"`
	NotificationQueue string `yaml:"notification_queue" env-default:"notifications"`
}

// JWTToken структура для работы с jwt-токеном.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// Panel настройки клиента панели и входящих от неё вебхуков.
// Пустой WebhookSecret отключает проверку подписи (логируется явно).
type Panel struct {
	BaseURL       string        `yaml:"base_url"`
	APIToken      string        `yaml:"api_token"`
	Timeout       time.Duration `yaml:"timeout" env-default:"10s"`
	WebhookSecret string        `yaml:"webhook_secret"`
}

// Telegram настройки доставки уведомлений.
type Telegram struct {
	BotToken    string `yaml:"bot_token"`
	BotUsername string `yaml:"bot_username"`
}

// Payments настройки входящих колбэков платёжного провайдера.
type Payments struct {
	WebhookSecret string `yaml:"webhook_secret"`
}

// Pricing базовые цены для расчёта стоимости подписки (в копейках).
type Pricing struct {
	BasePerMonthKopeks   int64 `yaml:"base_per_month_kopeks" env-default:"19900"`
	TrafficPerGBKopeks   int64 `yaml:"traffic_per_gb_kopeks" env-default:"100"`
	DevicePerMonthKopeks int64 `yaml:"device_per_month_kopeks" env-default:"5000"`
}

// Trial параметры триальной подписки по умолчанию.
type Trial struct {
	DurationDays      int   `yaml:"duration_days" env-default:"3"`
	TrafficLimitBytes int64 `yaml:"traffic_limit_bytes" env-default:"10737418240"`
	DeviceLimit       int   `yaml:"device_limit" env-default:"1"`
}

// MustLoad загружает конфиг из файла, указанного в CONFIG_PATH.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
