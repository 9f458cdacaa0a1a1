package config

import (
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	AdminToken string `mapstructure:"admin_token"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	PaymentResult string `mapstructure:"payment_result"`
}

// GatewayConfig describes the external payment provider. Secret is the
// shared HMAC key for webhook signatures; it never appears in responses.
type GatewayConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	APIKey               string `mapstructure:"api_key"`
	SiteID               string `mapstructure:"site_id"`
	Secret               string `mapstructure:"secret"`
	NotifyURL            string `mapstructure:"notify_url"`
	ReturnURL            string `mapstructure:"return_url"`
	VerifyTimeoutSeconds int    `mapstructure:"verify_timeout_seconds"`
}

type BusinessConfig struct {
	MinAmount               int64 `mapstructure:"min_amount"`
	PaymentTimeoutMinutes   int   `mapstructure:"payment_timeout_minutes"`
	ProcessingSweepAfterMin int   `mapstructure:"processing_sweep_after_minutes"`
	MaxRetryCount           int   `mapstructure:"max_retry_count"`
	ReconcileLockSeconds    int   `mapstructure:"reconcile_lock_seconds"`
}

// LoadConfig reads the YAML config file or dies.
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("gateway.verify_timeout_seconds", 10)
	viper.SetDefault("business.min_amount", 100)
	viper.SetDefault("business.payment_timeout_minutes", 30)
	viper.SetDefault("business.processing_sweep_after_minutes", 5)
	viper.SetDefault("business.max_retry_count", 5)
	viper.SetDefault("business.reconcile_lock_seconds", 30)

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}

	return config
}
