package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Logging  LoggingConfig
	Queue    QueueConfig
	Kafka    KafkaConfig
	Dispatch DispatchConfig
}

type ServerConfig struct {
	HTTPPort    int           `mapstructure:"http_port"`
	MetricsPort int           `mapstructure:"metrics_port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Password    string   `mapstructure:"password"`
	DB          int      `mapstructure:"db"`
	PoolSize    int      `mapstructure:"pool_size"`
	ClusterMode bool     `mapstructure:"cluster_mode"`
}

type AuthConfig struct {
	// CronSecret authenticates the tick and cron endpoints.
	CronSecret string `mapstructure:"cron_secret"`
	// JWTSecret signs workspace service tokens for producer endpoints.
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type QueueConfig struct {
	// BatchSize caps the number of items claimed per tick so a tick stays
	// short relative to the scheduler interval.
	BatchSize int `mapstructure:"batch_size"`
	// LockTimeout is the age after which a lock left by a crashed consumer
	// becomes eligible for re-claim.
	LockTimeout  time.Duration `mapstructure:"lock_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type KafkaConfig struct {
	Brokers   []string `mapstructure:"brokers"`
	ClientID  string   `mapstructure:"client_id"`
	StepTopic string   `mapstructure:"step_topic"`
	DLQTopic  string   `mapstructure:"dlq_topic"`
}

type DispatchConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/stageflow/")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("STAGEFLOW")
	viper.AutomaticEnv()

	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.metrics_port", 9091)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("redis.pool_size", 100)
	viper.SetDefault("auth.token_ttl", "24h")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("queue.batch_size", 25)
	viper.SetDefault("queue.lock_timeout", "5m")
	viper.SetDefault("queue.poll_interval", "10s")
	viper.SetDefault("kafka.client_id", "stageflow-step-relay")
	viper.SetDefault("kafka.step_topic", "stageflow.run.steps")
	viper.SetDefault("kafka.dlq_topic", "stageflow.run.steps.dlq")
	viper.SetDefault("dispatch.poll_interval", "5s")
	viper.SetDefault("dispatch.batch_size", 100)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
