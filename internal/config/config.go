package config

import (
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Env             string `mapstructure:"env"`
	Port            int    `mapstructure:"port"`
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type TransportConfig struct {
	// Driver selects the pub/sub backend: "redis", "nats" or "memory".
	Driver  string `mapstructure:"driver"`
	NATSURL string `mapstructure:"nats_url"`
}

type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	ArchiveTopic string   `mapstructure:"archive_topic"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type AWSConfig struct {
	Region     string `mapstructure:"region"`
	Bucket     string `mapstructure:"bucket"`
	PresignTTL int    `mapstructure:"presign_ttl_seconds"`
}

type WSConfig struct {
	PingIntervalSeconds  int   `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int   `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64 `mapstructure:"max_message_size_bytes"`
}

type TypingConfig struct {
	// Minimum interval between accepted typing pings per user.
	ThrottleMillis int `mapstructure:"throttle_millis"`
}

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Mongo     MongoConfig     `mapstructure:"mongodb"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Transport TransportConfig `mapstructure:"transport"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	AWS       AWSConfig       `mapstructure:"aws"`
	WS        WSConfig        `mapstructure:"ws"`
	Typing    TypingConfig    `mapstructure:"typing"`

	// derived
	ShutdownTimeout time.Duration
	PingInterval    time.Duration
	WriteDeadline   time.Duration
	TypingThrottle  time.Duration
	PresignTTL      time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.App.Port == 0 {
		cfg.App.Port = 8080
	}
	if cfg.App.ShutdownSeconds == 0 {
		cfg.App.ShutdownSeconds = 15
	}
	if cfg.Transport.Driver == "" {
		cfg.Transport.Driver = "redis"
	}
	if cfg.WS.PingIntervalSeconds == 0 {
		cfg.WS.PingIntervalSeconds = 25
	}
	if cfg.WS.WriteDeadlineSeconds == 0 {
		cfg.WS.WriteDeadlineSeconds = 10
	}
	if cfg.WS.MaxMessageSizeBytes == 0 {
		cfg.WS.MaxMessageSizeBytes = 65536
	}
	if cfg.Typing.ThrottleMillis == 0 {
		cfg.Typing.ThrottleMillis = 2000
	}
	if cfg.AWS.PresignTTL == 0 {
		cfg.AWS.PresignTTL = 300
	}

	cfg.ShutdownTimeout = time.Duration(cfg.App.ShutdownSeconds) * time.Second
	cfg.PingInterval = time.Duration(cfg.WS.PingIntervalSeconds) * time.Second
	cfg.WriteDeadline = time.Duration(cfg.WS.WriteDeadlineSeconds) * time.Second
	cfg.TypingThrottle = time.Duration(cfg.Typing.ThrottleMillis) * time.Millisecond
	cfg.PresignTTL = time.Duration(cfg.AWS.PresignTTL) * time.Second
	return &cfg, nil
}
