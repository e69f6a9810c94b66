package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	Secret      string        `mapstructure:"secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	StunServers []string      `mapstructure:"stun_servers"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	SendBuffer  int           `mapstructure:"send_buffer"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	MsgRate     float64       `mapstructure:"msg_rate"`
	MsgBurst    int           `mapstructure:"msg_burst"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("stun_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("read_limit", 32768)
	v.SetDefault("send_buffer", 32)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("msg_rate", 25.0)
	v.SetDefault("msg_burst", 50)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Secret == "" {
		cfg.Secret = os.Getenv("HUDDLE_SECRET")
	}
	return &cfg, nil
}
