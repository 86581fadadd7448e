package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config carries the helper-process settings. Mode "test" switches the
// bootstrap to a stub local identity instead of generating real keys.
type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	SignalingPort int           `mapstructure:"signaling_port"`
	Secret        string        `mapstructure:"secret"`
	ReapInterval  time.Duration `mapstructure:"reap_interval"`
	CreateWait    time.Duration `mapstructure:"create_wait"`
	StunURLs      []string      `mapstructure:"stun_urls"`
}

// TestMode reports whether local-identity creation should be short-circuited.
func (c *Config) TestMode() bool {
	return c.Mode == "test"
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
	v.SetDefault("port", 3131)
	v.SetDefault("signaling_port", 3000)
	v.SetDefault("reap_interval", "1h")
	v.SetDefault("create_wait", "30s")
	v.SetDefault("stun_urls", []string{"stun:stun.l.google.com:19302"})

	// RUN_MODE=test wins over the file so CI can force the stub identity.
	if os.Getenv("RUN_MODE") == "test" {
		v.Set("mode", "test")
	}

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
