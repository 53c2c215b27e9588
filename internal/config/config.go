package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	MediaTimeout time.Duration `mapstructure:"media_timeout"`

	DBPath string `mapstructure:"db_path"`

	RoomCapacity   int `mapstructure:"room_capacity"`
	MaxServerRooms int `mapstructure:"max_server_rooms"`

	AnnouncedIP string   `mapstructure:"announced_ip"`
	RTCMinPort  uint16   `mapstructure:"rtc_min_port"`
	RTCMaxPort  uint16   `mapstructure:"rtc_max_port"`
	ICEServers  []string `mapstructure:"ice_servers"`

	RoutingServerURL string `mapstructure:"routing_server_url"`

	ChatRateLimit    int           `mapstructure:"chat_rate_limit"`
	ChatRateInterval time.Duration `mapstructure:"chat_rate_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("media_timeout", "15s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("db_path", "./data/studyroom.db")
	v.SetDefault("room_capacity", 4)
	v.SetDefault("max_server_rooms", 5)
	v.SetDefault("announced_ip", "")
	v.SetDefault("rtc_min_port", 40000)
	v.SetDefault("rtc_max_port", 49999)
	v.SetDefault("ice_servers", []string{})
	v.SetDefault("routing_server_url", "")
	v.SetDefault("chat_rate_limit", 5)
	v.SetDefault("chat_rate_interval", "3s")
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of the defaults.
// STUDYROOM_* environment variables win over both.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("STUDYROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.RoomCapacity < 1 {
		return fmt.Errorf("room_capacity must be positive, got %d", c.RoomCapacity)
	}
	if c.RTCMinPort > c.RTCMaxPort {
		return fmt.Errorf("rtc_min_port %d above rtc_max_port %d", c.RTCMinPort, c.RTCMaxPort)
	}
	if c.PingPeriod <= 0 {
		return fmt.Errorf("ping_period must be positive, got %s", c.PingPeriod)
	}
	if c.MediaTimeout <= 0 {
		return fmt.Errorf("media_timeout must be positive, got %s", c.MediaTimeout)
	}
	if c.ChatRateLimit < 1 {
		return fmt.Errorf("chat_rate_limit must be positive, got %d", c.ChatRateLimit)
	}
	return nil
}
