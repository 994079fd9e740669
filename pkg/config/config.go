package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	HTTP      HTTPConfig      `toml:"http"`
	RCON      RCONConfig      `toml:"rcon"`
	Steam     SteamConfig     `toml:"steam"`
	Storage   StorageConfig   `toml:"storage"`
	Identity  IdentityConfig  `toml:"identity"`
	Collector CollectorConfig `toml:"collector"`
	VoteMap   VoteMapConfig   `toml:"vote_map"`
	RealVip   RealVipConfig   `toml:"real_vip"`
	Camera    CameraConfig    `toml:"camera"`
	AutoBan   AutoBanConfig   `toml:"auto_ban"`
	Notify    NotifyConfig    `toml:"notify"`
	Scripts   ScriptsConfig   `toml:"scripts"`
}

type ServerConfig struct {
	Name      string `toml:"name"`
	ShortName string `toml:"short_name"`
	Number    string `toml:"number"`

	// logging configuration
	LogToFile bool `toml:"log_to_file"`
}

type HTTPConfig struct {
	Listen string `toml:"listen"`
}

type RCONConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
	Timeout int    `toml:"timeout"`
}

type SteamConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Timeout int    `toml:"timeout"`
}

type StorageConfig struct {
	Path string `toml:"path"`
}

type IdentityConfig struct {
	Backend string      `toml:"backend"`
	TTL     int         `toml:"ttl"`
	Redis   RedisConfig `toml:"redis"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

type CollectorConfig struct {
	Source    string          `toml:"source"`
	Path      string          `toml:"path"`
	Kafka     KafkaConfig     `toml:"kafka"`
	WebSocket WebSocketConfig `toml:"websocket"`
}

type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
	GroupID string   `toml:"group_id"`
}

type WebSocketConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

type VoteMapConfig struct {
	Enabled      bool     `toml:"enabled"`
	ThankYouText string   `toml:"thank_you_text"`
	Choices      []string `toml:"choices"`
	MaxRetries   int      `toml:"max_retries"`
}

type RealVipConfig struct {
	Enabled      bool `toml:"enabled"`
	DesiredTotal int  `toml:"desired_total"`
	MinFloor     int  `toml:"min_floor"`
}

type CameraConfig struct {
	Broadcast bool `toml:"broadcast"`
	Welcome   bool `toml:"welcome"`
}

// AutoBanConfig keeps the raw strings; the ban policy owns their parsing so
// malformed values disable the feature instead of failing startup.
type AutoBanConfig struct {
	MaxDaysSinceBan     string `toml:"max_days_since_ban"`
	Reason              string `toml:"reason"`
	MaxGameBanThreshold string `toml:"max_game_ban_threshold"`
}

type NotifyConfig struct {
	AuditWebhook      string   `toml:"audit_webhook"`
	CameraWebhooks    []string `toml:"camera_webhooks"`
	SubscriptionsFile string   `toml:"subscriptions_file"`
	RatePerSecond     float64  `toml:"rate_per_second"`
	Timeout           int      `toml:"timeout"`
}

type ScriptsConfig struct {
	HooksDir string `toml:"hooks_dir"`
}

const (
	SourceFile      = "file"
	SourceKafka     = "kafka"
	SourceWebSocket = "websocket"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

const defaultVoteRetries = 2

func LoadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	md, err := toml.Decode(string(data), &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	config.applyDefaults()

	// zero is a valid retry count, so only an absent key gets the default
	if !md.IsDefined("vote_map", "max_retries") {
		config.VoteMap.MaxRetries = defaultVoteRetries
	}

	return &config, nil
}

// Default returns a configuration populated only with default values.
func Default() *Config {
	config := &Config{}
	config.applyDefaults()
	config.VoteMap.MaxRetries = defaultVoteRetries
	return config
}

func (c *Config) applyDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "warden"
	}
	if c.Server.Number == "" {
		c.Server.Number = "1"
	}

	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":9100"
	}

	if c.RCON.Timeout == 0 {
		c.RCON.Timeout = 10
	}

	if c.Steam.BaseURL == "" {
		c.Steam.BaseURL = "https://api.steampowered.com"
	}
	if c.Steam.Timeout == 0 {
		c.Steam.Timeout = 10
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "data/warden.db"
	}

	// identity defaults
	if c.Identity.Backend == "" {
		c.Identity.Backend = BackendMemory
	}
	if c.Identity.TTL == 0 {
		c.Identity.TTL = 1800
	}
	if c.Identity.Redis.Addr == "" {
		c.Identity.Redis.Addr = "localhost:6379"
	}
	if c.Identity.Redis.Prefix == "" {
		c.Identity.Redis.Prefix = "warden:identity:"
	}

	// collector defaults
	if c.Collector.Source == "" {
		c.Collector.Source = SourceFile
	}
	if c.Collector.Path == "" {
		c.Collector.Path = "-"
	}
	if c.Collector.Kafka.GroupID == "" {
		c.Collector.Kafka.GroupID = "warden"
	}

	// vote map defaults
	if c.VoteMap.ThankYouText == "" {
		c.VoteMap.ThankYouText = "Thanks {player_name}, vote registered for {map_name}"
	}

	if c.AutoBan.Reason == "" {
		c.AutoBan.Reason = "VAC ban history ({DAYS_SINCE_LAST_BAN} days ago)"
	}

	// notify defaults
	if c.Notify.RatePerSecond == 0 {
		c.Notify.RatePerSecond = 5
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 5
	}
}

func (c *Config) Validate() error {
	if c.RCON.BaseURL == "" {
		return fmt.Errorf("rcon base_url cannot be empty")
	}
	if _, err := url.ParseRequestURI(c.RCON.BaseURL); err != nil {
		return fmt.Errorf("invalid rcon base_url: %w", err)
	}

	if c.RCON.Timeout < 0 || c.Steam.Timeout < 0 || c.Notify.Timeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	if c.Identity.TTL < 0 {
		return fmt.Errorf("identity ttl cannot be negative")
	}

	switch c.Identity.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown identity backend: %s", c.Identity.Backend)
	}

	switch c.Collector.Source {
	case SourceFile:
	case SourceKafka:
		if len(c.Collector.Kafka.Brokers) == 0 || c.Collector.Kafka.Topic == "" {
			return fmt.Errorf("kafka collector requires brokers and topic")
		}
	case SourceWebSocket:
		if c.Collector.WebSocket.URL == "" {
			return fmt.Errorf("websocket collector requires url")
		}
	default:
		return fmt.Errorf("unknown collector source: %s", c.Collector.Source)
	}

	if c.VoteMap.MaxRetries < 0 {
		return fmt.Errorf("vote_map max_retries cannot be negative")
	}
	if c.VoteMap.Enabled && len(c.VoteMap.Choices) == 0 {
		return fmt.Errorf("vote_map requires at least one choice when enabled")
	}

	if c.RealVip.DesiredTotal < 0 || c.RealVip.MinFloor < 0 {
		return fmt.Errorf("real_vip slot counts cannot be negative")
	}

	if _, err := strconv.Atoi(strings.TrimSpace(c.Server.Number)); err != nil {
		return fmt.Errorf("server number must be numeric: %s", c.Server.Number)
	}

	return nil
}

func (c *Config) RCONTimeout() time.Duration {
	return time.Duration(c.RCON.Timeout) * time.Second
}

func (c *Config) SteamTimeout() time.Duration {
	return time.Duration(c.Steam.Timeout) * time.Second
}

func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.Timeout) * time.Second
}

func (c *Config) IdentityTTL() time.Duration {
	return time.Duration(c.Identity.TTL) * time.Second
}

// Footer is the text shown under every notification embed.
func (c *Config) Footer() string {
	if c.Server.ShortName != "" {
		return c.Server.ShortName
	}
	return c.Server.Name
}
