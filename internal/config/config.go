package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/spf13/pflag"
)

type Config struct {
	Env         string          `yaml:"env" env:"ENV" env-default:"local"`
	FrontendURL string          `yaml:"frontend_url" env:"FRONTEND_URL" env-default:""`
	HTTP        HTTPConfig      `yaml:"http"`
	Database    DatabaseConfig  `yaml:"database"`
	Redis       RedisConfig     `yaml:"redis"`
	Presence    PresenceConfig  `yaml:"presence"`
	Signaling   SignalingConfig `yaml:"signaling"`
	WebRTC      WebRTCConfig    `yaml:"webrtc"`
	Email       EmailConfig     `yaml:"email"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
	ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"5s"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-separator:","`
}

// DatabaseConfig selects the session store. Driver "memory" keeps everything
// in process and ignores DSN.
type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"DATABASE_DRIVER" env-default:""`
	DSN    string `yaml:"dsn" env:"DATABASE_DSN" env-default:""`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type PresenceConfig struct {
	TTL time.Duration `yaml:"ttl" env:"PRESENCE_TTL" env-default:"2h"`
}

type SignalingConfig struct {
	PingPeriod time.Duration `yaml:"ping_period" env-default:"0s"`
	PongWait   time.Duration `yaml:"pong_wait" env-default:"0s"`
	WriteWait  time.Duration `yaml:"write_wait" env-default:"0s"`
	ReadLimit  int64         `yaml:"read_limit" env-default:"0"`
	SendBuffer int           `yaml:"send_buffer" env-default:"0"`
}

type WebRTCConfig struct {
	STUNServers []string `yaml:"stun_servers"`
	TURNServers []string `yaml:"turn_servers"`
	TURNUser    string   `yaml:"turn_username" env:"TURN_USERNAME" env-default:""`
	TURNPass    string   `yaml:"turn_password" env:"TURN_PASSWORD" env-default:""`
}

type EmailConfig struct {
	Backend     string        `yaml:"backend" env:"EMAIL_BACKEND" env-default:"console"`
	Host        string        `yaml:"host" env:"EMAIL_HOST" env-default:"localhost"`
	Port        int           `yaml:"port" env:"EMAIL_PORT" env-default:"587"`
	Username    string        `yaml:"username" env:"EMAIL_HOST_USER" env-default:""`
	Password    string        `yaml:"password" env:"EMAIL_HOST_PASSWORD" env-default:""`
	From        string        `yaml:"from" env:"DEFAULT_FROM_EMAIL" env-default:""`
	UseTLS      bool          `yaml:"use_tls" env:"EMAIL_USE_TLS" env-default:"false"`
	SendTimeout time.Duration `yaml:"send_timeout" env-default:"15s"`
	Workers     int           `yaml:"workers" env-default:"0"`
	QueueSize   int           `yaml:"queue_size" env-default:"0"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	cfg, err := LoadPath(configPath)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func LoadPath(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, &PathError{Path: configPath}
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	return &cfg, nil
}

type PathError struct {
	Path string
}

func (e *PathError) Error() string {
	return "config file does not exist: " + e.Path
}

func fetchConfigPath() string {
	var res string

	pflag.StringVar(&res, "config", "", "path to config file")
	pflag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	if c.FrontendURL == "" {
		c.FrontendURL = "http://localhost:5173"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Presence.TTL <= 0 {
		c.Presence.TTL = 2 * time.Hour
	}
	if c.Signaling.PongWait <= 0 {
		c.Signaling.PongWait = 60 * time.Second
	}
	if c.Signaling.PingPeriod <= 0 || c.Signaling.PingPeriod >= c.Signaling.PongWait {
		c.Signaling.PingPeriod = c.Signaling.PongWait * 9 / 10
	}
	if c.Signaling.WriteWait <= 0 {
		c.Signaling.WriteWait = 5 * time.Second
	}
	if c.Signaling.ReadLimit <= 0 {
		c.Signaling.ReadLimit = 64 * 1024
	}
	if c.Signaling.SendBuffer <= 0 {
		c.Signaling.SendBuffer = 32
	}
	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
	if c.Email.From == "" {
		c.Email.From = "noreply@theracare.com"
	}
	if c.Email.SendTimeout <= 0 {
		c.Email.SendTimeout = 15 * time.Second
	}
	if c.Email.Workers <= 0 {
		c.Email.Workers = 4
	}
	if c.Email.QueueSize <= 0 {
		c.Email.QueueSize = 128
	}
}
