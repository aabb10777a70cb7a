package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type ServerConfig struct {
	Port int `yaml:"port"`
	// AllowedOrigins are the frontends allowed to make credentialed requests.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	DSN string `yaml:"url"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type SessionConfig struct {
	CookieName string        `yaml:"cookie_name"`
	Secret     string        `yaml:"secret"`
	TTL        time.Duration `yaml:"ttl"`
	Secure     bool          `yaml:"secure"`
}

type VerificationConfig struct {
	// Backend is "memory" (default) or "redis".
	Backend           string        `yaml:"backend"`
	TTL               time.Duration `yaml:"ttl"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	SignupMaxAttempts int           `yaml:"signup_max_attempts"`
	LoginMaxAttempts  int           `yaml:"login_max_attempts"`
}

type SignupConfig struct {
	MaxAccountsPerIP   int      `yaml:"max_accounts_per_ip"`
	TrackingWindowDays int      `yaml:"tracking_window_days"`
	ReferralBonus      int      `yaml:"referral_bonus"`
	AllowedDomains     []string `yaml:"allowed_domains"`
}

type CredentialsConfig struct {
	FlapWindow  time.Duration `yaml:"flap_window"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

type EmailConfig struct {
	FromName string `yaml:"from_name"`
}

type HerokuConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type TelegramConfig struct {
	BotToken    string `yaml:"bot_token"`
	AdminChatID int64  `yaml:"admin_chat_id"`
}

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Session      SessionConfig      `yaml:"session"`
	Verification VerificationConfig `yaml:"verification"`
	Signup       SignupConfig       `yaml:"signup"`
	Credentials  CredentialsConfig  `yaml:"credentials"`
	Email        EmailConfig        `yaml:"email"`
	Heroku       HerokuConfig       `yaml:"heroku"`
	Telegram     TelegramConfig     `yaml:"telegram"`
}

// LoadConfig reads the file named by CONFIG_PATH (or DefaultPath) and panics
// on any error. Only meant for process startup.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		panic("Failed to read .env: " + err.Error())
	}
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	cfg, err := Load(path)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	return cfg
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = parseOrigins(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		c.Session.Secret = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_ADMIN_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.AdminChatID = id
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "talkdrove-session"
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = 5 * 24 * time.Hour
	}

	v := &c.Verification
	if v.Backend == "" {
		v.Backend = "memory"
	}
	if v.TTL <= 0 {
		v.TTL = 30 * time.Minute
	}
	if v.SweepInterval <= 0 {
		v.SweepInterval = 10 * time.Minute
	}
	if v.SignupMaxAttempts <= 0 {
		v.SignupMaxAttempts = 5
	}
	if v.LoginMaxAttempts <= 0 {
		v.LoginMaxAttempts = 3
	}

	s := &c.Signup
	if s.MaxAccountsPerIP <= 0 {
		s.MaxAccountsPerIP = 1
	}
	if s.TrackingWindowDays <= 0 {
		s.TrackingWindowDays = 30
	}
	if s.ReferralBonus == 0 {
		s.ReferralBonus = 10
	}
	if len(s.AllowedDomains) == 0 {
		s.AllowedDomains = []string{"gmail.com", "talkdrove.com"}
	}
	for i, d := range s.AllowedDomains {
		s.AllowedDomains[i] = strings.ToLower(strings.TrimSpace(d))
	}

	if c.Credentials.FlapWindow <= 0 {
		c.Credentials.FlapWindow = 5 * time.Minute
	}
	if c.Credentials.CallTimeout <= 0 {
		c.Credentials.CallTimeout = 10 * time.Second
	}
	if c.Email.FromName == "" {
		c.Email.FromName = "TalkDrove Verification"
	}
	if c.Heroku.BaseURL == "" {
		c.Heroku.BaseURL = "https://api.heroku.com"
	}
	if c.Heroku.Timeout <= 0 {
		c.Heroku.Timeout = 10 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("session.secret is required")
	}
	switch c.Verification.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis verification backend")
		}
	default:
		return fmt.Errorf("unknown verification.backend %q", c.Verification.Backend)
	}
	return nil
}

// TrackingWindow is the rolling window used for per-IP signup counting.
func (c *Config) TrackingWindow() time.Duration {
	return time.Duration(c.Signup.TrackingWindowDays) * 24 * time.Hour
}

func parseOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
