package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DefaultAPIBaseURL = "http://localhost:8080/api"
	DefaultAuthorID   = 1
)

type ConfigSchema struct {
	Backend struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"backend"`
	API struct {
		BaseURL  string        `yaml:"base_url"`
		Timeout  time.Duration `yaml:"timeout"`
		AuthorID int64         `yaml:"author_id"`
	} `yaml:"api"`
	View struct {
		Locale   string `yaml:"locale"`
		Timezone string `yaml:"timezone"`
	} `yaml:"view"`
	Session struct {
		Cookie  string        `yaml:"cookie"`
		IdleTTL time.Duration `yaml:"idle_ttl"`
		Backend string        `yaml:"backend"` // memory|redis
	} `yaml:"session"`
	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	RabbitMQ struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"rabbitmq"`
	Logs struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text|json|pretty
	} `yaml:"logs"`
}

var AppConfig *ConfigSchema

// LoadConfig reads the YAML file at filePath (an empty path means defaults only),
// applies environment overrides and validates the result into AppConfig.
func LoadConfig(filePath string) error {
	conf := &ConfigSchema{}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("read config %s: %w", filePath, err)
		}
		if err := yaml.Unmarshal(data, conf); err != nil {
			return fmt.Errorf("unmarshal config %s: %w", filePath, err)
		}
	}
	if err := conf.applyEnv(); err != nil {
		return err
	}
	if err := conf.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	AppConfig = conf
	return nil
}

func (c *ConfigSchema) applyEnv() error {
	if v := os.Getenv("BLOG_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		c.RabbitMQ.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logs.Level = v
	}
	// REDIS_ADDR also switches sessions to the redis backend
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Session.Backend = "redis"
		host, port, found := strings.Cut(v, ":")
		c.Redis.Host = host
		if found {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("invalid REDIS_ADDR %q: %w", v, err)
			}
			c.Redis.Port = p
		}
	}
	return nil
}

// Validate fills defaults and rejects values the service cannot run with.
func (c *ConfigSchema) Validate() error {
	if c.Backend.Port == 0 {
		c.Backend.Port = 3000
	}
	if c.Backend.Port < 0 || c.Backend.Port > 65535 {
		return fmt.Errorf("backend.port out of range: %d", c.Backend.Port)
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultAPIBaseURL
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must be an http(s) URL: %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = 10 * time.Second
	}
	if c.API.AuthorID == 0 {
		c.API.AuthorID = DefaultAuthorID
	}
	if c.View.Locale == "" {
		c.View.Locale = "ko-KR"
	}
	if c.View.Timezone == "" {
		c.View.Timezone = "Local"
	}
	if _, err := time.LoadLocation(c.View.Timezone); err != nil {
		return fmt.Errorf("view.timezone: %w", err)
	}
	if c.Session.Cookie == "" {
		c.Session.Cookie = "blogview_session"
	}
	if c.Session.IdleTTL <= 0 {
		c.Session.IdleTTL = 24 * time.Hour
	}
	switch c.Session.Backend {
	case "":
		c.Session.Backend = "memory"
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported session backend: %s", c.Session.Backend)
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "blog_view_events"
	}
	if c.Logs.Level == "" {
		c.Logs.Level = "info"
	}
	if c.Logs.Format == "" {
		c.Logs.Format = "pretty"
	}
	if c.Backend.Host != "" && strings.ContainsAny(c.Backend.Host, " /") {
		return errors.New("backend.host must be a bare host name")
	}
	return nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *ConfigSchema) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Backend.Host, c.Backend.Port)
}

// Location resolves view.timezone; Validate has already checked it.
func (c *ConfigSchema) Location() *time.Location {
	loc, err := time.LoadLocation(c.View.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
