package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dalnet/rbnc/internal/model"
)

// Defaults for every key that may be left out of the file
const (
	DefaultDatabase    = "./data/rbnc.db"
	DefaultDataDir     = "./data"
	DefaultQuitMessage = "rbnc shutting down"
	DefaultUserName    = "default"
	DefaultNick        = "rbnc"
)

// Config holds all bouncer configuration
type Config struct {
	Database    string         `yaml:"database"`
	DataDir     string         `yaml:"data_dir"`
	QuitMessage string         `yaml:"quit_message"`
	User        UserConfig     `yaml:"user"`
	Servers     []ServerConfig `yaml:"servers"`

	Debug       bool `yaml:"debug"`
	LogIRC      bool `yaml:"log_irc"`
	LogDatabase bool `yaml:"log_database"`
	// LogInsecure allows logs carrying user data such as nicks and hosts
	LogInsecure bool `yaml:"log_insecure"`
	Console     bool `yaml:"console"`
}

// UserConfig is the identity of the user created on first start
type UserConfig struct {
	Name     string `yaml:"name"`
	Nick     string `yaml:"nick"`
	Username string `yaml:"username"`
	Realname string `yaml:"realname"`
}

// ServerConfig seeds a server when the database has none
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     *int   `yaml:"port"`
	Secure   bool   `yaml:"secure"`
	Nick     string `yaml:"nick"`
	Username string `yaml:"username"`
	Realname string `yaml:"realname"`
}

// Default returns the configuration used for keys the file leaves out
func Default() *Config {
	return &Config{
		Database:    DefaultDatabase,
		DataDir:     DefaultDataDir,
		QuitMessage: DefaultQuitMessage,
		User: UserConfig{
			Name: DefaultUserName,
			Nick: DefaultNick,
		},
	}
}

// Load reads and parses a YAML configuration file on top of Default
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database must not be empty")
	}
	if c.User.Name == "" || c.User.Nick == "" {
		return fmt.Errorf("user name and nick must not be empty")
	}
	for i, s := range c.Servers {
		if s.Host == "" {
			return fmt.Errorf("servers[%d]: host is required", i)
		}
		if s.Port != nil && (*s.Port < 1 || *s.Port > 65535) {
			return fmt.Errorf("servers[%d]: port %d out of range 1-65535", i, *s.Port)
		}
	}
	return nil
}

// QueryLogging reports whether every database call is logged. The queries
// carry user data, so log_database needs log_insecure as well.
func (c *Config) QueryLogging() bool {
	return c.LogDatabase && c.LogInsecure
}

// Identity returns the configured user as a model.User, filling username
// and realname from the nick when unset
func (c *Config) Identity() model.User {
	u := model.User{
		Name:     c.User.Name,
		Nick:     c.User.Nick,
		Username: c.User.Username,
		Realname: c.User.Realname,
	}
	if u.Username == "" {
		u.Username = u.Nick
	}
	if u.Realname == "" {
		u.Realname = u.Nick
	}
	return u
}

// Params converts a seed entry into server parameters owned by user. Fields
// the entry leaves out come from user, the port from model.DefaultPort.
func (s ServerConfig) Params(user model.User) model.ServerParams {
	p := model.ServerParams{
		Host:     s.Host,
		Port:     model.DefaultPort,
		Secure:   s.Secure,
		Nick:     s.Nick,
		Username: s.Username,
		Realname: s.Realname,
		UserID:   user.ID,
	}
	if s.Port != nil {
		p.Port = *s.Port
	}
	if p.Nick == "" {
		p.Nick = user.Nick
	}
	if p.Username == "" {
		p.Username = user.Username
	}
	if p.Realname == "" {
		p.Realname = user.Realname
	}
	return p
}
