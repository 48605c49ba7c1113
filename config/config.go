// Package config holds the application configuration: YAML file, environment
// overrides, validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"watchtower/alert"
	"watchtower/errors"
	"watchtower/permission"
	"watchtower/roles"
)

// Config holds the full application configuration.
type Config struct {
	// EscalationInterval is the scheduler tick period and the per-alert
	// escalation interval.
	EscalationInterval time.Duration `yaml:"escalation_interval"`
	// CallTimeout bounds one adapter call; defaults to the interval.
	CallTimeout time.Duration `yaml:"call_timeout"`
	ListenAddr  string        `yaml:"listen_addr"`
	LogLevel    string        `yaml:"log_level"`

	Storage    StorageConfig    `yaml:"storage"`
	Adapters   AdaptersConfig   `yaml:"adapters"`
	Permission PermissionConfig `yaml:"permission"`
	Roles      []RoleConfig     `yaml:"roles"`
}

// StorageConfig holds the durable store options.
type StorageConfig struct {
	DataDir    string `yaml:"data_dir" env:"WATCHTOWER_DATA_DIR"`
	Codec      string `yaml:"codec" env:"WATCHTOWER_CODEC"`
	SyncWrites bool   `yaml:"sync_writes" env:"WATCHTOWER_SYNC_WRITES"`
}

// AdaptersConfig enables and configures the notification adapters.
type AdaptersConfig struct {
	Chat   *ChatConfig   `yaml:"chat,omitempty"`
	Paging *PagingConfig `yaml:"paging,omitempty"`
	Mail   *MailConfig   `yaml:"mail,omitempty"`
}

// ChatConfig holds the chat adapter options.
type ChatConfig struct {
	Token string   `yaml:"token" env:"WATCHTOWER_CHAT_TOKEN"`
	Rooms []string `yaml:"rooms"`
}

// PagingLevelConfig is one escalation target on the paging service.
type PagingLevelConfig struct {
	IntegrationKey string `yaml:"integration_key"`
	Severity       string `yaml:"severity"`
}

// PagingConfig holds the paging adapter options.
type PagingConfig struct {
	EnqueueURL       string              `yaml:"enqueue_url"`
	LogEntriesURL    string              `yaml:"log_entries_url"`
	APIKey           string              `yaml:"api_key" env:"WATCHTOWER_PAGING_API_KEY"`
	OnlyOnEscalation bool                `yaml:"only_on_escalation"`
	PollInterval     time.Duration       `yaml:"poll_interval"`
	Source           string              `yaml:"source"`
	Levels           []PagingLevelConfig `yaml:"levels"`
}

// MailConfig holds the mail adapter options.
type MailConfig struct {
	GatewayURL   string        `yaml:"gateway_url"`
	Token        string        `yaml:"token" env:"WATCHTOWER_MAIL_TOKEN"`
	From         string        `yaml:"from"`
	Addresses    []string      `yaml:"addresses"`
	PollInterval time.Duration `yaml:"poll_interval"`
	LookbackDays int           `yaml:"lookback_days"`
}

// PermissionConfig selects the acknowledgement authorisation mode.
type PermissionConfig struct {
	// Mode is one of "users", "min_role", "roles", "escalation_level".
	Mode  string   `yaml:"mode"`
	Users []string `yaml:"users,omitempty"`
	Role  string   `yaml:"role,omitempty"`
	Roles []string `yaml:"roles,omitempty"`
	Level uint     `yaml:"level,omitempty"`
}

// RoleConfig is one entry of the ordered role table, lowest rank first.
type RoleConfig struct {
	Role  string   `yaml:"role"`
	Users []string `yaml:"users"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		EscalationInterval: 5 * time.Minute,
		ListenAddr:         ":8080",
		LogLevel:           "info",
		Storage: StorageConfig{
			DataDir:    "./data",
			Codec:      "snappy",
			SyncWrites: true,
		},
		Permission: PermissionConfig{
			Mode: "users",
		},
	}
}

// LoadFromFile merges a YAML file into the configuration.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv applies environment variable overrides.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("WATCHTOWER_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("WATCHTOWER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("WATCHTOWER_ESCALATION_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid WATCHTOWER_ESCALATION_INTERVAL: %w", err)
		}
		c.EscalationInterval = d
	}
	if v := os.Getenv("WATCHTOWER_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("WATCHTOWER_CODEC"); v != "" {
		c.Storage.Codec = v
	}
	if v := os.Getenv("WATCHTOWER_SYNC_WRITES"); v != "" {
		c.Storage.SyncWrites = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("WATCHTOWER_CHAT_TOKEN"); v != "" && c.Adapters.Chat != nil {
		c.Adapters.Chat.Token = v
	}
	if v := os.Getenv("WATCHTOWER_PAGING_API_KEY"); v != "" && c.Adapters.Paging != nil {
		c.Adapters.Paging.APIKey = v
	}
	if v := os.Getenv("WATCHTOWER_MAIL_TOKEN"); v != "" && c.Adapters.Mail != nil {
		c.Adapters.Mail.Token = v
	}
	return nil
}

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	if c.EscalationInterval <= 0 {
		return errors.Errorf(errors.KindConfigInvalid, "config.Validate", "escalation interval must be positive")
	}
	if c.CallTimeout < 0 {
		return errors.Errorf(errors.KindConfigInvalid, "config.Validate", "call timeout cannot be negative")
	}
	if c.ListenAddr == "" {
		return errors.Errorf(errors.KindConfigInvalid, "config.Validate", "listen address cannot be empty")
	}
	if c.Storage.DataDir == "" {
		return errors.Errorf(errors.KindConfigInvalid, "config.Validate", "data directory cannot be empty")
	}
	if c.Adapters.Chat == nil && c.Adapters.Paging == nil && c.Adapters.Mail == nil {
		return errors.Errorf(errors.KindConfigInvalid, "config.Validate", "at least one adapter must be configured")
	}
	if c.Adapters.Chat != nil {
		if c.Adapters.Chat.Token == "" {
			return errors.Errorf(errors.KindConfigInvalid, "config.Validate", "chat adapter requires a token")
		}
		if len(c.Adapters.Chat.Rooms) == 0 {
			return errors.Errorf(errors.KindConfigInvalid, "config.Validate", "chat adapter requires at least one room")
		}
	}
	if c.Adapters.Paging != nil {
		if c.Adapters.Paging.EnqueueURL == "" || c.Adapters.Paging.LogEntriesURL == "" {
			return errors.Errorf(errors.KindConfigInvalid, "config.Validate", "paging adapter requires enqueue and log-entries URLs")
		}
		if len(c.Adapters.Paging.Levels) == 0 {
			return errors.Errorf(errors.KindConfigInvalid, "config.Validate", "paging adapter requires at least one level")
		}
	}
	if c.Adapters.Mail != nil {
		if c.Adapters.Mail.GatewayURL == "" {
			return errors.Errorf(errors.KindConfigInvalid, "config.Validate", "mail adapter requires a gateway URL")
		}
		if len(c.Adapters.Mail.Addresses) == 0 {
			return errors.Errorf(errors.KindConfigInvalid, "config.Validate", "mail adapter requires at least one address")
		}
	}

	switch c.Permission.Mode {
	case "users":
		if len(c.Permission.Users) == 0 {
			return errors.Errorf(errors.KindConfigInvalid, "config.Validate", "permission mode users requires a user list")
		}
	case "min_role":
		if c.Permission.Role == "" {
			return errors.Errorf(errors.KindConfigInvalid, "config.Validate", "permission mode min_role requires a role")
		}
	case "roles":
		if len(c.Permission.Roles) == 0 {
			return errors.Errorf(errors.KindConfigInvalid, "config.Validate", "permission mode roles requires a role list")
		}
	case "escalation_level":
	default:
		return errors.Errorf(errors.KindConfigInvalid, "config.Validate", "unknown permission mode %q", c.Permission.Mode)
	}
	return nil
}

// BuildRoles builds the role index from the ordered role table.
func (c *Config) BuildRoles() (*roles.Index, error) {
	entries := make([]roles.Entry, 0, len(c.Roles))
	for _, rc := range c.Roles {
		users := make([]alert.User, 0, len(rc.Users))
		for _, raw := range rc.Users {
			u, err := alert.ParseUser(raw)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", rc.Role, err)
			}
			users = append(users, u)
		}
		entries = append(entries, roles.Entry{Role: roles.Role(rc.Role), Users: users})
	}
	return roles.NewIndex(entries), nil
}

// BuildPolicy builds the permission policy for the configured mode.
func (c *Config) BuildPolicy(index *roles.Index) (*permission.Policy, error) {
	switch c.Permission.Mode {
	case "users":
		users := make([]alert.User, 0, len(c.Permission.Users))
		for _, raw := range c.Permission.Users {
			u, err := alert.ParseUser(raw)
			if err != nil {
				return nil, fmt.Errorf("permission users: %w", err)
			}
			users = append(users, u)
		}
		return permission.Users(users), nil
	case "min_role":
		return permission.MinRole(roles.Role(c.Permission.Role), index), nil
	case "roles":
		list := make([]roles.Role, 0, len(c.Permission.Roles))
		for _, r := range c.Permission.Roles {
			list = append(list, roles.Role(r))
		}
		return permission.Roles(list, index), nil
	case "escalation_level":
		return permission.EscalationLevel(c.Permission.Level), nil
	default:
		return nil, fmt.Errorf("unknown permission mode %q", c.Permission.Mode)
	}
}
