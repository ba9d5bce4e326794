package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tradingtot/internal/types"
)

const (
	LoginDriverBrowser = "browser"
	LoginDriverForm    = "form"
)

type Config struct {
	Environment types.Environment `yaml:"environment"`
	Email       string            `yaml:"email"`
	Password    string            `yaml:"password"`
	Currency    string            `yaml:"currency"`
	Home        string            `yaml:"home"`

	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	AuthAttempts int           `yaml:"auth_attempts"`

	Login struct {
		Driver        string        `yaml:"driver"`
		BinaryPath    string        `yaml:"binary_path"`
		ShowBrowser   bool          `yaml:"show_browser"`
		NoScreenshots bool          `yaml:"no_screenshots"`
		Wait          time.Duration `yaml:"wait"`
	} `yaml:"login"`

	// Endpoints are derived from Environment unless set; tests point them at fakes.
	Endpoints struct {
		Broker  string `yaml:"broker"`
		Home    string `yaml:"home"`
		Algolia string `yaml:"algolia"`
	} `yaml:"endpoints"`
}

func (c *Config) Validate() error {
	if c.Environment == "" {
		return &types.ConfigurationError{Field: "TRADINGTOT_ENVIRONMENT", Reason: "not set; supported values are demo, live"}
	}
	if !c.Environment.Valid() {
		return &types.ConfigurationError{Field: "TRADINGTOT_ENVIRONMENT", Reason: fmt.Sprintf("invalid value '%s': must be 'demo' or 'live'", c.Environment)}
	}
	if c.AuthAttempts < 3 || c.AuthAttempts > 5 {
		return &types.ConfigurationError{Field: "auth_attempts", Reason: fmt.Sprintf("must be between 3 and 5, got %d", c.AuthAttempts)}
	}
	if c.Login.Driver != LoginDriverBrowser && c.Login.Driver != LoginDriverForm {
		return &types.ConfigurationError{Field: "login.driver", Reason: fmt.Sprintf("must be '%s' or '%s', got '%s'", LoginDriverBrowser, LoginDriverForm, c.Login.Driver)}
	}
	if c.HTTPTimeout <= 0 {
		return &types.ConfigurationError{Field: "http_timeout", Reason: "must be positive"}
	}
	if len(c.Currency) != 3 {
		return &types.ConfigurationError{Field: "currency", Reason: fmt.Sprintf("expected a 3 letter code, got '%s'", c.Currency)}
	}
	return nil
}

// LoadConfig reads the optional yaml file at path, applies environment
// overrides and defaults, then validates. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, &types.ConfigurationError{Field: path, Reason: err.Error()}
			}
		}
	}

	if err := applyEnvOverrides(&c); err != nil {
		return nil, err
	}
	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func applyEnvOverrides(c *Config) error {
	if v := os.Getenv("TRADINGTOT_ENVIRONMENT"); v != "" {
		c.Environment = types.Environment(strings.ToLower(v))
	}
	if v := os.Getenv("TRADINGTOT_EMAIL"); v != "" {
		c.Email = v
	}
	if v := os.Getenv("TRADINGTOT_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("TRADINGTOT_CURRENCY"); v != "" {
		c.Currency = v
	}
	if v := os.Getenv("TRADINGTOT_HOME"); v != "" {
		c.Home = v
	}
	if v := os.Getenv("TRADINGTOT_LOGIN_DRIVER"); v != "" {
		c.Login.Driver = v
	}
	if v := os.Getenv("BINARY_PATH"); v != "" {
		c.Login.BinaryPath = v
	}
	if v := os.Getenv("TRADINGTOT_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &types.ConfigurationError{Field: "TRADINGTOT_HTTP_TIMEOUT", Reason: err.Error()}
		}
		c.HTTPTimeout = d
	}
	if v := os.Getenv("TRADINGTOT_AUTH_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &types.ConfigurationError{Field: "TRADINGTOT_AUTH_ATTEMPTS", Reason: err.Error()}
		}
		c.AuthAttempts = n
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.Currency == "" {
		c.Currency = "GBP"
	}
	c.Currency = strings.ToUpper(c.Currency)
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.AuthAttempts == 0 {
		c.AuthAttempts = 3
	}
	if c.Login.Driver == "" {
		c.Login.Driver = LoginDriverBrowser
	}
	if c.Login.Wait == 0 {
		c.Login.Wait = 30 * time.Second
	}
	if c.Home == "" {
		if dir, err := os.UserHomeDir(); err == nil {
			c.Home = filepath.Join(dir, ".TOT")
		} else {
			c.Home = ".TOT"
		}
	}
	if c.Endpoints.Home == "" {
		c.Endpoints.Home = "https://www.trading212.com/"
	}
	if c.Endpoints.Broker == "" && c.Environment.Valid() {
		c.Endpoints.Broker = fmt.Sprintf("https://%s.trading212.com", c.Environment)
	}
}

// AuthFile is the single-slot credential cache.
func (c *Config) AuthFile() string { return filepath.Join(c.Home, "auth", "auth.json") }

// ShotsDir holds one sub-directory of login screenshots per attempt.
func (c *Config) ShotsDir() string { return filepath.Join(c.Home, "shots") }

// JournalDir holds one order journal file per day.
func (c *Config) JournalDir() string { return filepath.Join(c.Home, "logs") }
